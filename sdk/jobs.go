package sdk

import (
	"encoding/json"
	"strings"

	"github.com/krancour/secureimage/sdk/meta"
)

// JobStatus represents where a Job is within its lifecycle.
type JobStatus string

const (
	// JobStatusCreated represents the state wherein a Job has been recorded but
	// not yet accepted by an Agent.
	JobStatusCreated JobStatus = "Created"
	// JobStatusProcessing represents the state wherein an Agent has accepted a
	// Job and is working on it.
	JobStatusProcessing JobStatus = "Processing"
	// JobStatusCompleted represents the state wherein a Job has produced a
	// delivery artifact.
	JobStatusCompleted JobStatus = "Completed"
	// JobStatusFailed represents the state wherein a Job could not be completed.
	JobStatusFailed JobStatus = "Failed"
)

// JobStatusesAll returns a slice of JobStatuses containing ALL possible
// statuses. Note that instead of utilizing a package-level slice, this a
// function returns ad-hoc copies of the slice in order to preclude the
// possibility of this important collection being modified at runtime.
func JobStatusesAll() []JobStatus {
	return []JobStatus{
		JobStatusCreated,
		JobStatusProcessing,
		JobStatusCompleted,
		JobStatusFailed,
	}
}

// IsTerminal returns a bool indicating whether the JobStatus is terminal.
func (j JobStatus) IsTerminal() bool {
	switch j {
	case JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo returns a bool indicating whether a Job in this status may
// move to the specified status.
func (j JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, from := range next.Predecessors() {
		if from == j {
			return true
		}
	}
	return false
}

// Predecessors returns all statuses from which a Job may move directly into
// this status.
func (j JobStatus) Predecessors() []JobStatus {
	switch j {
	case JobStatusProcessing:
		return []JobStatus{JobStatusCreated}
	case JobStatusCompleted, JobStatusFailed:
		return []JobStatus{JobStatusCreated, JobStatusProcessing}
	}
	return nil
}

// Platform represents the mobile platform an artifact was built for.
type Platform string

const (
	// PlatformIOS represents Apple's iOS.
	PlatformIOS Platform = "ios"
	// PlatformAndroid represents Google's Android.
	PlatformAndroid Platform = "android"
)

// ParsePlatform case-insensitively converts a string into a supported
// Platform.
func ParsePlatform(str string) (Platform, bool) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(str))); p {
	case PlatformIOS, PlatformAndroid:
		return p, true
	}
	return "", false
}

// DeploymentPlatform represents the kind of distribution channel a signed
// artifact is pushed to.
type DeploymentPlatform string

const (
	// DeploymentPlatformPublic represents a public app store.
	DeploymentPlatformPublic DeploymentPlatform = "public"
	// DeploymentPlatformEnterprise represents an enterprise mobile device
	// management service.
	DeploymentPlatformEnterprise DeploymentPlatform = "enterprise"
)

// ParseDeploymentPlatform case-insensitively converts a string into a
// supported DeploymentPlatform.
func ParseDeploymentPlatform(str string) (DeploymentPlatform, bool) {
	switch d := DeploymentPlatform(strings.ToLower(strings.TrimSpace(str))); d {
	case DeploymentPlatformPublic, DeploymentPlatformEnterprise:
		return d, true
	}
	return "", false
}

// JobReference is returned to clients when a Job has been accepted.
type JobReference struct {
	// ID is the identifier of the newly created Job.
	ID string `json:"id"`
}

// MarshalJSON amends JobReference instances with type metadata.
func (j JobReference) MarshalJSON() ([]byte, error) {
	type Alias JobReference
	return json.Marshal(
		struct {
			meta.TypeMeta `json:",inline"`
			Alias         `json:",inline"`
		}{
			TypeMeta: meta.TypeMeta{
				APIVersion: meta.APIVersion,
				Kind:       "JobReference",
			},
			Alias: (Alias)(j),
		},
	)
}

// JobStatusReport is the client-facing view of a Job's progress.
type JobStatusReport struct {
	// Status is the Job's current status.
	Status JobStatus `json:"status"`
	// StatusMessage explains a failure. It is only set for Failed Jobs.
	StatusMessage string `json:"statusMessage,omitempty"`
	// URL is where the delivery artifact may be downloaded from. It is only set
	// for Completed Jobs.
	URL string `json:"url,omitempty"`
	// DurationInSeconds is how long the Job took to reach its terminal status.
	DurationInSeconds float64 `json:"durationInSeconds,omitempty"`
}

// MarshalJSON amends JobStatusReport instances with type metadata.
func (j JobStatusReport) MarshalJSON() ([]byte, error) {
	type Alias JobStatusReport
	return json.Marshal(
		struct {
			meta.TypeMeta `json:",inline"`
			Alias         `json:",inline"`
		}{
			TypeMeta: meta.TypeMeta{
				APIVersion: meta.APIVersion,
				Kind:       "JobStatusReport",
			},
			Alias: (Alias)(j),
		},
	)
}

// JobStatusUpdate is sent by an Agent to report the terminal outcome of a Job.
type JobStatusUpdate struct {
	// Status is the terminal status the Job has reached.
	Status JobStatus `json:"status"`
	// StatusMessage is a one line summary of why the Job failed.
	StatusMessage string `json:"statusMessage,omitempty"`
	// DeliveryFileName is the object name of the artifact produced by the Job.
	DeliveryFileName string `json:"deliveryFileName,omitempty"`
	// DeliveryFileEtag is the etag of the artifact produced by the Job.
	DeliveryFileEtag string `json:"deliveryFileEtag,omitempty"`
}

// MarshalJSON amends JobStatusUpdate instances with type metadata.
func (j JobStatusUpdate) MarshalJSON() ([]byte, error) {
	type Alias JobStatusUpdate
	return json.Marshal(
		struct {
			meta.TypeMeta `json:",inline"`
			Alias         `json:",inline"`
		}{
			TypeMeta: meta.TypeMeta{
				APIVersion: meta.APIVersion,
				Kind:       "JobStatusUpdate",
			},
			Alias: (Alias)(j),
		},
	)
}

// SigningRequest asks an Agent to sign an artifact that has already been
// placed in the artifact store.
type SigningRequest struct {
	JobID            string   `json:"jobId"`
	Platform         Platform `json:"platform"`
	OriginalFileName string   `json:"originalFileName"`
	OriginalFileEtag string   `json:"originalFileEtag,omitempty"`
}

// MarshalJSON amends SigningRequest instances with type metadata.
func (s SigningRequest) MarshalJSON() ([]byte, error) {
	type Alias SigningRequest
	return json.Marshal(
		struct {
			meta.TypeMeta `json:",inline"`
			Alias         `json:",inline"`
		}{
			TypeMeta: meta.TypeMeta{
				APIVersion: meta.APIVersion,
				Kind:       "SigningRequest",
			},
			Alias: (Alias)(s),
		},
	)
}

// DeploymentRequest asks an Agent to push a signed artifact to a distribution
// channel.
// nolint: lll
type DeploymentRequest struct {
	JobID              string             `json:"jobId"`
	Platform           Platform           `json:"platform"`
	DeploymentPlatform DeploymentPlatform `json:"deploymentPlatform"`
	OriginalFileName   string             `json:"originalFileName"`
	OriginalFileEtag   string             `json:"originalFileEtag,omitempty"`
	ProjectID          string             `json:"projectId,omitempty"`
	// OrganizationGroupID is the MDM organization group enterprise deployments
	// are routed to.
	OrganizationGroupID string `json:"organizationGroupId,omitempty"`
	// DisplayName is the application name shown by the MDM.
	DisplayName string `json:"displayName,omitempty"`
}

// MarshalJSON amends DeploymentRequest instances with type metadata.
func (d DeploymentRequest) MarshalJSON() ([]byte, error) {
	type Alias DeploymentRequest
	return json.Marshal(
		struct {
			meta.TypeMeta `json:",inline"`
			Alias         `json:",inline"`
		}{
			TypeMeta: meta.TypeMeta{
				APIVersion: meta.APIVersion,
				Kind:       "DeploymentRequest",
			},
			Alias: (Alias)(d),
		},
	)
}
