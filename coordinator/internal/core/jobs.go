package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/krancour/secureimage/sdk"
	"github.com/krancour/secureimage/sdk/meta"
)

// Job represents a unit of signing or deployment work tracked by the
// Coordinator.
// nolint: lll
type Job struct {
	// ID is the Job's unique identifier.
	ID string `json:"id" bson:"id"`
	// Platform is the mobile platform the Job's artifact targets.
	Platform sdk.Platform `json:"platform" bson:"platform"`
	// DeploymentPlatform is only set for deployment Jobs.
	DeploymentPlatform sdk.DeploymentPlatform `json:"deploymentPlatform,omitempty" bson:"deploymentPlatform,omitempty"`
	// OriginalFileName is the object name of the Job's input artifact.
	OriginalFileName string `json:"originalFileName" bson:"originalFileName"`
	// OriginalFileEtag is the etag of the Job's input artifact.
	OriginalFileEtag string `json:"originalFileEtag,omitempty" bson:"originalFileEtag,omitempty"`
	// DeliveryFileName is the object name of the Job's output artifact. It is
	// only set once the Job is Completed.
	DeliveryFileName string `json:"deliveryFileName,omitempty" bson:"deliveryFileName,omitempty"`
	// DeliveryFileEtag is the etag of the Job's output artifact.
	DeliveryFileEtag string `json:"deliveryFileEtag,omitempty" bson:"deliveryFileEtag,omitempty"`
	// Token is the capability that must be presented to download the Job's
	// delivery artifact.
	Token string `json:"-" bson:"token"`
	// Status is the Job's current status.
	Status sdk.JobStatus `json:"status" bson:"status"`
	// StatusMessage explains a failure.
	StatusMessage string `json:"statusMessage,omitempty" bson:"statusMessage,omitempty"`
	// ProjectID is only set for enterprise deployment Jobs.
	ProjectID string `json:"projectId,omitempty" bson:"projectId,omitempty"`
	// SourceJobID is only set for deployment Jobs and references the signing
	// Job whose delivery artifact is being deployed.
	SourceJobID string `json:"sourceJobId,omitempty" bson:"sourceJobId,omitempty"`
	// Created is when the Job was recorded.
	Created time.Time `json:"created" bson:"created"`
	// Updated is when the Job's status last changed.
	Updated time.Time `json:"updated" bson:"updated"`
}

// MarshalJSON amends Job instances with type metadata.
func (j Job) MarshalJSON() ([]byte, error) {
	type Alias Job
	return json.Marshal(
		struct {
			meta.TypeMeta `json:",inline"`
			Alias         `json:",inline"`
		}{
			TypeMeta: meta.TypeMeta{
				APIVersion: meta.APIVersion,
				Kind:       "Job",
			},
			Alias: (Alias)(j),
		},
	)
}

// IsDeployment returns a bool indicating whether the Job is a deployment Job.
func (j Job) IsDeployment() bool {
	return j.DeploymentPlatform != ""
}

// Duration returns how long the Job has taken so far.
func (j Job) Duration() time.Duration {
	return j.Updated.Sub(j.Created)
}

// JobStatusTransition describes a change to a Job's status, along with any
// fields that change with it.
type JobStatusTransition struct {
	Status           sdk.JobStatus
	StatusMessage    string
	DeliveryFileName string
	DeliveryFileEtag string
	Updated          time.Time
}

// JobsStore is an interface for components that implement Job persistence
// concerns.
type JobsStore interface {
	// Create persists a new Job.
	Create(ctx context.Context, job Job) error
	// Get retrieves a Job by ID. A *meta.ErrNotFound is returned if no such Job
	// exists.
	Get(ctx context.Context, id string) (Job, error)
	// Transition atomically applies the transition if, and only if, the Job's
	// current status is one from which the new status may be reached. A
	// *meta.ErrNotFound is returned if no such Job exists and a
	// *meta.ErrConflict is returned if the Job's current status does not permit
	// the transition.
	Transition(ctx context.Context, id string, transition JobStatusTransition) error
}
