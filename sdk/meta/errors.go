package meta

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrAuthentication represents an error asserting an principal's identity.
type ErrAuthentication struct {
	// Reason is a natural language explanation around why authentication failed.
	Reason string `json:"reason,omitempty"`
}

func (e *ErrAuthentication) Error() string {
	return fmt.Sprintf("Could not authenticate the request: %s", e.Reason)
}

// MarshalJSON amends ErrAuthentication instances with type metadata.
func (e *ErrAuthentication) MarshalJSON() ([]byte, error) {
	type Alias ErrAuthentication
	return json.Marshal(
		struct {
			TypeMeta `json:",inline"`
			*Alias   `json:",inline"`
		}{
			TypeMeta: TypeMeta{
				APIVersion: APIVersion,
				Kind:       "AuthenticationError",
			},
			Alias: (*Alias)(e),
		},
	)
}

// ErrBadRequest represents an error wherein an invalid request has been
// rejected by the API server.
type ErrBadRequest struct {
	// Reason is a natural language explanation for why the request is invalid.
	Reason string `json:"reason,omitempty"`
	// Details may further qualify why a request is invalid. For instance, if
	// the Reason field states that request validation failed, the Details field,
	// may enumerate specific request schema violations.
	Details []string `json:"details,omitempty"`
}

func (e *ErrBadRequest) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("Bad request: %s", e.Reason)
	}
	msg := fmt.Sprintf("Bad request: %s:", e.Reason)
	for i, detail := range e.Details {
		msg = fmt.Sprintf("%s\n  %d. %s", msg, i, detail)
	}
	return msg
}

// MarshalJSON amends ErrBadRequest instances with type metadata.
func (e *ErrBadRequest) MarshalJSON() ([]byte, error) {
	type Alias ErrBadRequest
	return json.Marshal(
		struct {
			TypeMeta `json:",inline"`
			*Alias   `json:",inline"`
		}{
			TypeMeta: TypeMeta{
				APIVersion: APIVersion,
				Kind:       "BadRequestError",
			},
			Alias: (*Alias)(e),
		},
	)
}

// ErrNotFound represents an error wherein a resource presumed to exist could
// not be located.
type ErrNotFound struct {
	// Type identifies the type of the resource that could not be located.
	Type string `json:"type,omitempty"`
	// ID is the identifier of the resource of type Type that could not be
	// located.
	ID string `json:"id,omitempty"`
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found.", e.Type, e.ID)
}

// MarshalJSON amends ErrNotFound instances with type metadata.
func (e *ErrNotFound) MarshalJSON() ([]byte, error) {
	type Alias ErrNotFound
	return json.Marshal(
		struct {
			TypeMeta `json:",inline"`
			*Alias   `json:",inline"`
		}{
			TypeMeta: TypeMeta{
				APIVersion: APIVersion,
				Kind:       "NotFoundError",
			},
			Alias: (*Alias)(e),
		},
	)
}

// ErrExpired represents an error wherein a stored artifact has outlived its
// retention window and may no longer be served.
type ErrExpired struct {
	// Type identifies the type of the resource that has expired.
	Type string `json:"type,omitempty"`
	// ID is the identifier of the expired resource.
	ID string `json:"id,omitempty"`
}

func (e *ErrExpired) Error() string {
	return fmt.Sprintf("%s %q has expired.", e.Type, e.ID)
}

// MarshalJSON amends ErrExpired instances with type metadata.
func (e *ErrExpired) MarshalJSON() ([]byte, error) {
	type Alias ErrExpired
	return json.Marshal(
		struct {
			TypeMeta `json:",inline"`
			*Alias   `json:",inline"`
		}{
			TypeMeta: TypeMeta{
				APIVersion: APIVersion,
				Kind:       "ExpiredError",
			},
			Alias: (*Alias)(e),
		},
	)
}

// ErrConflict represents an error wherein a request cannot be completed
// because it would violate some constraint of the system, for instance an
// attempt to update a Job that has already reached a terminal status.
type ErrConflict struct {
	// Type identifies the type of the resource that the conflict involved.
	Type string `json:"type,omitempty"`
	// ID is the identifier of the resource that has a conflict.
	ID string `json:"id,omitempty"`
	// Reason is a natural language explanation around the conflict.
	Reason string `json:"reason,omitempty"`
}

func (e *ErrConflict) Error() string {
	return e.Reason
}

// MarshalJSON amends ErrConflict instances with type metadata.
func (e *ErrConflict) MarshalJSON() ([]byte, error) {
	type Alias ErrConflict
	return json.Marshal(
		struct {
			TypeMeta `json:",inline"`
			*Alias   `json:",inline"`
		}{
			TypeMeta: TypeMeta{
				APIVersion: APIVersion,
				Kind:       "ConflictError",
			},
			Alias: (*Alias)(e),
		},
	)
}

// ErrServiceUnavailable represents an error wherein a component is
// temporarily unable to accept more work.
type ErrServiceUnavailable struct {
	// Reason is a natural language explanation of why the service cannot
	// accept the request.
	Reason string `json:"reason,omitempty"`
}

func (e *ErrServiceUnavailable) Error() string {
	if e.Reason == "" {
		return "Service unavailable."
	}
	return fmt.Sprintf("Service unavailable: %s", e.Reason)
}

// MarshalJSON amends ErrServiceUnavailable instances with type metadata.
func (e *ErrServiceUnavailable) MarshalJSON() ([]byte, error) {
	type Alias ErrServiceUnavailable
	return json.Marshal(
		struct {
			TypeMeta `json:",inline"`
			*Alias   `json:",inline"`
		}{
			TypeMeta: TypeMeta{
				APIVersion: APIVersion,
				Kind:       "ServiceUnavailableError",
			},
			Alias: (*Alias)(e),
		},
	)
}

// ErrInternalServer represents a condition wherein the API server has
// encountered an unexpected error and does not wish to communicate further
// details.
type ErrInternalServer struct{}

func (e *ErrInternalServer) Error() string {
	return "An internal server error occurred."
}

// MarshalJSON amends ErrInternalServer instances with type metadata.
func (e *ErrInternalServer) MarshalJSON() ([]byte, error) {
	return json.Marshal(
		TypeMeta{
			APIVersion: APIVersion,
			Kind:       "InternalServerError",
		},
	)
}

// Summarize reduces an error to the single line that is safe to hand to a
// remote party as a status message.
func Summarize(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if i := strings.Index(msg, "\n"); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	return msg
}
