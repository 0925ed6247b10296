package deployment

import "fmt"

// UpstreamPublishError represents a distribution channel that refused, or
// failed to accept, a release.
type UpstreamPublishError struct {
	// Target names the distribution channel, e.g. "Google Play".
	Target string
	// Reason is a single line summary of what the channel reported.
	Reason string
	// StatusCode is the HTTP status the channel responded with, if any.
	StatusCode int
}

func (u *UpstreamPublishError) Error() string {
	if u.StatusCode != 0 {
		return fmt.Sprintf(
			"%s rejected the release (%d): %s",
			u.Target,
			u.StatusCode,
			u.Reason,
		)
	}
	return fmt.Sprintf("%s rejected the release: %s", u.Target, u.Reason)
}
