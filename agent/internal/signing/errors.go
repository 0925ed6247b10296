package signing

import "fmt"

// ErrorKind classifies the ways in which signing can fail, other than the
// failure of an external tool.
type ErrorKind string

const (
	// ErrKindUnsupportedPlatform indicates there is no strategy for the
	// combination of platform and artifact type.
	ErrKindUnsupportedPlatform ErrorKind = "UnsupportedPlatform"
	// ErrKindArchiveNotFound indicates the uploaded artifact did not contain
	// anything that could be signed.
	ErrKindArchiveNotFound ErrorKind = "ArchiveNotFound"
	// ErrKindExportFailed indicates an archive export did not report success.
	ErrKindExportFailed ErrorKind = "ExportFailed"
	// ErrKindSigningIdentityNotFound indicates no installed signing identity
	// matches the artifact.
	ErrKindSigningIdentityNotFound ErrorKind = "SigningIdentityNotFound"
	// ErrKindCredentialLookupFailed indicates signing credentials could not be
	// located or created.
	ErrKindCredentialLookupFailed ErrorKind = "CredentialLookupFailed"
	// ErrKindPackagingFailed indicates the signed output could not be packaged
	// for delivery.
	ErrKindPackagingFailed ErrorKind = "PackagingFailed"
)

// Error represents a signing failure that is not the failure of an external
// tool.
type Error struct {
	Kind ErrorKind
	// Reason is a one line, human readable explanation.
	Reason string
	// Err is the underlying error, if any. It is logged, never reported.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}
