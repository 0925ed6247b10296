package meta

// APIVersion represents the API and major version thereof with which this
// version of the SecureImage SDK is compatible.
const APIVersion = "github.com/krancour/secureimage/v1"

// TypeMeta represents metadata about a resource type to help clients and
// servers mutually head off potential confusion over types (and versions of
// thereof) sent over the wire.
type TypeMeta struct {
	// Kind specifies the type of a serialized resource.
	Kind string `json:"kind,omitempty"`
	// APIVersion specifies the major version of the SecureImage API with which
	// the client or server having serialized the resource is compatible.
	APIVersion string `json:"apiVersion,omitempty"`
}
