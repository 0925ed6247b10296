package restmachinery

// OutboundRequest represents a request to a REST API.
type OutboundRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	AuthHeaders map[string]string
	Headers     map[string]string
	// ReqBodyObj is marshaled to JSON unless it is a []byte or an io.Reader, in
	// which case it is sent as is.
	ReqBodyObj  interface{}
	SuccessCode int
	// AlsoSuccessCodes lists additional status codes that are not errors.
	AlsoSuccessCodes []int
	RespObj          interface{}
}
