package restmachinery

import (
	"net/http"

	"github.com/xeipuuv/gojsonschema"
)

// InboundRequest represents an inbound REST API request.
type InboundRequest struct {
	// W is the http.ResponseWriter the response will be written to.
	W http.ResponseWriter
	// R is the inbound *http.Request.
	R *http.Request
	// ReqBodySchemaLoader, if non-nil, is used to validate the request body
	// before it is unmarshaled into ReqBodyObj.
	ReqBodySchemaLoader gojsonschema.JSONLoader
	// ReqBodyObj, if non-nil, is the object the request body is unmarshaled
	// into.
	ReqBodyObj interface{}
	// EndpointLogic is the function that actually handles the request.
	EndpointLogic func() (interface{}, error)
	// SuccessCode is the HTTP status code written when EndpointLogic does not
	// return an error.
	SuccessCode int
}
