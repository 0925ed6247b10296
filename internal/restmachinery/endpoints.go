package restmachinery

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Endpoints is an interface to be implemented by all REST API endpoints.
type Endpoints interface {
	// Register is invoked by the server to register endpoints with the router.
	Register(router *mux.Router)
}

// BaseEndpoints provides common functionality to all REST API endpoints.
type BaseEndpoints struct {
	// TokenAuthFilter guards endpoints that may only be invoked by other
	// components of the system.
	TokenAuthFilter Filter
}

func (b *BaseEndpoints) readAndValidateRequestBody(
	w http.ResponseWriter,
	r *http.Request,
	bodySchemaLoader gojsonschema.JSONLoader,
	bodyObj interface{},
) bool {
	defer r.Body.Close()
	bodyBytes, err := ioutil.ReadAll(r.Body)
	if err != nil {
		// Log it in case something is actually wrong...
		glog.Error(errors.Wrap(err, "error reading request body"))
		// But we're going to assume this is because the request body is missing,
		// so we'll treat it as a bad request.
		b.WriteAPIResponse(
			w,
			http.StatusBadRequest,
			&meta.ErrBadRequest{
				Reason: "Could not read request body.",
			},
		)
		return false
	}
	if bodySchemaLoader != nil {
		var validationResult *gojsonschema.Result
		validationResult, err = gojsonschema.Validate(
			bodySchemaLoader,
			gojsonschema.NewBytesLoader(bodyBytes),
		)
		if err != nil {
			glog.Warning(errors.Wrap(err, "error validating request body"))
			// As long as the schema itself was valid, the most likely scenario here
			// is that the request body wasn't valid JSON.
			b.WriteAPIResponse(
				w,
				http.StatusBadRequest,
				&meta.ErrBadRequest{
					Reason: "Could not validate request body.",
				},
			)
			return false
		}
		if !validationResult.Valid() {
			verrStrs := make([]string, len(validationResult.Errors()))
			for i, verr := range validationResult.Errors() {
				verrStrs[i] = verr.String()
			}
			b.WriteAPIResponse(
				w,
				http.StatusBadRequest,
				&meta.ErrBadRequest{
					Reason:  "Request body failed JSON validation",
					Details: verrStrs,
				},
			)
			return false
		}
	}
	if bodyObj != nil {
		if err = json.Unmarshal(bodyBytes, bodyObj); err != nil {
			if bodySchemaLoader == nil {
				b.WriteAPIResponse(
					w,
					http.StatusBadRequest,
					&meta.ErrBadRequest{
						Reason: "Could not unmarshal request body.",
					},
				)
				return false
			}
			glog.Error(errors.Wrap(err, "error unmarshaling request body"))
			// We were already able to validate the request body, which means it was
			// valid JSON. If something went wrong with unmarshaling, it's NOT
			// because of a bad request-- it's a real, internal problem.
			b.WriteAPIResponse(
				w,
				http.StatusInternalServerError,
				&meta.ErrInternalServer{},
			)
			return false
		}
	}
	return true
}

// ServeRequest reads and validates the request body, if any, invokes the
// endpoint logic and writes either the result or an appropriate error
// response.
func (b *BaseEndpoints) ServeRequest(req InboundRequest) {
	if req.ReqBodySchemaLoader != nil || req.ReqBodyObj != nil {
		if !b.readAndValidateRequestBody(
			req.W,
			req.R,
			req.ReqBodySchemaLoader,
			req.ReqBodyObj,
		) {
			return
		}
	}
	respBodyObj, err := req.EndpointLogic()
	if err != nil {
		b.WriteError(req.W, err)
		return
	}
	b.WriteAPIResponse(req.W, req.SuccessCode, respBodyObj)
}

// WriteError writes an error response whose status code is derived from the
// underlying cause of the specified error.
func (b *BaseEndpoints) WriteError(w http.ResponseWriter, err error) {
	switch e := errors.Cause(err).(type) {
	case *meta.ErrAuthentication:
		b.WriteAPIResponse(w, http.StatusUnauthorized, e)
	case *meta.ErrBadRequest:
		b.WriteAPIResponse(w, http.StatusBadRequest, e)
	case *meta.ErrExpired:
		b.WriteAPIResponse(w, http.StatusBadRequest, e)
	case *meta.ErrNotFound:
		b.WriteAPIResponse(w, http.StatusNotFound, e)
	case *meta.ErrConflict:
		b.WriteAPIResponse(w, http.StatusConflict, e)
	case *meta.ErrServiceUnavailable:
		b.WriteAPIResponse(w, http.StatusServiceUnavailable, e)
	case *meta.ErrInternalServer:
		b.WriteAPIResponse(w, http.StatusInternalServerError, e)
	default:
		glog.Error(err)
		b.WriteAPIResponse(
			w,
			http.StatusInternalServerError,
			&meta.ErrInternalServer{},
		)
	}
}

// WriteAPIResponse writes the specified status code and JSON response body.
func (b *BaseEndpoints) WriteAPIResponse(
	w http.ResponseWriter,
	statusCode int,
	response interface{},
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	responseBody, ok := response.([]byte)
	if !ok {
		var err error
		if responseBody, err = json.Marshal(response); err != nil {
			glog.Error(errors.Wrap(err, "error marshaling response body"))
		}
	}
	if _, err := w.Write(responseBody); err != nil {
		glog.Error(errors.Wrap(err, "error writing response body"))
	}
}
