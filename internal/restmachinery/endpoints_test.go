package restmachinery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

const testSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1}
	}
}`

func TestServeRequestErrorMapping(t *testing.T) {
	testCases := []struct {
		name         string
		err          error
		expectedCode int
		expectedKind string
	}{
		{
			name:         "authentication",
			err:          &meta.ErrAuthentication{},
			expectedCode: http.StatusUnauthorized,
			expectedKind: "AuthenticationError",
		},
		{
			name:         "bad request",
			err:          errors.Wrap(&meta.ErrBadRequest{Reason: "no"}, "wrapped"),
			expectedCode: http.StatusBadRequest,
			expectedKind: "BadRequestError",
		},
		{
			name:         "expired",
			err:          &meta.ErrExpired{Type: "Artifact", ID: "foo"},
			expectedCode: http.StatusBadRequest,
			expectedKind: "ExpiredError",
		},
		{
			name:         "not found",
			err:          &meta.ErrNotFound{Type: "Job", ID: "foo"},
			expectedCode: http.StatusNotFound,
			expectedKind: "NotFoundError",
		},
		{
			name:         "conflict",
			err:          &meta.ErrConflict{Type: "Job", ID: "foo"},
			expectedCode: http.StatusConflict,
			expectedKind: "ConflictError",
		},
		{
			name:         "unavailable",
			err:          &meta.ErrServiceUnavailable{},
			expectedCode: http.StatusServiceUnavailable,
			expectedKind: "ServiceUnavailableError",
		},
		{
			name:         "unknown",
			err:          errors.New("something went wrong"),
			expectedCode: http.StatusInternalServerError,
			expectedKind: "InternalServerError",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			b := &BaseEndpoints{}
			rr := httptest.NewRecorder()
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			b.ServeRequest(
				InboundRequest{
					W: rr,
					R: req,
					EndpointLogic: func() (interface{}, error) {
						return nil, testCase.err
					},
					SuccessCode: http.StatusOK,
				},
			)
			require.Equal(t, testCase.expectedCode, rr.Code)
			body := map[string]interface{}{}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, testCase.expectedKind, body["kind"])
		})
	}
}

func TestServeRequestBodyValidation(t *testing.T) {
	testCases := []struct {
		name         string
		body         string
		expectedCode int
		expectCalled bool
	}{
		{
			name:         "not json",
			body:         "{",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "fails schema",
			body:         `{"name":""}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "valid",
			body:         `{"name":"foo"}`,
			expectedCode: http.StatusCreated,
			expectCalled: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			b := &BaseEndpoints{}
			rr := httptest.NewRecorder()
			req, err := http.NewRequest(
				http.MethodPost,
				"/",
				bytes.NewBufferString(testCase.body),
			)
			require.NoError(t, err)
			obj := struct {
				Name string `json:"name"`
			}{}
			called := false
			b.ServeRequest(
				InboundRequest{
					W:                   rr,
					R:                   req,
					ReqBodySchemaLoader: gojsonschema.NewStringLoader(testSchema),
					ReqBodyObj:          &obj,
					EndpointLogic: func() (interface{}, error) {
						called = true
						require.Equal(t, "foo", obj.Name)
						return obj, nil
					},
					SuccessCode: http.StatusCreated,
				},
			)
			require.Equal(t, testCase.expectedCode, rr.Code)
			require.Equal(t, testCase.expectCalled, called)
		})
	}
}

func TestServerHealthCheck(t *testing.T) {
	healthy := true
	s := NewServer(
		NewConfig(8080, "foo"),
		&BaseEndpoints{},
		nil,
		func(ctx context.Context) error {
			if !healthy {
				return errors.New("database unreachable")
			}
			return nil
		},
	)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	healthy = false
	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
