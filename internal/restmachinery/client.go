package restmachinery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
)

// BaseClient provides common functionality to all REST API clients.
type BaseClient struct {
	APIAddress string
	APIToken   string
	HTTPClient *http.Client
}

// NewBaseClient returns a *BaseClient whose TLS verification behavior is
// determined by allowInsecure.
func NewBaseClient(
	apiAddress string,
	apiToken string,
	allowInsecure bool,
) *BaseClient {
	return &BaseClient{
		APIAddress: strings.TrimSuffix(apiAddress, "/"),
		APIToken:   apiToken,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: allowInsecure, // nolint: gosec
				},
			},
		},
	}
}

// BasicAuthHeaders returns headers for HTTP basic authentication.
func (b *BaseClient) BasicAuthHeaders(
	username string,
	password string,
) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf(
			"Basic %s",
			base64.StdEncoding.EncodeToString(
				[]byte(fmt.Sprintf("%s:%s", username, password)),
			),
		),
	}
}

// BearerTokenAuthHeaders returns headers for bearer token authentication
// using the client's APIToken.
func (b *BaseClient) BearerTokenAuthHeaders() map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", b.APIToken),
	}
}

// ExecuteRequest submits the request and, if req.RespObj is non-nil,
// unmarshals the response body into it.
func (b *BaseClient) ExecuteRequest(
	ctx context.Context,
	req OutboundRequest,
) error {
	resp, err := b.SubmitRequest(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if req.RespObj != nil {
		respBodyBytes, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "error reading response body")
		}
		if err := json.Unmarshal(respBodyBytes, req.RespObj); err != nil {
			return errors.Wrap(err, "error unmarshaling response body")
		}
	}
	return nil
}

// SubmitRequest submits the request and returns the response if its status
// code matches req.SuccessCode (200 by default). Otherwise the response is
// converted into a typed error.
func (b *BaseClient) SubmitRequest(
	ctx context.Context,
	req OutboundRequest,
) (*http.Response, error) {
	resp, err := b.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(req, resp.StatusCode) {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}
	return resp, nil
}

func isSuccess(req OutboundRequest, statusCode int) bool {
	if (req.SuccessCode == 0 && statusCode == http.StatusOK) ||
		statusCode == req.SuccessCode {
		return true
	}
	for _, code := range req.AlsoSuccessCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

// Do builds and sends the request without interpreting the response status.
// Callers are responsible for closing the response body.
func (b *BaseClient) Do(
	ctx context.Context,
	req OutboundRequest,
) (*http.Response, error) {
	var reqBodyReader io.Reader
	if req.ReqBodyObj != nil {
		switch rb := req.ReqBodyObj.(type) {
		case []byte:
			reqBodyReader = bytes.NewBuffer(rb)
		case io.Reader:
			reqBodyReader = rb
		default:
			reqBodyBytes, err := json.Marshal(req.ReqBodyObj)
			if err != nil {
				return nil, errors.Wrap(err, "error marshaling request body")
			}
			reqBodyReader = bytes.NewBuffer(reqBodyBytes)
		}
	}

	r, err := http.NewRequest(
		req.Method,
		fmt.Sprintf("%s/%s", b.APIAddress, strings.TrimPrefix(req.Path, "/")),
		reqBodyReader,
	)
	if err != nil {
		return nil, errors.Wrapf(
			err,
			"error creating request %s %s",
			req.Method,
			req.Path,
		)
	}
	r = r.WithContext(ctx)
	if len(req.QueryParams) > 0 {
		q := r.URL.Query()
		for k, v := range req.QueryParams {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
	for k, v := range req.AuthHeaders {
		r.Header.Add(k, v)
	}
	for k, v := range req.Headers {
		r.Header.Add(k, v)
	}
	if r.Header.Get("Content-Type") == "" && reqBodyReader != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.HTTPClient.Do(r)
	if err != nil {
		return nil, errors.Wrap(err, "error invoking API")
	}
	return resp, nil
}

func errorFromResponse(resp *http.Response) error {
	bodyBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "error reading error response body")
	}
	typeMeta := meta.TypeMeta{}
	// nolint: errcheck
	json.Unmarshal(bodyBytes, &typeMeta)
	// HTTP Response code hints at what sort of error might be in the body of the
	// response
	var apiErr error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		apiErr = &meta.ErrAuthentication{}
	case http.StatusBadRequest:
		if typeMeta.Kind == "ExpiredError" {
			apiErr = &meta.ErrExpired{}
		} else {
			apiErr = &meta.ErrBadRequest{}
		}
	case http.StatusNotFound:
		apiErr = &meta.ErrNotFound{}
	case http.StatusConflict:
		apiErr = &meta.ErrConflict{}
	case http.StatusServiceUnavailable:
		apiErr = &meta.ErrServiceUnavailable{}
	case http.StatusInternalServerError:
		return &meta.ErrInternalServer{}
	default:
		return errors.Errorf("received %d from API server", resp.StatusCode)
	}
	if err = json.Unmarshal(bodyBytes, apiErr); err != nil {
		return errors.Wrapf(
			err,
			"error unmarshaling %d error response body",
			resp.StatusCode,
		)
	}
	return apiErr
}
