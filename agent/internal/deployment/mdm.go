package deployment

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/krancour/secureimage/agent/internal/signing"
	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/internal/retries"
	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/sdk"
	"github.com/pkg/errors"
)

const (
	// MDMUsernameKey is the secret holding the MDM API user.
	MDMUsernameKey = "mdmUsername"
	// MDMPasswordKey is the secret holding the MDM API password.
	MDMPasswordKey = "mdmPassword"
	// MDMTenantCodeKey is the secret holding the MDM API tenant code.
	MDMTenantCodeKey = "mdmTenantCode"

	mdmTarget         = "MDM"
	mdmMaxAttempts    = 5
	mdmMaxBackoff     = 30 * time.Second
	tenantCodeHeader  = "aw-tenant-code"
	uploadBlobPath    = "API/mam/blobs/uploadblob"
	beginInstallPath  = "API/mam/apps/internal/begininstall"
	mdmPushModeAuto   = "Auto"
	mdmBlobMediaType  = "application/octet-stream"
	mdmErrorBodyLimit = 512
)

// mdmDevice describes how the MDM identifies the devices a platform's
// applications install on.
type mdmDevice struct {
	deviceType int
	modelID    int
}

var mdmDevices = map[sdk.Platform]mdmDevice{
	sdk.PlatformIOS:     {deviceType: 2, modelID: 1},
	sdk.PlatformAndroid: {deviceType: 5, modelID: 5},
}

type blobReference struct {
	Value int64 `json:"Value"`
}

type beginInstall struct {
	BlobID          int64           `json:"BlobId"`
	DeviceType      int             `json:"DeviceType"`
	ApplicationName string          `json:"ApplicationName"`
	SupportedModels supportedModels `json:"SupportedModels"`
	LocationGroupID string          `json:"LocationGroupId"`
	PushMode        string          `json:"PushMode"`
}

type supportedModels struct {
	Model []model `json:"Model"`
}

type model struct {
	ModelID int `json:"ModelId"`
}

type mdmCredentials struct {
	username   string
	password   string
	tenantCode string
}

type mdmPublisher struct {
	account string
	client  *restmachinery.BaseClient
	secrets secrets.Store
}

func newMDMPublisher(config Config, secretStore secrets.Store) publisher {
	return &mdmPublisher{
		account: config.MDMAccount,
		client: restmachinery.NewBaseClient(
			config.MDMHost,
			"",
			config.IgnoreMDMCertWarnings,
		),
		secrets: secretStore,
	}
}

// Publish uploads the artifact to the MDM as a blob and then registers it as
// an internal application of the request's organization group.
func (m *mdmPublisher) Publish(
	ctx context.Context,
	req sdk.DeploymentRequest,
	artifactPath string,
) error {
	device, ok := mdmDevices[req.Platform]
	if !ok {
		return &signing.Error{
			Kind:   signing.ErrKindUnsupportedPlatform,
			Reason: "The MDM does not support platform " + string(req.Platform),
		}
	}
	creds, err := m.credentials(ctx)
	if err != nil {
		return err
	}

	blob := blobReference{}
	if err = m.call(
		ctx,
		"upload blob",
		func() (restmachinery.OutboundRequest, func(), error) {
			f, err := os.Open(artifactPath)
			if err != nil {
				return restmachinery.OutboundRequest{}, nil,
					errors.Wrapf(err, "error opening %s", artifactPath)
			}
			return restmachinery.OutboundRequest{
				Method: http.MethodPost,
				Path:   uploadBlobPath,
				QueryParams: map[string]string{
					"fileName":            path.Base(artifactPath),
					"organizationGroupId": req.OrganizationGroupID,
				},
				Headers: map[string]string{
					"Content-Type": mdmBlobMediaType,
				},
				ReqBodyObj: f,
				RespObj:    &blob,
			}, func() { f.Close() }, nil
		},
		creds,
	); err != nil {
		return err
	}

	install := beginInstall{
		BlobID:          blob.Value,
		DeviceType:      device.deviceType,
		ApplicationName: req.DisplayName,
		SupportedModels: supportedModels{
			Model: []model{{ModelID: device.modelID}},
		},
		LocationGroupID: req.OrganizationGroupID,
		PushMode:        mdmPushModeAuto,
	}
	return m.call(
		ctx,
		"begin install",
		func() (restmachinery.OutboundRequest, func(), error) {
			return restmachinery.OutboundRequest{
				Method:     http.MethodPost,
				Path:       beginInstallPath,
				ReqBodyObj: install,
			}, func() {}, nil
		},
		creds,
	)
}

// call sends the request built by newReq, retrying transport failures and
// server errors. Any other unsuccessful response is reported as an
// *UpstreamPublishError.
func (m *mdmPublisher) call(
	ctx context.Context,
	process string,
	newReq func() (restmachinery.OutboundRequest, func(), error),
	creds mdmCredentials,
) error {
	return retries.ManageRetries(
		ctx,
		process,
		mdmMaxAttempts,
		mdmMaxBackoff,
		func() (bool, error) {
			req, done, err := newReq()
			if err != nil {
				return false, err
			}
			defer done()
			req.AuthHeaders = m.client.BasicAuthHeaders(
				creds.username,
				creds.password,
			)
			if req.Headers == nil {
				req.Headers = map[string]string{}
			}
			req.Headers[tenantCodeHeader] = creds.tenantCode
			req.Headers["Accept"] = "application/json"

			resp, err := m.client.Do(ctx, req)
			if err != nil {
				return true, err
			}
			defer resp.Body.Close()
			body, err := ioutil.ReadAll(resp.Body)
			if err != nil {
				return true, errors.Wrap(err, "error reading MDM response")
			}
			switch {
			case resp.StatusCode >= http.StatusInternalServerError:
				return true, &UpstreamPublishError{
					Target:     mdmTarget,
					Reason:     summarizeBody(body),
					StatusCode: resp.StatusCode,
				}
			case resp.StatusCode >= http.StatusBadRequest:
				return false, &UpstreamPublishError{
					Target:     mdmTarget,
					Reason:     summarizeBody(body),
					StatusCode: resp.StatusCode,
				}
			}
			if req.RespObj != nil {
				if err = json.Unmarshal(body, req.RespObj); err != nil {
					return false, errors.Wrapf(
						err,
						"error unmarshaling %s response",
						process,
					)
				}
			}
			return false, nil
		},
	)
}

func (m *mdmPublisher) credentials(
	ctx context.Context,
) (mdmCredentials, error) {
	creds := mdmCredentials{}
	var err error
	if creds.username, err = credential(
		ctx, m.secrets, MDMUsernameKey, m.account,
	); err != nil {
		return creds, err
	}
	if creds.password, err = credential(
		ctx, m.secrets, MDMPasswordKey, m.account,
	); err != nil {
		return creds, err
	}
	creds.tenantCode, err = credential(ctx, m.secrets, MDMTenantCodeKey, m.account)
	return creds, err
}

// summarizeBody extracts the message of an MDM error response, falling back
// to the leading portion of the raw body.
func summarizeBody(body []byte) string {
	errResp := struct {
		Message string `json:"message"`
	}{}
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		return errResp.Message
	}
	summary := strings.TrimSpace(string(body))
	if len(summary) > mdmErrorBodyLimit {
		summary = summary[:mdmErrorBodyLimit]
	}
	if summary == "" {
		return "empty response"
	}
	return summary
}
