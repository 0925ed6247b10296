package authn

import (
	"net/http"
	"strings"

	"github.com/krancour/secureimage/internal/crypto"
	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/sdk/meta"
)

type tokenAuthFilter struct {
	*restmachinery.BaseEndpoints
	hashedServiceToken string
}

// NewTokenAuthFilter returns a restmachinery.Filter that only admits requests
// bearing a token whose hash matches hashedServiceToken.
func NewTokenAuthFilter(hashedServiceToken string) restmachinery.Filter {
	return &tokenAuthFilter{
		BaseEndpoints:      &restmachinery.BaseEndpoints{},
		hashedServiceToken: hashedServiceToken,
	}
}

func (t *tokenAuthFilter) Decorate(handle http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headerValue := r.Header.Get("Authorization")
		if headerValue == "" {
			t.WriteAPIResponse(
				w,
				http.StatusUnauthorized,
				&meta.ErrAuthentication{
					Reason: `"Authorization" header is missing.`,
				},
			)
			return
		}
		headerValueParts := strings.SplitN(headerValue, " ", 2)
		if len(headerValueParts) != 2 || headerValueParts[0] != "Bearer" {
			t.WriteAPIResponse(
				w,
				http.StatusUnauthorized,
				&meta.ErrAuthentication{
					Reason: `"Authorization" header is malformed.`,
				},
			)
			return
		}
		if crypto.ShortSHA("", headerValueParts[1]) != t.hashedServiceToken {
			t.WriteAPIResponse(
				w,
				http.StatusUnauthorized,
				&meta.ErrAuthentication{
					Reason: "Token is invalid.",
				},
			)
			return
		}
		handle(w, r)
	}
}
