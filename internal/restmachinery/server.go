package restmachinery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/krancour/secureimage/internal/file"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// HealthCheck is a function that reports whether some dependency of a server
// is healthy.
type HealthCheck func(context.Context) error

// Server is an interface for the component that responds to HTTP API requests
type Server interface {
	// ListenAndServe causes the server to start serving HTTP requests. It will
	// block until an error occurs or the context is canceled.
	ListenAndServe(ctx context.Context) error
	// Handler returns the server's root http.Handler.
	Handler() http.Handler
}

type server struct {
	*BaseEndpoints // The server itself exposes health check endpoints
	config         Config
	handler        http.Handler
	healthChecks   []HealthCheck
}

// NewServer returns a REST API server
func NewServer(
	config Config,
	baseEndpoints *BaseEndpoints,
	endpoints []Endpoints,
	healthChecks ...HealthCheck,
) Server {
	router := mux.NewRouter()
	router.StrictSlash(true)

	for _, eps := range endpoints {
		eps.Register(router)
	}

	s := &server{
		BaseEndpoints: baseEndpoints,
		config:        config,
		handler: cors.New(
			cors.Options{
				AllowedMethods: []string{"DELETE", "GET", "POST", "PUT"},
			},
		).Handler(router),
		healthChecks: healthChecks,
	}

	// Health check
	router.HandleFunc(
		"/healthz",
		s.checkHealth, // No filters applied to this request
	).Methods(http.MethodGet)

	return s
}

func (s *server) Handler() http.Handler {
	return s.handler
}

func (s *server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port()),
		Handler: h2c.NewHandler(s.handler, &http2.Server{}),
	}
	tlsEnabled := s.config.TLSEnabled() &&
		file.Exists(s.config.TLSCertPath()) &&
		file.Exists(s.config.TLSKeyPath())
	if tlsEnabled {
		srv.Handler = s.handler
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsEnabled {
			glog.Infof(
				"Server is listening with TLS enabled on 0.0.0.0:%d",
				s.config.Port(),
			)
			errCh <- srv.ListenAndServeTLS(
				s.config.TLSCertPath(),
				s.config.TLSKeyPath(),
			)
			return
		}
		glog.Infof(
			"Server is listening without TLS on 0.0.0.0:%d",
			s.config.Port(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "error serving HTTP")
	case <-ctx.Done():
		shutdownCtx, cancel :=
			context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "error shutting down HTTP server")
		}
		return ctx.Err()
	}
}

func (s *server) checkHealth(w http.ResponseWriter, r *http.Request) {
	s.ServeRequest(
		InboundRequest{
			W: w,
			R: r,
			EndpointLogic: func() (interface{}, error) {
				for _, check := range s.healthChecks {
					if err := check(r.Context()); err != nil {
						return nil, err
					}
				}
				return struct{}{}, nil
			},
			SuccessCode: http.StatusOK,
		},
	)
}
