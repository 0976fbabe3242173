package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/postbox-io/postbox/pkg/httputil"
	"github.com/postbox-io/postbox/pkg/identity"
	"github.com/postbox-io/postbox/pkg/observability"
	"github.com/postbox-io/postbox/pkg/service"
)

const maxRequestBody = 1 << 20 // 1 MiB

// CertsProvider exposes the identity provider's JWKS document so API
// consumers can validate tokens themselves.
type CertsProvider interface {
	Certs(ctx context.Context) (json.RawMessage, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds the HTTP server settings.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the content backend.
type Server struct {
	config   Config
	router   *mux.Router
	server   *http.Server
	posts    *service.PostService
	comments *service.CommentService
	sync     *service.SyncService
	verifier identity.TokenVerifier
	certs    CertsProvider
	db       HealthChecker
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewServer wires the routes and middleware chain. The metrics endpoint is
// served separately by the operational listener, not here. limiter may be
// nil when no shared limiter store is configured.
func NewServer(
	config Config,
	posts *service.PostService,
	comments *service.CommentService,
	syncService *service.SyncService,
	verifier identity.TokenVerifier,
	certs CertsProvider,
	db HealthChecker,
	limiter *httputil.RateLimiter,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		config:   config,
		router:   mux.NewRouter(),
		posts:    posts,
		comments: comments,
		sync:     syncService,
		verifier: verifier,
		certs:    certs,
		db:       db,
		logger:   logger,
		metrics:  metrics,
	}
	s.setupRoutes()

	middlewares := []httputil.Middleware{
		httputil.RequestIDMiddleware(),
		httputil.RecoveryMiddleware(logger),
		observability.HTTPMetricsMiddleware(metrics),
		httputil.MaxBytesMiddleware(maxRequestBody),
		AuthMiddleware(verifier, logger),
	}
	if limiter != nil {
		// Inside auth so the limit key is the authenticated subject.
		middlewares = append(middlewares, httputil.RateLimitMiddleware(limiter, logger))
	}
	handler := httputil.Chain(s.router, middlewares...)
	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/posts", s.handleCreatePost).Methods(http.MethodPost)
	v1.HandleFunc("/posts", s.handleListPosts).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}", s.handleGetPost).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}", s.handleUpdatePost).Methods(http.MethodPut)
	v1.HandleFunc("/posts/{id}", s.handleDeletePost).Methods(http.MethodDelete)

	v1.HandleFunc("/comments", s.handleCreateComment).Methods(http.MethodPost)
	v1.HandleFunc("/comments", s.handleListComments).Methods(http.MethodGet)
	v1.HandleFunc("/comments/{id}", s.handleGetComment).Methods(http.MethodGet)
	v1.HandleFunc("/comments/{id}", s.handleUpdateComment).Methods(http.MethodPut)
	v1.HandleFunc("/comments/{id}", s.handleDeleteComment).Methods(http.MethodDelete)

	v1.HandleFunc("/authentication/webhook/events-synchronization", s.handleSyncWebhook).Methods(http.MethodPost)
	v1.HandleFunc("/authentication/certs", s.handleCerts).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
}

// Handler exposes the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.config.ListenAddr).Info("api server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}
