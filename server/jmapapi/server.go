package jmapapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/hrmny/jig/config"
	"github.com/hrmny/jig/logger"
	"github.com/hrmny/jig/pkg/metrics"
	"github.com/hrmny/jig/server"
)

// Server is the JMAP HTTP frontend. It authenticates requests against the
// IMAP backend through the session cache and serves the session resource
// and the method call endpoint.
type Server struct {
	name           string
	addr           string
	allowedOrigins []string
	sessions       *server.SessionIDManager
	limiter        *server.AuthLimiter
	cache          *server.SessionCache
	server         *http.Server
	readTimeout    time.Duration
	writeTimeout   time.Duration
	tls            bool
	tlsConfig      *tls.Config // TLS config from manager (takes precedence) or nil
	tlsCertFile    string
	tlsKeyFile     string
}

// ServerOptions holds configuration options for the JMAP server
type ServerOptions struct {
	Name           string
	Addr           string
	SessionSecret  string
	AllowedOrigins []string
	AuthLimiter    config.AuthLimiterConfig
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TLS            bool
	TLSConfig      *tls.Config // TLS config from manager (takes precedence over cert files)
	TLSCertFile    string
	TLSKeyFile     string
}

// New creates a new JMAP server on top of the given session cache.
func New(cache *server.SessionCache, options ServerOptions) (*Server, error) {
	if options.SessionSecret == "" {
		return nil, fmt.Errorf("session secret is required for JMAP server")
	}

	if options.TLS {
		// If TLSConfig is provided (from manager), use it. Otherwise require cert files.
		if options.TLSConfig == nil {
			if options.TLSCertFile == "" || options.TLSKeyFile == "" {
				return nil, fmt.Errorf("TLS certificate and key files are required when TLS is enabled (or use TLS manager)")
			}
		}
	}

	if options.ReadTimeout == 0 {
		options.ReadTimeout = 30 * time.Second
	}
	if options.WriteTimeout == 0 {
		options.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		name:           options.Name,
		addr:           options.Addr,
		allowedOrigins: options.AllowedOrigins,
		sessions:       server.NewSessionIDManager(options.SessionSecret, options.TLS),
		limiter:        server.NewAuthLimiter(options.AuthLimiter),
		cache:          cache,
		readTimeout:    options.ReadTimeout,
		writeTimeout:   options.WriteTimeout,
		tls:            options.TLS,
		tlsConfig:      options.TLSConfig,
		tlsCertFile:    options.TLSCertFile,
		tlsKeyFile:     options.TLSKeyFile,
	}

	return s, nil
}

// Start starts the JMAP server and blocks until it exits.
func Start(ctx context.Context, cache *server.SessionCache, options ServerOptions, errChan chan error) {
	jmapServer, err := New(cache, options)
	if err != nil {
		errChan <- fmt.Errorf("failed to create JMAP server: %w", err)
		return
	}

	protocol := "HTTP"
	if options.TLS {
		protocol = "HTTPS"
	}
	serverName := options.Name
	if serverName == "" {
		serverName = "default"
	}
	logger.Info("JMAP: Starting server", "name", serverName, "protocol", protocol, "addr", options.Addr)
	if err := jmapServer.start(ctx); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- fmt.Errorf("JMAP server failed: %w", err)
	}
}

func (s *Server) start(ctx context.Context) error {
	router := s.SetupRoutes()

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("JMAP: Shutting down server...", "name", s.name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("JMAP: Error shutting down server", "name", s.name, "error", err)
		}
		s.limiter.Stop()
	}()

	if s.tls {
		var tlsConfig *tls.Config
		if s.tlsConfig != nil {
			tlsConfig = s.tlsConfig.Clone()
		} else {
			tlsConfig = &tls.Config{
				MinVersion:    tls.VersionTLS12,
				Renegotiation: tls.RenegotiateNever,
			}
		}
		s.server.TLSConfig = tlsConfig

		// A manager-supplied config resolves certificates through its
		// GetCertificate callback, so no files are passed.
		if s.tlsConfig != nil {
			return s.server.ListenAndServeTLS("", "")
		}
		return s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.server.ListenAndServe()
}

// SetupRoutes configures all HTTP routes and middleware
func (s *Server) SetupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	router.Use(problemBackstopMiddleware)
	router.Use(s.corsMiddleware)

	router.Handle("/.well-known/jmap",
		s.basicAuthMiddleware(http.HandlerFunc(s.handleSessionDescriptor))).Methods("GET")
	router.Handle("/jmap",
		s.basicAuthMiddleware(http.HandlerFunc(s.handleJMAP))).Methods("POST")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "notFound", "no such resource")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "methodNotAllowed", "method not allowed")
	})

	return router
}

// maxRequestBytes caps the method call batch body, matching the
// maxSizeRequest limit advertised in the session descriptor.
const maxRequestBytes = 10_000_000

// handleJMAP decodes a method call batch, dispatches it against the
// caller's cached backend session, and returns the batched responses.
func (s *Server) handleJMAP(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "internal", "no identity on authenticated request")
		return
	}
	sessionID, ok := sessionIDFromContext(r.Context())
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "internal", "no session on authenticated request")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer body.Close()

	var req Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.Debug("request body over size limit", "remote", r.RemoteAddr)
			limit := "maxSizeRequest"
			writeJSON(w, http.StatusBadRequest, ProblemDetails{
				Type:   "limit",
				Status: http.StatusBadRequest,
				Detail: "request body exceeds the maxSizeRequest limit",
				Limit:  &limit,
			})
			return
		}
		var unknown *UnknownMethodError
		if errors.As(err, &unknown) {
			logger.Debug("unknown method in request", "method", unknown.Name, "call_id", unknown.CallID)
			writeProblem(w, http.StatusBadRequest, "unknownMethod",
				fmt.Sprintf("unknown method %q in call %q", unknown.Name, unknown.CallID))
			return
		}
		logger.Debug("malformed JMAP request", "error", err)
		writeProblem(w, http.StatusBadRequest, "invalidRequest", "malformed request body")
		return
	}

	api := NewAPI(sessionID, identity.Principal, s.cache)
	resp := api.HandleRequest(r.Context(), &req)
	writeJSON(w, http.StatusOK, resp)
}

// Middleware functions

// statusRecorder captures the response status for access logging and
// metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(sr.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.URL.Path).Observe(elapsed.Seconds())
		logger.Debug("JMAP: request completed",
			"name", s.name,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"remote", r.RemoteAddr,
			"duration", elapsed)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && len(s.allowedOrigins) > 0 {
			allowed := false
			for _, allowedOrigin := range s.allowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "3600")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
