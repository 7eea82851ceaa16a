package jmapapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/hrmny/jig/consts"
	"github.com/hrmny/jig/helpers"
	"github.com/hrmny/jig/logger"
	"github.com/hrmny/jig/pkg/metrics"
	"github.com/hrmny/jig/server"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	contextKeyIdentity  contextKey = "identity"
	contextKeySessionID contextKey = "sessionID"
)

// Identity is the authenticated principal attached to a request after the
// authentication bridge admits it. Read-only for downstream handlers.
type Identity struct {
	Principal string
}

// IdentityFromContext retrieves the authenticated identity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKeyIdentity).(Identity)
	return identity, ok
}

func sessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeySessionID).(string)
	return id, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Basic")
	writeProblem(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

// basicAuthMiddleware is the authentication bridge: it turns the request's
// Basic credentials into a cached, authenticated backend connection for the
// caller's session, attaches the identity, and rejects everything else with
// a uniform 401. A cached session is trusted without re-checking the
// supplied credentials, so the backend login runs once per session.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values := r.Header.Values("Authorization")
		if len(values) == 0 {
			logger.Debug("missing authorization header", "remote", r.RemoteAddr)
			unauthorized(w)
			return
		}
		if len(values) > 1 {
			logger.Warn("multiple authorization headers", "remote", r.RemoteAddr)
			unauthorized(w)
			return
		}
		if values[0] == "" {
			logger.Debug("empty authorization header", "remote", r.RemoteAddr)
			unauthorized(w)
			return
		}

		creds, err := server.DecodeBasicAuth(values[0])
		if err != nil {
			logger.Info("rejected malformed credentials",
				"remote", r.RemoteAddr,
				"header", helpers.MaskAuthorization(values[0]),
				"error", err)
			metrics.AuthAttempts.WithLabelValues("malformed").Inc()
			unauthorized(w)
			return
		}

		ctx := r.Context()
		sessionID := s.sessions.EnsureSessionID(w, r)

		s.limiter.Delay(ctx, r.RemoteAddr)

		err = s.cache.EnsureConnection(ctx, sessionID, creds)
		s.limiter.Record(r.RemoteAddr, err == nil)
		if err != nil {
			// A backend outage is deliberately indistinguishable from a bad
			// password on the wire; the log severity tells them apart.
			if errors.Is(err, consts.ErrConnectionFailed) {
				logger.Error("backend unreachable during authentication", "user", creds.Username, "error", err)
				metrics.AuthAttempts.WithLabelValues("backend_error").Inc()
			} else {
				logger.Info("authentication rejected", "user", creds.Username)
				metrics.AuthAttempts.WithLabelValues("rejected").Inc()
			}
			unauthorized(w)
			return
		}

		metrics.AuthAttempts.WithLabelValues("success").Inc()

		ctx = context.WithValue(ctx, contextKeyIdentity, Identity{Principal: creds.Username})
		ctx = context.WithValue(ctx, contextKeySessionID, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
