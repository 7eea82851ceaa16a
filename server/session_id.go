package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the signed session id.
const SessionCookieName = "jig_session"

// SessionIDManager issues and validates opaque per-client session ids. The
// id is a random UUID; the cookie value carries it together with an HMAC
// signature so a client cannot mint ids of its own choosing. The id itself
// is only ever used as a cache key.
type SessionIDManager struct {
	secret []byte
	secure bool
}

// NewSessionIDManager creates a session id manager signing with the given
// secret. secure controls the cookie's Secure attribute.
func NewSessionIDManager(secret string, secure bool) *SessionIDManager {
	return &SessionIDManager{secret: []byte(secret), secure: secure}
}

// EnsureSessionID returns the caller's session id, issuing a fresh one on
// the response when the request carries no valid session cookie. The id is
// stable across requests from the same client as long as the cookie
// round-trips.
func (m *SessionIDManager) EnsureSessionID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := m.sessionIDFromRequest(r); ok {
		return id
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id + "." + m.sign(id),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return id
}

// sessionIDFromRequest extracts and verifies the session id cookie.
func (m *SessionIDManager) sessionIDFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}

	id, sig, found := strings.Cut(cookie.Value, ".")
	if !found || id == "" {
		return "", false
	}

	if !hmac.Equal([]byte(sig), []byte(m.sign(id))) {
		return "", false
	}

	return id, true
}

func (m *SessionIDManager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
