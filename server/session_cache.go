package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrmny/jig/consts"
	"github.com/hrmny/jig/logger"
	"github.com/hrmny/jig/pkg/metrics"
	"github.com/hrmny/jig/server/imapbackend"
)

// BackendSession is the gateway's view of one authenticated backend
// connection. *imapbackend.Client implements it; tests substitute fakes.
type BackendSession interface {
	ListMailboxes(ctx context.Context) ([]imapbackend.MailboxInfo, error)
	Close() error
}

// ConnectFunc exchanges credentials for a live backend session.
type ConnectFunc func(ctx context.Context, creds Credentials) (BackendSession, error)

// sessionEntry holds one cached backend connection. The semaphore channel
// serializes all use of the connection; the backend protocol cannot
// multiplex commands from independent callers on one wire. ready is closed
// once the initial connect has finished, after which exactly one of conn
// and err is set. Entries are never mutated in place after that.
type sessionEntry struct {
	sem   chan struct{} // capacity 1
	ready chan struct{}
	conn  BackendSession
	err   error
}

// SessionCache maps opaque session ids to cached backend connections. It is
// the sole owner of those connections: the only way to use one is to borrow
// it through WithConnection. Distinct session ids never block each other;
// calls for the same id are fully serialized.
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	connect ConnectFunc
}

// NewSessionCache creates a session cache backed by the given connector.
func NewSessionCache(connect ConnectFunc) *SessionCache {
	return &SessionCache{
		entries: make(map[string]*sessionEntry),
		connect: connect,
	}
}

// EnsureConnection guarantees a live backend connection exists for the
// session id, invoking the connector at most once per fresh id even under
// concurrent first use. An existing entry is trusted without re-checking
// the supplied credentials. On connect failure the error is returned and no
// entry is left behind, so a later attempt with new credentials retries.
func (c *SessionCache) EnsureConnection(ctx context.Context, sessionID string, creds Credentials) error {
	c.mu.Lock()
	if entry, ok := c.entries[sessionID]; ok {
		c.mu.Unlock()
		// Another caller may still be connecting; wait for its outcome.
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		return entry.err
	}

	// Insert-or-get is atomic under the map lock: the entry is published in
	// a pending state so concurrent racers wait on ready instead of dialing
	// a second connection.
	entry := &sessionEntry{
		sem:   make(chan struct{}, 1),
		ready: make(chan struct{}),
	}
	c.entries[sessionID] = entry
	c.mu.Unlock()

	conn, err := c.connect(ctx, creds)
	if err != nil {
		entry.err = err
		close(entry.ready)

		c.mu.Lock()
		delete(c.entries, sessionID)
		c.mu.Unlock()

		metrics.BackendConnects.WithLabelValues("failure").Inc()
		return err
	}

	entry.conn = conn
	close(entry.ready)

	metrics.BackendConnects.WithLabelValues("success").Inc()
	metrics.SessionsCurrent.Set(float64(c.len()))
	logger.Debug("backend connection cached", "session_id", sessionID)
	return nil
}

// WithConnection borrows the cached backend connection for the session id
// and runs f against it while holding the entry's exclusive lock. The lock
// is released on every exit path, including panics, so a cancelled request
// cannot wedge the session. Returns consts.ErrNoSessionFound when no
// connection is cached for the id.
func (c *SessionCache) WithConnection(ctx context.Context, sessionID string, f func(BackendSession) error) error {
	c.mu.RLock()
	entry, ok := c.entries[sessionID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", consts.ErrNoSessionFound, sessionID)
	}

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if entry.err != nil {
		return fmt.Errorf("%w: %s", consts.ErrNoSessionFound, sessionID)
	}

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.sem }()

	return f(entry.conn)
}

// Len returns the number of cached sessions.
func (c *SessionCache) Len() int {
	return c.len()
}

func (c *SessionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close logs out every cached connection. Used at shutdown only; concurrent
// WithConnection calls race against it by design of process teardown.
func (c *SessionCache) Close() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*sessionEntry)
	c.mu.Unlock()

	for id, entry := range entries {
		select {
		case <-entry.ready:
		default:
			continue // still connecting, let it be torn down by process exit
		}
		if entry.conn != nil {
			if err := entry.conn.Close(); err != nil {
				logger.Warn("error closing backend connection", "session_id", id, "error", err)
			}
		}
	}
	metrics.SessionsCurrent.Set(0)
}
