package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playgrid/backend/internal/auth"
	"github.com/playgrid/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrRateLimited       = errors.New("too many authentication attempts")
	ErrNotRegistered     = errors.New("connection not registered")
)

// Conn is one live bidirectional channel. The WS layer implements it.
type Conn interface {
	ID() string
	Origin() string
	Send(v any) bool
	Close(reason string)
}

type entry struct {
	conn          Conn
	identity      auth.Identity
	authenticated bool
	lastActivity  time.Time

	// per-connection failure window
	failedAttempts int
	firstFailAt    time.Time
}

// Registry is the single source of truth for which identities are currently
// reachable. It owns the connection table; the other engines consult it but
// never mutate it.
type Registry struct {
	verifier auth.TokenVerifier
	rdb      *redis.Client
	cfg      *config.Config

	mu          sync.RWMutex
	byConn      map[string]*entry
	byUser      map[string]string      // userID -> connID
	originFails map[string][]time.Time // in-memory fallback when Redis is absent
}

func New(verifier auth.TokenVerifier, rdb *redis.Client, cfg *config.Config) *Registry {
	return &Registry{
		verifier:    verifier,
		rdb:         rdb,
		cfg:         cfg,
		byConn:      make(map[string]*entry),
		byUser:      make(map[string]string),
		originFails: make(map[string][]time.Time),
	}
}

// Register tracks a freshly-connected, not-yet-authenticated connection.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[conn.ID()] = &entry{conn: conn, lastActivity: time.Now()}
}

// Authenticate validates the credential token and binds the connection to the
// identity it carries. At most one authenticated connection exists per user:
// a prior connection for the same user is notified and force-closed.
//
// Rate limiting is reported distinctly from credential failure so clients can
// tell retry-now from retry-later.
func (r *Registry) Authenticate(conn Conn, token string) (auth.Identity, error) {
	r.mu.Lock()
	e, ok := r.byConn[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return auth.Identity{}, ErrNotRegistered
	}

	window := time.Duration(r.cfg.AuthWindowSeconds) * time.Second

	// Per-connection window
	if e.failedAttempts > 0 && time.Since(e.firstFailAt) > window {
		e.failedAttempts = 0
	}
	if e.failedAttempts >= r.cfg.AuthMaxAttempts {
		r.mu.Unlock()
		return auth.Identity{}, ErrRateLimited
	}
	r.mu.Unlock()

	// Per-origin window (shared across connections from the same origin)
	if r.originLimited(conn.Origin(), window) {
		return auth.Identity{}, ErrRateLimited
	}

	identity, err := r.verifier.Verify(token)
	if err != nil {
		r.recordFailure(conn, window)
		return auth.Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var displaced Conn
	r.mu.Lock()
	// Re-fetch: the connection may have dropped while verifying
	e, ok = r.byConn[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return auth.Identity{}, ErrNotRegistered
	}

	// The connection may already hold a different identity from an earlier
	// handshake; its old user mapping must not survive the switch
	if e.authenticated && e.identity.UserID != identity.UserID {
		if r.byUser[e.identity.UserID] == conn.ID() {
			delete(r.byUser, e.identity.UserID)
		}
	}

	if oldConnID, exists := r.byUser[identity.UserID]; exists && oldConnID != conn.ID() {
		if old, ok := r.byConn[oldConnID]; ok {
			displaced = old.conn
			delete(r.byConn, oldConnID)
		}
		delete(r.byUser, identity.UserID)
	}

	e.identity = identity
	e.authenticated = true
	e.failedAttempts = 0
	e.lastActivity = time.Now()
	r.byUser[identity.UserID] = conn.ID()
	r.mu.Unlock()

	if displaced != nil {
		log.Printf("[REGISTRY] User %s reconnected elsewhere - closing old connection %s", identity.UserID, displaced.ID())
		displaced.Send(map[string]any{
			"type":    "displaced",
			"message": "Signed in from another connection",
		})
		displaced.Close("replaced by new connection")
	}

	return identity, nil
}

// recordFailure bumps the per-connection and per-origin counters.
func (r *Registry) recordFailure(conn Conn, window time.Duration) {
	r.mu.Lock()
	if e, ok := r.byConn[conn.ID()]; ok {
		if e.failedAttempts == 0 || time.Since(e.firstFailAt) > window {
			e.firstFailAt = time.Now()
			e.failedAttempts = 0
		}
		e.failedAttempts++
	}
	r.mu.Unlock()

	origin := conn.Origin()
	if r.rdb != nil {
		ctx := context.Background()
		key := "authfail:" + origin
		n, err := r.rdb.Incr(ctx, key).Result()
		if err == nil && n == 1 {
			r.rdb.Expire(ctx, key, window)
		}
		return
	}

	r.mu.Lock()
	r.originFails[origin] = append(r.pruneOriginLocked(origin, window), time.Now())
	r.mu.Unlock()
}

// originLimited reports whether the origin has exceeded its failure budget
// within the sliding window.
func (r *Registry) originLimited(origin string, window time.Duration) bool {
	if r.rdb != nil {
		n, err := r.rdb.Get(context.Background(), "authfail:"+origin).Int()
		if err != nil {
			return false
		}
		return n >= r.cfg.AuthMaxPerOrigin
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fails := r.pruneOriginLocked(origin, window)
	r.originFails[origin] = fails
	return len(fails) >= r.cfg.AuthMaxPerOrigin
}

func (r *Registry) pruneOriginLocked(origin string, window time.Duration) []time.Time {
	cutoff := time.Now().Add(-window)
	kept := r.originFails[origin][:0]
	for _, t := range r.originFails[origin] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// IsAuthenticated reports whether the connection completed the handshake.
func (r *Registry) IsAuthenticated(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[connID]
	return ok && e.authenticated
}

// Identity returns the identity bound to the connection, if any.
func (r *Registry) Identity(connID string) (auth.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[connID]
	if !ok || !e.authenticated {
		return auth.Identity{}, false
	}
	return e.identity, true
}

// Resolve maps a user id to their live connection.
func (r *Registry) Resolve(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	e, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Online reports whether the user has a live authenticated connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.Resolve(userID)
	return ok
}

// List returns a snapshot of all authenticated identities.
func (r *Registry) List() []auth.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]auth.Identity, 0, len(r.byUser))
	for _, connID := range r.byUser {
		if e, ok := r.byConn[connID]; ok {
			out = append(out, e.identity)
		}
	}
	return out
}

// Remove drops the connection unconditionally. Used on transport disconnect.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if e.authenticated && r.byUser[e.identity.UserID] == connID {
		delete(r.byUser, e.identity.UserID)
	}
}

// Touch refreshes the last-activity timestamp for the connection.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	if e, ok := r.byConn[connID]; ok {
		e.lastActivity = time.Now()
	}
	r.mu.Unlock()
}

// Count returns the number of tracked connections (authenticated or not).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Handler is an inbound event handler bound to a connection.
type Handler func(conn Conn, data []byte)

// RequireAuth wraps a handler so it only runs for authenticated connections.
// Unauthenticated callers get a standard auth_required signal instead.
func (r *Registry) RequireAuth(h Handler) Handler {
	return func(conn Conn, data []byte) {
		if !r.IsAuthenticated(conn.ID()) {
			conn.Send(map[string]any{
				"type":    "auth_required",
				"message": "Authentication required",
			})
			return
		}
		h(conn, data)
	}
}
