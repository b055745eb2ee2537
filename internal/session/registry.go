// Package session tracks which live connections watch which match.
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

// Role is the part a connection plays in its match.
type Role string

const (
	RoleWhite    Role = "white"
	RoleBlack    Role = "black"
	RoleObserver Role = "observer"
)

// Seated reports whether the role holds a seat.
func (r Role) Seated() bool { return r == RoleWhite || r == RoleBlack }

// Conn is the outbound side of one client connection.
type Conn interface {
	ID() string
	Send(ctx context.Context, msg *chessdto.ServerMessage) error
}

// Entry is the registry's view of one connection.
type Entry struct {
	Conn     Conn
	Identity string
	MatchID  int
	Role     Role
}

// Registry maps connections to matches and back.
// All methods are safe for concurrent use; sends happen outside the lock.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Entry        // connID → entry
	matches map[int]map[string]Conn // matchID → connID → conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]Entry),
		matches: make(map[int]map[string]Conn),
	}
}

// Add registers conn in matchID. A connection already registered elsewhere is
// moved, so a connection belongs to at most one match.
func (r *Registry) Add(conn Conn, identity string, matchID int, role Role) error {
	if conn == nil || conn.ID() == "" {
		return fmt.Errorf("session: connection without id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn.ID())
	r.conns[conn.ID()] = Entry{Conn: conn, Identity: identity, MatchID: matchID, Role: role}
	set := r.matches[matchID]
	if set == nil {
		set = make(map[string]Conn)
		r.matches[matchID] = set
	}
	set[conn.ID()] = conn
	return nil
}

// Remove unregisters connID. It is safe to call more than once; the second
// result reports whether anything was removed.
func (r *Registry) Remove(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID)
}

func (r *Registry) removeLocked(connID string) (Entry, bool) {
	e, ok := r.conns[connID]
	if !ok {
		return Entry{}, false
	}
	delete(r.conns, connID)
	if set, ok := r.matches[e.MatchID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.matches, e.MatchID)
		}
	}
	return e, true
}

// Lookup returns the entry for connID.
func (r *Registry) Lookup(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	return e, ok
}

// Count returns the number of connections in matchID.
func (r *Registry) Count(matchID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches[matchID])
}

// Unicast sends msg to connID if it is registered.
func (r *Registry) Unicast(ctx context.Context, connID string, msg *chessdto.ServerMessage) error {
	e, ok := r.Lookup(connID)
	if !ok {
		return fmt.Errorf("session: connection %s not registered", connID)
	}
	return e.Conn.Send(ctx, msg)
}

// Broadcast sends msg to every connection in matchID.
func (r *Registry) Broadcast(ctx context.Context, matchID int, msg *chessdto.ServerMessage) {
	r.BroadcastExcept(ctx, matchID, "", msg)
}

// BroadcastExcept sends msg to every connection in matchID except excluded.
// Delivery failures are logged; the transport owns removal of dead connections.
func (r *Registry) BroadcastExcept(ctx context.Context, matchID int, excluded string, msg *chessdto.ServerMessage) {
	targets := r.snapshot(matchID, excluded)
	for _, c := range targets {
		if err := c.Send(ctx, msg); err != nil {
			obslog.L().Warn("session_send_failed",
				zap.String("conn_id", c.ID()),
				zap.Int("match_id", matchID),
				zap.String("type", string(msg.ServerMessageType)),
				zap.Error(err),
			)
		}
	}
}

func (r *Registry) snapshot(matchID int, excluded string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.matches[matchID]
	out := make([]Conn, 0, len(set))
	for id, c := range set {
		if id != excluded {
			out = append(out, c)
		}
	}
	return out
}
