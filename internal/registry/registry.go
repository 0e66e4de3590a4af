// Package registry tracks per-connection runtime state. It is the only shared
// mutable structure in the routing core: one mutex guards every mutation and
// every scan, so fan-out never observes a half-mutated entry and nothing is
// ever delivered to an already-closed connection.
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Sender issues a transport write for one connection. It must not block;
// implementations push onto a bounded outbound queue and report whether the
// frame was enqueued.
type Sender interface {
	TrySend(payload []byte) bool
}

// State is the routing-relevant snapshot of one connection.
type State struct {
	ID            string
	Authenticated bool
	UserID        string
	Username      string
	SessionID     string
	CurrentRoom   string
}

// Conn is a view of one live entry. It is only valid for the duration of the
// ForEach callback that produced it.
type Conn struct {
	State
	sender Sender
}

// TrySend enqueues a frame on the connection's transport.
func (c Conn) TrySend(payload []byte) bool {
	return c.sender.TrySend(payload)
}

var errIdentityRequired = errors.New("registry: authenticate requires user id and session id")

type entry struct {
	state  State
	sender Sender
}

// Registry owns the connection map. All methods are safe for use from any
// goroutine; the lock is never held across blocking I/O.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*entry)}
}

// Open registers a new unauthenticated connection and returns its handle.
func (r *Registry) Open(sender Sender) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &entry{state: State{ID: id}, sender: sender}
	return id
}

// Authenticate promotes a connection. There is no downgrade transition.
func (r *Registry) Authenticate(id, userID, username, sessionID string) error {
	if userID == "" || sessionID == "" {
		return errIdentityRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return errors.New("registry: connection not found")
	}
	e.state.Authenticated = true
	e.state.UserID = userID
	e.state.Username = username
	e.state.SessionID = sessionID
	return nil
}

// SetCurrentRoom records which room the connection is viewing; empty clears it.
func (r *Registry) SetCurrentRoom(id, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.state.CurrentRoom = roomID
	}
}

// Get returns the current state of a connection.
func (r *Registry) Get(id string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Close removes the connection and returns its prior state, so the caller can
// run disconnect side effects exactly once. The second return is false if the
// connection was already closed.
func (r *Registry) Close(id string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return State{}, false
	}
	delete(r.conns, id)
	return e.state, true
}

// SendTo issues a transport write to one connection by handle, regardless of
// authentication state. Used for direct replies to the requesting connection.
func (r *Registry) SendTo(id string, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	return e.sender.TrySend(payload)
}

// ForEach runs fn for every connection under the registry lock. fn must not
// block and must not call back into the registry.
func (r *Registry) ForEach(fn func(Conn)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.conns {
		fn(Conn{State: e.state, sender: e.sender})
	}
}

// Snapshot lists the state of every connection.
func (r *Registry) Snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.state)
	}
	return out
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
