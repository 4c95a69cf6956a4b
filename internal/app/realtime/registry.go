package realtime

import (
	"sort"
	"sync"
)

// Conn is one live client connection. Send must not block: a connection that
// cannot accept the envelope right away returns an error instead.
type Conn interface {
	ID() string
	Send(env Envelope) error
	Close() error
}

// Registry maps each user to its single live connection. The last connection
// registered for a user wins.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	version uint64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register stores conn for userID and returns the connection it replaced, if any.
func (r *Registry) Register(userID string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	r.version++
	if prev != nil && prev.ID() == conn.ID() {
		return nil
	}
	return prev
}

// Unregister removes userID only while conn is still the registered handle.
// A disconnect from a superseded connection is a no-op and reports false.
func (r *Registry) Unregister(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.conns[userID]
	if !ok || conn == nil || current.ID() != conn.ID() {
		return false
	}
	delete(r.conns, userID)
	r.version++
	return true
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Snapshot returns the sorted online set and the registry version it reflects.
func (r *Registry) Snapshot() PresencePayload {
	snap, _ := r.view()
	return snap
}

func (r *Registry) Connections() []Conn {
	_, conns := r.view()
	return conns
}

func (r *Registry) view() (PresencePayload, []Conn) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	online := make([]string, 0, len(r.conns))
	conns := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		online = append(online, id)
		conns = append(conns, c)
	}
	sort.Strings(online)
	return PresencePayload{Online: online, Version: r.version}, conns
}
