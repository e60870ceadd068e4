// Package presence tracks which identities currently hold a live realtime
// connection and which rooms those connections are subscribed to.
package presence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Event is one realtime frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Marshal encodes e as a wire frame.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Conn is a live realtime handle for one identity.
type Conn interface {
	UserID() string
	Send(Event) error
}

// OnlineStore persists the durable online flag.
type OnlineStore interface {
	SetOnline(ctx context.Context, id string, online bool) error
}

// Registry maps identity to its current connection. Last writer wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn

	// flags serializes durable flag writes per identity.
	flags sync.Map

	store OnlineStore
	log   zerolog.Logger
}

func NewRegistry(store OnlineStore, logger zerolog.Logger) *Registry {
	return &Registry{
		conns: make(map[string]Conn),
		store: store,
		log:   logger.With().Str("component", "presence").Logger(),
	}
}

// Register records conn as the live connection for id, replacing any
// previous one.
func (r *Registry) Register(ctx context.Context, id string, conn Conn) {
	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()
	r.syncOnline(ctx, id)
}

// Unregister removes id unconditionally.
func (r *Registry) Unregister(ctx context.Context, id string) {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if ok {
		r.syncOnline(ctx, id)
	}
}

// Release removes id only while conn is still its current connection, so a
// stale socket closing after a reconnect leaves the new one in place.
func (r *Registry) Release(ctx context.Context, id string, conn Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[id]
	if !ok || cur != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, id)
	r.mu.Unlock()
	r.syncOnline(ctx, id)
	return true
}

func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Online reports the number of registered identities.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Push sends ev to id if present. It reports whether the identity was
// present; a send failure is returned as the error.
func (r *Registry) Push(id string, ev Event) (bool, error) {
	c, ok := r.Lookup(id)
	if !ok {
		return false, nil
	}
	return true, c.Send(ev)
}

// syncOnline persists whether id is present, read under the identity's flag
// lock. The last write for an identity always reflects the map.
func (r *Registry) syncOnline(ctx context.Context, id string) {
	if r.store == nil {
		return
	}
	l, _ := r.flags.LoadOrStore(id, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	_, online := r.Lookup(id)
	if err := r.store.SetOnline(ctx, id, online); err != nil {
		r.log.Warn().Err(err).Str("user_id", id).Bool("online", online).Msg("persist online flag")
	}
}
