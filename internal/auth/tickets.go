package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/sudo-init-do/handyhub/internal/models"
)

type ticket struct {
	identity  Identity
	expiresAt time.Time
}

// Tickets issues single-use websocket connect tickets. Only a digest of each
// ticket is held, keyed with its expiry; Sweep evicts stale entries.
type Tickets struct {
	mu      sync.Mutex
	entries map[[blake2b.Size256]byte]ticket
	ttl     time.Duration
	Now     func() time.Time
}

func NewTickets(ttl time.Duration) *Tickets {
	return &Tickets{
		entries: make(map[[blake2b.Size256]byte]ticket),
		ttl:     ttl,
		Now:     time.Now,
	}
}

func (t *Tickets) TTL() time.Duration { return t.ttl }

// Issue returns a new ticket for id.
func (t *Tickets) Issue(id Identity) (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}
	value := base64.RawURLEncoding.EncodeToString(raw)
	expires := t.Now().Add(t.ttl)

	t.mu.Lock()
	t.entries[blake2b.Sum256([]byte(value))] = ticket{identity: id, expiresAt: expires}
	t.mu.Unlock()
	return value, expires, nil
}

// Redeem consumes value. A ticket works once and only before it expires.
func (t *Tickets) Redeem(value string) (Identity, error) {
	key := blake2b.Sum256([]byte(value))
	t.mu.Lock()
	entry, ok := t.entries[key]
	delete(t.entries, key)
	t.mu.Unlock()
	if !ok {
		return Identity{}, models.Unauthorized("unknown ticket")
	}
	if !t.Now().Before(entry.expiresAt) {
		return Identity{}, models.Unauthorized("ticket expired")
	}
	return entry.identity, nil
}

// Sweep drops expired tickets and returns how many were removed.
func (t *Tickets) Sweep() int {
	now := t.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, e := range t.entries {
		if !now.Before(e.expiresAt) {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (t *Tickets) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
