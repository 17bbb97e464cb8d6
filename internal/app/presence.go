package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

type presenceEntry struct {
	Session core.Session
	Cancel  context.CancelFunc
}

// Presence maps a stable identity to exactly one live connection.
// A new connection from the same identity replaces the older entry
// ("last connection wins"); the replaced connection's context is
// canceled so its pumps exit instead of lingering half-reachable.
type Presence struct {
	mu      sync.RWMutex
	entries map[domain.Identity]*presenceEntry
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[domain.Identity]*presenceEntry)}
}

func (p *Presence) Bind(id domain.Identity, sess core.Session, cancel context.CancelFunc) {
	p.mu.Lock()
	old := p.entries[id]
	p.entries[id] = &presenceEntry{Session: sess, Cancel: cancel}
	p.mu.Unlock()

	if old != nil {
		if old.Cancel != nil {
			old.Cancel()
		}
		// The read pump re-checks its context only between frames, so a
		// silent stale tab would otherwise linger until it next speaks.
		// Closing the transport errors its blocking read out now.
		old.Session.Signal().Close()
	}
	log.Info().Str("module", "app.presence").Str("id", string(id)).Msg("bound connection")
}

func (p *Presence) Lookup(id domain.Identity) (core.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.entries[id]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind removes the entry only if it still refers to sess. A reconnect
// races the old pump's deferred unbind; the guard keeps the fresh
// binding from being torn down by the stale one.
func (p *Presence) Unbind(id domain.Identity, sess core.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok && e.Session == sess {
		delete(p.entries, id)
		log.Info().Str("module", "app.presence").Str("id", string(id)).Msg("unbound connection")
	}
}

func (p *Presence) Reachable(id domain.Identity) bool {
	_, ok := p.Lookup(id)
	return ok
}
