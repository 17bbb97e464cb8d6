package app

import (
	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

// Orchestrator wires presence, relay and room membership together for
// the transport adapters. It owns no state of its own.
type Orchestrator struct {
	Presence *Presence
	Relay    *Relay
	Rooms    *Rooms
}

func NewOrchestrator(presence *Presence, relay *Relay, rooms *Rooms) *Orchestrator {
	return &Orchestrator{Presence: presence, Relay: relay, Rooms: rooms}
}

// OnDisconnect tears down whatever the identity was part of. Roster
// removal must not wait for a "connection failed" signal from peers,
// which may lag real reachability. The session guard mirrors
// Presence.Unbind: a replaced connection dying late must not evict the
// identity's fresh session from its room.
func (o *Orchestrator) OnDisconnect(id domain.Identity, sess core.Session) {
	if cur, ok := o.Presence.Lookup(id); !ok || cur != sess {
		log.Debug().Str("module", "app.orchestrator").Str("id", string(id)).Msg("stale disconnect, identity rebound")
		return
	}
	o.Rooms.Drop(id)
	log.Info().Str("module", "app.orchestrator").Str("id", string(id)).Msg("disconnect cleanup")
}
