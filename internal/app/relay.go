package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/domain"
)

// Relay forwards signal events to the connection owned by a target
// identity. It holds no state beyond the presence registry.
type Relay struct {
	Presence *Presence
}

func NewRelay(p *Presence) *Relay {
	return &Relay{Presence: p}
}

// Forward delivers v to the target's connection verbatim. An absent or
// unreachable target is not an error: the sender detects "recipient
// offline" only through its own timeout.
func (r *Relay) Forward(target domain.Identity, v any) {
	sess, ok := r.Presence.Lookup(target)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("to", string(target)).Msg("target not registered, dropping")
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal")
		return
	}
	if err := sess.Signal().TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("to", string(target)).Msg("send dropped")
	}
}
