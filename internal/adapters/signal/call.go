package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

// handleCallSignal relays accept/reject/end to the addressed identity.
// The sender's own identity is stamped server-side; clients never trust
// a peer-supplied "from".
func (ctl *Controller) handleCallSignal(id domain.Identity, conn *WsConn, data []byte) {
	var p core.CallSignal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.To == "" {
		ctl.sendError(conn, "missing target")
		return
	}
	p.From = id
	log.Info().Str("module", "signal").Str("type", string(p.Kind)).
		Str("from", string(id)).Str("to", string(p.To)).Msg("relay call signal")
	ctl.Orch.Relay.Forward(p.To, p)
}

// handleNegotiation relays offer/answer/candidate verbatim. Ordering
// between distinct kinds is not guaranteed; receivers buffer candidates
// that outrun their description.
func (ctl *Controller) handleNegotiation(id domain.Identity, conn *WsConn, data []byte) {
	var p core.Negotiation
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad negotiation payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.To == "" {
		ctl.sendError(conn, "missing target")
		return
	}
	p.From = id
	ctl.Orch.Relay.Forward(p.To, p)
}
