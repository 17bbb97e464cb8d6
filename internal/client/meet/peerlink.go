package meet

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/client/rtc"
	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

// peerLink is one side of a point-to-point connection within the room.
// It may exist before its connection does: candidates frequently arrive
// ahead of the offer that creates the connection and are buffered here.
type peerLink struct {
	remote        domain.Identity
	conn          rtc.PeerConn
	pending       []core.Candidate
	remoteApplied bool
	camera        rtc.RemoteTrack
	screen        rtc.RemoteTrack
	audio         rtc.RemoteTrack
}

func (l *peerLink) close() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.pending = nil
	l.remoteApplied = false
}

// bareLinkLocked returns the link for the peer, creating a
// connection-less placeholder if needed (candidate-before-offer case).
func (o *Orchestrator) bareLinkLocked(id domain.Identity) *peerLink {
	l, ok := o.links[id]
	if !ok {
		l = &peerLink{remote: id}
		o.links[id] = l
	}
	return l
}

// connectLocked attaches a fresh connection to the link: local tracks
// (screen included while sharing), candidate relay, demux, failure
// teardown scoped to this one link.
func (o *Orchestrator) connectLocked(l *peerLink) error {
	if l.conn != nil {
		return nil
	}
	conn, err := o.opts.Factory.NewConn()
	if err != nil {
		return err
	}
	tracks := o.opts.LocalTracks
	if o.sharing && o.screenTrack != nil {
		tracks = append(append([]rtc.LocalTrack{}, tracks...), o.screenTrack)
	}
	for _, t := range tracks {
		if err := conn.AddTrack(t); err != nil {
			_ = conn.Close()
			return err
		}
	}

	remote := l.remote
	conn.OnCandidate(func(c core.Candidate) {
		_ = o.opts.Signal.Send(core.Negotiation{
			Kind: core.EvNegCandidate, To: remote, Room: o.opts.Room, Candidate: &c,
		})
	})
	conn.OnTrack(func(t rtc.RemoteTrack) {
		o.onRemoteTrack(remote, t)
	})
	conn.OnStateChange(func(s rtc.ConnState) {
		if s == rtc.StateFailed || s == rtc.StateClosed {
			o.dropLink(remote)
		}
	})

	l.conn = conn
	return nil
}

func (o *Orchestrator) sendOffer(id domain.Identity) {
	o.mu.Lock()
	l := o.bareLinkLocked(id)
	if err := o.connectLocked(l); err != nil {
		o.mu.Unlock()
		log.Error().Err(err).Str("module", "client.meet").Str("peer", string(id)).Msg("connect")
		return
	}
	offer, err := l.conn.CreateOffer()
	o.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("module", "client.meet").Str("peer", string(id)).Msg("create offer")
		return
	}
	_ = o.opts.Signal.Send(core.Negotiation{
		Kind: core.EvNegOffer, To: id, Room: o.opts.Room, SDP: offer,
	})
}

// handleOffer covers both first negotiation and screen-share
// renegotiation on an existing link.
func (o *Orchestrator) handleOffer(data json.RawMessage) {
	var p core.Negotiation
	if err := json.Unmarshal(data, &p); err != nil || p.Room != o.opts.Room {
		return
	}
	o.mu.Lock()
	if o.left {
		o.mu.Unlock()
		return
	}
	l := o.bareLinkLocked(p.From)
	if err := o.connectLocked(l); err != nil {
		o.mu.Unlock()
		log.Error().Err(err).Str("module", "client.meet").Str("peer", string(p.From)).Msg("connect on offer")
		return
	}
	if err := l.conn.SetRemoteDescription(rtc.SDPOffer, p.SDP); err != nil {
		o.mu.Unlock()
		log.Error().Err(err).Str("module", "client.meet").Str("peer", string(p.From)).Msg("apply offer")
		o.dropLink(p.From)
		return
	}
	l.remoteApplied = true
	o.drainLocked(l)
	answer, err := l.conn.CreateAnswer()
	o.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("module", "client.meet").Str("peer", string(p.From)).Msg("create answer")
		return
	}
	_ = o.opts.Signal.Send(core.Negotiation{
		Kind: core.EvNegAnswer, To: p.From, Room: o.opts.Room, SDP: answer,
	})
}

func (o *Orchestrator) handleAnswer(data json.RawMessage) {
	var p core.Negotiation
	if err := json.Unmarshal(data, &p); err != nil || p.Room != o.opts.Room {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[p.From]
	if !ok || l.conn == nil {
		return
	}
	if err := l.conn.SetRemoteDescription(rtc.SDPAnswer, p.SDP); err != nil {
		log.Error().Err(err).Str("module", "client.meet").Str("peer", string(p.From)).Msg("apply answer")
		return
	}
	l.remoteApplied = true
	o.drainLocked(l)
}

// handleCandidate buffers until the owning connection exists and its
// remote description is applied; buffered candidates drain in arrival
// order, each applied exactly once.
func (o *Orchestrator) handleCandidate(data json.RawMessage) {
	var p core.Negotiation
	if err := json.Unmarshal(data, &p); err != nil || p.Room != o.opts.Room || p.Candidate == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.left {
		return
	}
	l := o.bareLinkLocked(p.From)
	if l.conn == nil || !l.remoteApplied {
		l.pending = append(l.pending, *p.Candidate)
		return
	}
	if err := l.conn.AddCandidate(*p.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "client.meet").Str("peer", string(p.From)).Msg("add candidate")
	}
}

func (o *Orchestrator) drainLocked(l *peerLink) {
	for _, c := range l.pending {
		if err := l.conn.AddCandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "client.meet").Str("peer", string(l.remote)).Msg("drain candidate")
		}
	}
	l.pending = nil
}

// onRemoteTrack classifies an inbound track: explicit display-capture
// tag wins; otherwise a second video track from the same peer is the
// screen share by convention.
func (o *Orchestrator) onRemoteTrack(from domain.Identity, t rtc.RemoteTrack) {
	o.mu.Lock()
	l, ok := o.links[from]
	if !ok || o.left {
		o.mu.Unlock()
		return
	}
	name := string(from)
	if p, ok := o.roster[from]; ok {
		name = p.Name
	}

	if t.Kind() == rtc.TrackAudio {
		l.audio = t
		o.mu.Unlock()
		if o.opts.Events.OnRemoteAudio != nil {
			o.opts.Events.OnRemoteAudio(from, t)
		}
		return
	}

	screen := strings.HasPrefix(t.StreamID(), rtc.ScreenStreamPrefix)
	if !screen && l.camera != nil {
		screen = true
	}
	if screen {
		l.screen = t
	} else {
		l.camera = t
	}
	o.mu.Unlock()

	if o.opts.Events.OnRemoteVideo != nil {
		o.opts.Events.OnRemoteVideo(from, name, t, screen)
	}
}

// dropLink tears down one peer's connection without touching the rest
// of the room. Negotiation failure is never fatal to the meeting.
func (o *Orchestrator) dropLink(id domain.Identity) {
	o.mu.Lock()
	l, ok := o.links[id]
	if ok {
		delete(o.links, id)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	l.close()
	log.Info().Str("module", "client.meet").Str("peer", string(id)).Msg("link dropped")
	if o.opts.Events.OnPeerGone != nil {
		o.opts.Events.OnPeerGone(id)
	}
}
