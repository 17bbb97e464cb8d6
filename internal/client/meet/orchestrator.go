// Package meet maintains the full-mesh peer topology for one meeting
// room: one point-to-point connection per pair of participants, driven
// entirely by roster broadcasts and relayed negotiation events.
package meet

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/client/rtc"
	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

var ErrNotJoined = errors.New("not joined to a room")

// Signal is the slice of the relay connection the mesh needs.
type Signal interface {
	Send(v any) error
	On(kind core.EventKind, h func(json.RawMessage))
}

// ScreenCapture acquires and releases the display-capture device.
type ScreenCapture interface {
	Start() (rtc.LocalTrack, error)
	Stop()
}

// Events are the outward-facing callbacks; all fire on the signal
// dispatch goroutine except track arrival, which fires on the media
// callback of the underlying connection.
type Events struct {
	OnRoster      func(core.RoomRoster)
	OnRemoteVideo func(id domain.Identity, name string, t rtc.RemoteTrack, screen bool)
	OnRemoteAudio func(id domain.Identity, t rtc.RemoteTrack)
	OnPeerGone    func(id domain.Identity)
	OnMediaState  func(ev core.RoomMedia)
	OnHandRaise   func(ev core.RoomHandRaise)
	OnShare       func(id domain.Identity, active bool)
	OnChat        func(ev core.RoomChat)
}

type Options struct {
	Self        domain.Identity
	SelfName    string
	Room        domain.RoomID
	Signal      Signal
	Factory     rtc.Factory
	Screen      ScreenCapture
	LocalTracks []rtc.LocalTrack
	Events      Events
}

type Orchestrator struct {
	opts Options

	mu     sync.Mutex
	joined bool
	left   bool
	host   domain.Identity
	roster map[domain.Identity]domain.Participant
	links  map[domain.Identity]*peerLink

	muted       bool
	cameraOff   bool
	sharing     bool
	screenTrack rtc.LocalTrack
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:   opts,
		roster: make(map[domain.Identity]domain.Participant),
		links:  make(map[domain.Identity]*peerLink),
	}
	sig := opts.Signal
	sig.On(core.EvRoomRoster, o.handleRoster)
	sig.On(core.EvNegOffer, o.handleOffer)
	sig.On(core.EvNegAnswer, o.handleAnswer)
	sig.On(core.EvNegCandidate, o.handleCandidate)
	sig.On(core.EvRoomMedia, o.handleMediaState)
	sig.On(core.EvRoomHandRaise, o.handleHandRaise)
	sig.On(core.EvShareStart, o.handleShareStart)
	sig.On(core.EvShareStop, o.handleShareStop)
	sig.On(core.EvRoomChat, o.handleChat)
	return o
}

// Join announces intent; the mesh is built reactively as the roster
// broadcast comes back.
func (o *Orchestrator) Join() error {
	o.mu.Lock()
	if o.left {
		o.mu.Unlock()
		return ErrNotJoined
	}
	o.joined = true
	o.mu.Unlock()
	return o.opts.Signal.Send(core.RoomJoin{
		Kind: core.EvRoomJoin,
		Room: o.opts.Room,
		Name: o.opts.SelfName,
	})
}

// Leave is idempotent and shares its teardown path with
// disconnect-detected removal: every link, buffered candidate and the
// capture device are released exactly once.
func (o *Orchestrator) Leave() {
	o.mu.Lock()
	if o.left {
		o.mu.Unlock()
		return
	}
	o.left = true
	o.joined = false
	links := o.links
	o.links = make(map[domain.Identity]*peerLink)
	sharing := o.sharing
	o.sharing = false
	o.screenTrack = nil
	o.mu.Unlock()

	_ = o.opts.Signal.Send(core.RoomLeave{Kind: core.EvRoomLeave, Room: o.opts.Room})
	for id, l := range links {
		l.close()
		log.Info().Str("module", "client.meet").Str("peer", string(id)).Msg("link closed on leave")
	}
	if sharing && o.opts.Screen != nil {
		o.opts.Screen.Stop()
	}
}

// Links reports which peers currently have a negotiated connection.
func (o *Orchestrator) Links() []domain.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.Identity, 0, len(o.links))
	for id, l := range o.links {
		if l.conn != nil {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) handleRoster(data json.RawMessage) {
	var ev core.RoomRoster
	if err := json.Unmarshal(data, &ev); err != nil || ev.Room != o.opts.Room {
		return
	}

	o.mu.Lock()
	if o.left {
		o.mu.Unlock()
		return
	}
	o.host = ev.Host

	present := make(map[domain.Identity]bool, len(ev.Participants))
	var newcomers []domain.Participant
	for _, p := range ev.Participants {
		present[p.ID] = true
		if _, known := o.roster[p.ID]; !known {
			o.roster[p.ID] = p
			if p.ID != o.opts.Self {
				newcomers = append(newcomers, p)
			}
		}
	}

	var gone []domain.Identity
	for id := range o.roster {
		if !present[id] {
			delete(o.roster, id)
			gone = append(gone, id)
		}
	}
	var closed []*peerLink
	for _, id := range gone {
		if l, ok := o.links[id]; ok {
			delete(o.links, id)
			closed = append(closed, l)
		}
	}

	var offers []domain.Identity
	for _, p := range newcomers {
		if o.shouldOfferLocked(p.ID) {
			offers = append(offers, p.ID)
		}
	}
	o.mu.Unlock()

	// Teardown does not wait for a connection-failed signal, which may
	// lag real roster state.
	for _, l := range closed {
		l.close()
	}
	for _, id := range gone {
		if o.opts.Events.OnPeerGone != nil {
			o.opts.Events.OnPeerGone(id)
		}
	}
	for _, id := range offers {
		o.sendOffer(id)
	}
	if o.opts.Events.OnRoster != nil {
		o.opts.Events.OnRoster(ev)
	}
}

// shouldOfferLocked is the offer-direction policy that yields exactly
// one negotiation per unordered pair without coordination: the host
// offers to everyone; a non-host offers only to non-host members whose
// identity compares greater than its own (the host pair is covered by
// the host's own offer).
func (o *Orchestrator) shouldOfferLocked(other domain.Identity) bool {
	self := o.opts.Self
	if self == other {
		return false
	}
	if self == o.host {
		return true
	}
	if other == o.host {
		return false
	}
	return string(other) > string(self)
}
