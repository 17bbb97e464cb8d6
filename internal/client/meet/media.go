package meet

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/client/rtc"
	"github.com/opencrew/huddle/internal/core"
)

// SetMuted disables the local audio track and broadcasts the indicator.
// No renegotiation: the track stays in every connection, it just goes
// silent.
func (o *Orchestrator) SetMuted(muted bool) error {
	o.mu.Lock()
	o.muted = muted
	for _, t := range o.opts.LocalTracks {
		if t.Kind() == rtc.TrackAudio {
			t.SetEnabled(!muted)
		}
	}
	ev := o.mediaEventLocked()
	o.mu.Unlock()
	return o.opts.Signal.Send(ev)
}

func (o *Orchestrator) SetCameraOff(off bool) error {
	o.mu.Lock()
	o.cameraOff = off
	for _, t := range o.opts.LocalTracks {
		if t.Kind() == rtc.TrackVideo {
			t.SetEnabled(!off)
		}
	}
	ev := o.mediaEventLocked()
	o.mu.Unlock()
	return o.opts.Signal.Send(ev)
}

func (o *Orchestrator) mediaEventLocked() core.RoomMedia {
	return core.RoomMedia{
		Kind:      core.EvRoomMedia,
		Room:      o.opts.Room,
		Muted:     o.muted,
		CameraOff: o.cameraOff,
	}
}

func (o *Orchestrator) RaiseHand(raised bool) error {
	return o.opts.Signal.Send(core.RoomHandRaise{
		Kind: core.EvRoomHandRaise, Room: o.opts.Room, Raised: raised,
	})
}

func (o *Orchestrator) SendChat(message string) error {
	return o.opts.Signal.Send(core.RoomChat{
		Kind: core.EvRoomChat, Room: o.opts.Room, Message: message,
	})
}

// StartScreenShare acquires the capture device, adds the track to every
// existing link and renegotiates each one. The room is notified only
// after local state is consistent.
func (o *Orchestrator) StartScreenShare() error {
	o.mu.Lock()
	if o.sharing || o.opts.Screen == nil {
		o.mu.Unlock()
		return nil
	}
	track, err := o.opts.Screen.Start()
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.screenTrack = track
	o.sharing = true
	targets := o.renegotiateTrackLocked(track, true)
	o.mu.Unlock()

	o.sendOffers(targets)
	return o.opts.Signal.Send(core.ShareSignal{Kind: core.EvShareStart, Room: o.opts.Room})
}

// StopScreenShare removes the track everywhere, renegotiates, restores
// the camera locally and releases the capture device.
func (o *Orchestrator) StopScreenShare() error {
	o.mu.Lock()
	stopped, targets := o.stopShareLocked()
	o.mu.Unlock()
	if !stopped {
		return nil
	}
	o.sendOffers(targets)
	o.opts.Screen.Stop()
	return o.opts.Signal.Send(core.ShareSignal{Kind: core.EvShareStop, Room: o.opts.Room})
}

// stopShareLocked is shared between explicit stop and forced revocation
// by another sharer.
func (o *Orchestrator) stopShareLocked() (bool, []core.Negotiation) {
	if !o.sharing {
		return false, nil
	}
	track := o.screenTrack
	o.sharing = false
	o.screenTrack = nil
	targets := o.renegotiateTrackLocked(track, false)
	// Restore the prior camera state.
	for _, t := range o.opts.LocalTracks {
		if t.Kind() == rtc.TrackVideo {
			t.SetEnabled(!o.cameraOff)
		}
	}
	return true, targets
}

// renegotiateTrackLocked adds or removes the screen track on every
// connected link and collects a fresh offer per link. Adding or
// removing a full media track requires a new offer/answer round; mere
// mute toggles never come through here.
func (o *Orchestrator) renegotiateTrackLocked(track rtc.LocalTrack, add bool) []core.Negotiation {
	var out []core.Negotiation
	for id, l := range o.links {
		if l.conn == nil {
			continue
		}
		var err error
		if add {
			err = l.conn.AddTrack(track)
		} else {
			err = l.conn.RemoveTrack(track)
		}
		if err != nil {
			log.Error().Err(err).Str("module", "client.meet").Str("peer", string(id)).Bool("add", add).Msg("track change")
			continue
		}
		offer, err := l.conn.CreateOffer()
		if err != nil {
			log.Error().Err(err).Str("module", "client.meet").Str("peer", string(id)).Msg("renegotiation offer")
			continue
		}
		out = append(out, core.Negotiation{
			Kind: core.EvNegOffer, To: id, Room: o.opts.Room, SDP: offer,
		})
	}
	return out
}

func (o *Orchestrator) sendOffers(targets []core.Negotiation) {
	for _, t := range targets {
		_ = o.opts.Signal.Send(t)
	}
}

func (o *Orchestrator) handleMediaState(data json.RawMessage) {
	var ev core.RoomMedia
	if err := json.Unmarshal(data, &ev); err != nil || ev.Room != o.opts.Room {
		return
	}
	if o.opts.Events.OnMediaState != nil {
		o.opts.Events.OnMediaState(ev)
	}
}

func (o *Orchestrator) handleHandRaise(data json.RawMessage) {
	var ev core.RoomHandRaise
	if err := json.Unmarshal(data, &ev); err != nil || ev.Room != o.opts.Room {
		return
	}
	if o.opts.Events.OnHandRaise != nil {
		o.opts.Events.OnHandRaise(ev)
	}
}

func (o *Orchestrator) handleShareStart(data json.RawMessage) {
	var ev core.ShareSignal
	if err := json.Unmarshal(data, &ev); err != nil || ev.Room != o.opts.Room {
		return
	}
	if o.opts.Events.OnShare != nil {
		o.opts.Events.OnShare(ev.From, true)
	}
}

// handleShareStop also covers forced revocation: a stop carrying our
// own identity means another participant took over the share and the
// backend revoked ours, so release the capture device locally.
func (o *Orchestrator) handleShareStop(data json.RawMessage) {
	var ev core.ShareSignal
	if err := json.Unmarshal(data, &ev); err != nil || ev.Room != o.opts.Room {
		return
	}
	if ev.From == o.opts.Self {
		o.mu.Lock()
		stopped, targets := o.stopShareLocked()
		o.mu.Unlock()
		if stopped {
			o.sendOffers(targets)
			o.opts.Screen.Stop()
			log.Info().Str("module", "client.meet").Msg("screen share revoked by another sharer")
		}
	}
	if o.opts.Events.OnShare != nil {
		o.opts.Events.OnShare(ev.From, false)
	}
}

func (o *Orchestrator) handleChat(data json.RawMessage) {
	var ev core.RoomChat
	if err := json.Unmarshal(data, &ev); err != nil || ev.Room != o.opts.Room {
		return
	}
	if o.opts.Events.OnChat != nil {
		o.opts.Events.OnChat(ev)
	}
}
