package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

var ErrRoomFull = errors.New("room is full")

// Rooms is the membership manager: it admits identities to rooms,
// broadcasts the roster on every change and arbitrates room-level media
// state (single-sharer rule included).
type Rooms struct {
	relay    *Relay
	capacity int

	mu       sync.Mutex
	byID     map[domain.RoomID]*room
	memberOf map[domain.Identity]domain.RoomID
}

func NewRooms(relay *Relay, capacity int) *Rooms {
	return &Rooms{
		relay:    relay,
		capacity: capacity,
		byID:     make(map[domain.RoomID]*room),
		memberOf: make(map[domain.Identity]domain.RoomID),
	}
}

// Join admits the user and broadcasts the new roster to the whole room,
// joiner included. An identity already in another room leaves it first.
func (m *Rooms) Join(id domain.RoomID, user *domain.User) error {
	m.mu.Lock()
	if prev, ok := m.memberOf[user.ID]; ok && prev != id {
		m.leaveLocked(prev, user.ID)
	}
	r, ok := m.byID[id]
	if !ok {
		r = newRoom(id)
		m.byID[id] = r
	}
	if m.capacity > 0 && len(r.roster) >= m.capacity && !r.contains(user.ID) {
		m.mu.Unlock()
		return ErrRoomFull
	}
	r.add(user)
	m.memberOf[user.ID] = id
	ev := r.rosterEvent()
	m.mu.Unlock()

	m.broadcast(ev.Participants, ev)
	return nil
}

// Leave is idempotent: removing an absent member is a no-op.
func (m *Rooms) Leave(id domain.RoomID, who domain.Identity) {
	m.mu.Lock()
	removed, ev, members := m.leaveLocked(id, who)
	m.mu.Unlock()
	if removed {
		m.broadcast(members, ev)
	}
}

// Drop removes the identity from whatever room it is in; disconnect path.
func (m *Rooms) Drop(who domain.Identity) {
	m.mu.Lock()
	id, ok := m.memberOf[who]
	if !ok {
		m.mu.Unlock()
		return
	}
	removed, ev, members := m.leaveLocked(id, who)
	m.mu.Unlock()
	if removed {
		m.broadcast(members, ev)
	}
}

func (m *Rooms) leaveLocked(id domain.RoomID, who domain.Identity) (bool, core.RoomRoster, []domain.Participant) {
	r, ok := m.byID[id]
	if !ok {
		return false, core.RoomRoster{}, nil
	}
	wasSharing := r.sharer == who
	if !r.remove(who) {
		return false, core.RoomRoster{}, nil
	}
	delete(m.memberOf, who)
	if len(r.roster) == 0 {
		delete(m.byID, id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room emptied")
	}
	ev := r.rosterEvent()
	members := ev.Participants
	if wasSharing {
		stop := core.ShareSignal{Kind: core.EvShareStop, Room: id, From: who}
		for _, p := range members {
			m.relay.Forward(p.ID, stop)
		}
	}
	return true, ev, members
}

// SetMedia updates mute/camera flags and fans the indicator out.
// Toggles are purely local on the client; no renegotiation happens here.
func (m *Rooms) SetMedia(id domain.RoomID, who domain.Identity, muted, cameraOff bool) {
	m.mu.Lock()
	r, ok := m.byID[id]
	if !ok || !r.contains(who) {
		m.mu.Unlock()
		return
	}
	st := r.media[who]
	st.Muted = muted
	st.CameraOff = cameraOff
	r.media[who] = st
	members := r.rosterEvent().Participants
	m.mu.Unlock()

	m.broadcast(members, core.RoomMedia{
		Kind: core.EvRoomMedia, Room: id, From: who,
		Muted: muted, CameraOff: cameraOff,
	})
}

func (m *Rooms) SetHandRaised(id domain.RoomID, who domain.Identity, raised bool) {
	m.mu.Lock()
	r, ok := m.byID[id]
	if !ok || !r.contains(who) {
		m.mu.Unlock()
		return
	}
	st := r.media[who]
	st.HandRaised = raised
	r.media[who] = st
	members := r.rosterEvent().Participants
	m.mu.Unlock()

	m.broadcast(members, core.RoomHandRaise{
		Kind: core.EvRoomHandRaise, Room: id, From: who, Raised: raised,
	})
}

// StartShare enforces the single-sharer rule: a second share request
// implicitly revokes the first. The previous sharer learns about it
// from the broadcast stop carrying its own identity.
func (m *Rooms) StartShare(id domain.RoomID, who domain.Identity) {
	m.mu.Lock()
	r, ok := m.byID[id]
	if !ok || !r.contains(who) {
		m.mu.Unlock()
		return
	}
	prev := r.sharer
	if prev == who {
		m.mu.Unlock()
		return
	}
	if prev != "" {
		st := r.media[prev]
		st.Sharing = false
		r.media[prev] = st
	}
	r.sharer = who
	st := r.media[who]
	st.Sharing = true
	r.media[who] = st
	members := r.rosterEvent().Participants
	m.mu.Unlock()

	if prev != "" {
		m.broadcast(members, core.ShareSignal{Kind: core.EvShareStop, Room: id, From: prev})
	}
	m.broadcast(members, core.ShareSignal{Kind: core.EvShareStart, Room: id, From: who})
}

func (m *Rooms) StopShare(id domain.RoomID, who domain.Identity) {
	m.mu.Lock()
	r, ok := m.byID[id]
	if !ok || r.sharer != who {
		m.mu.Unlock()
		return
	}
	r.sharer = ""
	st := r.media[who]
	st.Sharing = false
	r.media[who] = st
	members := r.rosterEvent().Participants
	m.mu.Unlock()

	m.broadcast(members, core.ShareSignal{Kind: core.EvShareStop, Room: id, From: who})
}

func (m *Rooms) Chat(id domain.RoomID, who domain.Identity, whoName, message string) {
	m.mu.Lock()
	r, ok := m.byID[id]
	if !ok || !r.contains(who) {
		m.mu.Unlock()
		return
	}
	members := r.rosterEvent().Participants
	m.mu.Unlock()

	m.broadcast(members, core.RoomChat{
		Kind: core.EvRoomChat, Room: id, From: who, FromName: whoName, Message: message,
	})
}

// List reports every live room with its member count, for REST reads.
func (m *Rooms) List() map[domain.RoomID]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.RoomID]int, len(m.byID))
	for id, r := range m.byID {
		out[id] = len(r.roster)
	}
	return out
}

// Snapshot returns the current roster event, for REST reads.
func (m *Rooms) Snapshot(id domain.RoomID) (core.RoomRoster, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return core.RoomRoster{}, false
	}
	return r.rosterEvent(), true
}

// MediaOf returns the indicator set for one member.
func (m *Rooms) MediaOf(id domain.RoomID, who domain.Identity) (domain.MediaState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return domain.MediaState{}, false
	}
	st, ok := r.media[who]
	return st, ok
}

func (m *Rooms) broadcast(members []domain.Participant, v any) {
	for _, p := range members {
		m.relay.Forward(p.ID, v)
	}
}
