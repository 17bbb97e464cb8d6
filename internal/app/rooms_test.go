package app

import (
	"encoding/json"
	"testing"

	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

type fixture struct {
	presence *Presence
	rooms    *Rooms
	conns    map[domain.Identity]*fakeConn
}

func newFixture(t *testing.T, capacity int, ids ...domain.Identity) *fixture {
	t.Helper()
	p := NewPresence()
	f := &fixture{
		presence: p,
		rooms:    NewRooms(NewRelay(p), capacity),
		conns:    make(map[domain.Identity]*fakeConn),
	}
	for _, id := range ids {
		sess, conn := newSession(id)
		p.Bind(id, sess, nil)
		f.conns[id] = conn
	}
	return f
}

func (f *fixture) join(t *testing.T, room domain.RoomID, id domain.Identity) {
	t.Helper()
	if err := f.rooms.Join(room, &domain.User{ID: id, Name: string(id)}); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
}

func (f *fixture) lastRoster(t *testing.T, id domain.Identity) core.RoomRoster {
	t.Helper()
	conn := f.conns[id]
	conn.mu.Lock()
	defer conn.mu.Unlock()
	for i := len(conn.frames) - 1; i >= 0; i-- {
		var env core.Envelope
		if err := json.Unmarshal(conn.frames[i], &env); err != nil {
			t.Fatal(err)
		}
		if env.Kind == core.EvRoomRoster {
			var ev core.RoomRoster
			if err := json.Unmarshal(conn.frames[i], &ev); err != nil {
				t.Fatal(err)
			}
			return ev
		}
	}
	t.Fatalf("no roster frame for %s", id)
	return core.RoomRoster{}
}

func TestJoinBroadcastsRosterToEveryoneIncludingJoiner(t *testing.T) {
	f := newFixture(t, 8, "u1", "u2")
	f.join(t, "standup", "u1")
	f.join(t, "standup", "u2")

	for _, id := range []domain.Identity{"u1", "u2"} {
		ev := f.lastRoster(t, id)
		if len(ev.Participants) != 2 {
			t.Fatalf("%s roster size = %d, want 2", id, len(ev.Participants))
		}
		if ev.Host != "u1" {
			t.Errorf("host = %s, want first joiner u1", ev.Host)
		}
	}
	// Roster order is join order, not a wholesale rewrite.
	ev := f.lastRoster(t, "u1")
	if ev.Participants[0].ID != "u1" || ev.Participants[1].ID != "u2" {
		t.Errorf("roster order wrong: %+v", ev.Participants)
	}
}

func TestHostHandoffWhenFirstJoinerLeaves(t *testing.T) {
	f := newFixture(t, 8, "u1", "u2", "u3")
	f.join(t, "r", "u1")
	f.join(t, "r", "u2")
	f.join(t, "r", "u3")

	f.rooms.Leave("r", "u1")
	if ev := f.lastRoster(t, "u2"); ev.Host != "u2" {
		t.Errorf("host after leave = %s, want u2", ev.Host)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	f := newFixture(t, 8, "u1", "u2")
	f.join(t, "r", "u1")
	f.join(t, "r", "u2")

	f.rooms.Leave("r", "u2")
	before := len(f.conns["u1"].kinds(t))
	f.rooms.Leave("r", "u2")
	after := len(f.conns["u1"].kinds(t))
	if before != after {
		t.Error("second leave produced duplicate broadcasts")
	}
}

func TestRoomCapacity(t *testing.T) {
	f := newFixture(t, 2, "u1", "u2", "u3")
	f.join(t, "r", "u1")
	f.join(t, "r", "u2")
	err := f.rooms.Join("r", &domain.User{ID: "u3", Name: "u3"})
	if err != ErrRoomFull {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestSingleSharerArbitration(t *testing.T) {
	f := newFixture(t, 8, "u1", "u2")
	f.join(t, "r", "u1")
	f.join(t, "r", "u2")

	f.rooms.StartShare("r", "u1")
	f.rooms.StartShare("r", "u2")

	if st, _ := f.rooms.MediaOf("r", "u1"); st.Sharing {
		t.Error("first sharer flag should flip to false")
	}
	if st, _ := f.rooms.MediaOf("r", "u2"); !st.Sharing {
		t.Error("second sharer flag should be true")
	}

	// u1 must observe a stop carrying its own identity before u2's start.
	conn := f.conns["u1"]
	conn.mu.Lock()
	defer conn.mu.Unlock()
	var sawStopForU1 bool
	for _, frame := range conn.frames {
		var ev core.ShareSignal
		if err := json.Unmarshal(frame, &ev); err != nil {
			continue
		}
		if ev.Kind == core.EvShareStop && ev.From == "u1" {
			sawStopForU1 = true
		}
		if ev.Kind == core.EvShareStart && ev.From == "u2" && !sawStopForU1 {
			t.Fatal("start for u2 arrived before stop for u1")
		}
	}
	if !sawStopForU1 {
		t.Error("u1 never observed its revocation")
	}
}

func TestSharerLeavingClearsShare(t *testing.T) {
	f := newFixture(t, 8, "u1", "u2")
	f.join(t, "r", "u1")
	f.join(t, "r", "u2")
	f.rooms.StartShare("r", "u2")

	f.rooms.Drop("u2")

	kinds := f.conns["u1"].kinds(t)
	var sawStop bool
	for _, k := range kinds {
		if k == core.EvShareStop {
			sawStop = true
		}
	}
	if !sawStop {
		t.Error("remaining member should observe share stop when sharer disconnects")
	}
}

func TestMediaStateBroadcast(t *testing.T) {
	f := newFixture(t, 8, "u1", "u2")
	f.join(t, "r", "u1")
	f.join(t, "r", "u2")

	f.rooms.SetMedia("r", "u1", true, false)

	conn := f.conns["u2"]
	conn.mu.Lock()
	defer conn.mu.Unlock()
	var got *core.RoomMedia
	for _, frame := range conn.frames {
		var ev core.RoomMedia
		if json.Unmarshal(frame, &ev) == nil && ev.Kind == core.EvRoomMedia {
			got = &ev
		}
	}
	if got == nil {
		t.Fatal("no media-state frame delivered")
	}
	if got.From != "u1" || !got.Muted || got.CameraOff {
		t.Errorf("media payload wrong: %+v", got)
	}
}

func TestMediaStateIgnoredForNonMember(t *testing.T) {
	f := newFixture(t, 8, "u1", "u2")
	f.join(t, "r", "u1")
	f.rooms.SetMedia("r", "u2", true, true)
	if _, ok := f.rooms.MediaOf("r", "u2"); ok {
		t.Error("non-member must not acquire media state")
	}
}
