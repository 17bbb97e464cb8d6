package signal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	router "github.com/opencrew/huddle/internal/adapters/http"
	"github.com/opencrew/huddle/internal/app"
	"github.com/opencrew/huddle/internal/config"
	"github.com/opencrew/huddle/internal/core"
)

type testServer struct {
	ts   *httptest.Server
	orch *app.Orchestrator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		Mode:         "release",
		Secret:       "test-secret",
		RoomCapacity: 8,
		StaticPath:   t.TempDir(),
	}
	presence := app.NewPresence()
	relay := app.NewRelay(presence)
	rooms := app.NewRooms(relay, cfg.RoomCapacity)
	orch := app.NewOrchestrator(presence, relay, rooms)

	ts := httptest.NewServer(router.SetupRouter(ctx, cfg, orch))
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, orch: orch}
}

func (s *testServer) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/api/ws/signal?id=" + id + "&name=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", id, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatal(err)
	}
}

// readEvent reads frames until one of the wanted kind arrives.
func readEvent(t *testing.T, conn *websocket.Conn, kind core.EventKind, out any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		if env.Kind != kind {
			continue
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatal(err)
		}
		return
	}
}

func TestJoinBroadcastsRoster(t *testing.T) {
	s := newTestServer(t)
	u1 := s.dial(t, "u1")
	u2 := s.dial(t, "u2")

	send(t, u1, core.RoomJoin{Kind: core.EvRoomJoin, Room: "daily", Name: "Alice"})
	var first core.RoomRoster
	readEvent(t, u1, core.EvRoomRoster, &first)
	if len(first.Participants) != 1 || first.Host != "u1" {
		t.Fatalf("unexpected first roster: %+v", first)
	}

	send(t, u2, core.RoomJoin{Kind: core.EvRoomJoin, Room: "daily", Name: "Bob"})
	var updated core.RoomRoster
	readEvent(t, u1, core.EvRoomRoster, &updated)
	if len(updated.Participants) != 2 {
		t.Fatalf("existing member did not see the joiner: %+v", updated)
	}
	readEvent(t, u2, core.EvRoomRoster, &updated)
	if len(updated.Participants) != 2 || updated.Host != "u1" {
		t.Fatalf("joiner roster wrong: %+v", updated)
	}
}

func TestNegotiationRelayStampsSender(t *testing.T) {
	s := newTestServer(t)
	u1 := s.dial(t, "u1")
	u2 := s.dial(t, "u2")
	// Presence registration happens on connect; no room needed for 1:1.

	send(t, u1, core.Negotiation{Kind: core.EvNegOffer, To: "u2", SDP: "fake-sdp", From: "spoofed"})

	var got core.Negotiation
	readEvent(t, u2, core.EvNegOffer, &got)
	if got.From != "u1" {
		t.Errorf("relay must stamp the real sender, got from=%s", got.From)
	}
	if got.SDP != "fake-sdp" {
		t.Errorf("payload not forwarded verbatim: %+v", got)
	}
}

func TestDisconnectRemovesFromRoster(t *testing.T) {
	s := newTestServer(t)
	u1 := s.dial(t, "u1")
	u2 := s.dial(t, "u2")

	send(t, u1, core.RoomJoin{Kind: core.EvRoomJoin, Room: "r", Name: "Alice"})
	var ev core.RoomRoster
	readEvent(t, u1, core.EvRoomRoster, &ev)
	send(t, u2, core.RoomJoin{Kind: core.EvRoomJoin, Room: "r", Name: "Bob"})
	readEvent(t, u1, core.EvRoomRoster, &ev)

	u2.Close()
	readEvent(t, u1, core.EvRoomRoster, &ev)
	if len(ev.Participants) != 1 || ev.Participants[0].ID != "u1" {
		t.Fatalf("disconnect did not shrink roster: %+v", ev)
	}
}

func TestCallRequestReachability(t *testing.T) {
	s := newTestServer(t)
	u2 := s.dial(t, "u2")

	post := func(target string) map[string]any {
		body, _ := json.Marshal(map[string]string{"target": target})
		resp, err := http.Post(s.ts.URL+"/api/calls?id=u1", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	if out := post("nobody"); out["reachable"] != false {
		t.Errorf("offline target should report reachable=false: %v", out)
	}
	if out := post("u2"); out["reachable"] != true {
		t.Errorf("online target should report reachable=true: %v", out)
	}

	var ring core.IncomingCall
	readEvent(t, u2, core.EvIncomingCall, &ring)
	if ring.From != "u1" {
		t.Errorf("incoming-call from=%s, want u1", ring.From)
	}
}

func TestRoomRESTEndpoints(t *testing.T) {
	s := newTestServer(t)
	u1 := s.dial(t, "u1")

	send(t, u1, core.RoomJoin{Kind: core.EvRoomJoin, Room: "daily", Name: "Alice"})
	var ev core.RoomRoster
	readEvent(t, u1, core.EvRoomRoster, &ev)

	getJSON := func(path string) map[string]any {
		resp, err := http.Get(s.ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	list := getJSON("/api/rooms")
	rooms, _ := list["rooms"].(map[string]any)
	if rooms["daily"] != float64(1) {
		t.Errorf("room list = %v", list)
	}

	info := getJSON("/api/rooms/daily")
	if info["host"] != "u1" {
		t.Errorf("room info = %v", info)
	}

	resp, err := http.Get(s.ts.URL + "/api/rooms/no-such-room")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing room returned %d", resp.StatusCode)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	s := newTestServer(t)
	u1 := s.dial(t, "u1")
	send(t, u1, map[string]string{"type": "no-such-event"})
	// Connection must survive; a join afterwards still works.
	send(t, u1, core.RoomJoin{Kind: core.EvRoomJoin, Room: "r", Name: "Alice"})
	var ev core.RoomRoster
	readEvent(t, u1, core.EvRoomRoster, &ev)
}
