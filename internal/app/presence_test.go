package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

// fakeConn records every frame handed to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(core.Frame, len(f))
	copy(cp, f)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) kinds(t *testing.T) []core.EventKind {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.EventKind, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		out = append(out, env.Kind)
	}
	return out
}

func newSession(id domain.Identity) (core.Session, *fakeConn) {
	conn := &fakeConn{}
	user := &domain.User{ID: id, Name: string(id)}
	return core.NewSession(user, conn), conn
}

func TestPresenceLastConnectionWins(t *testing.T) {
	p := NewPresence()

	sess1, conn1 := newSession("u1")
	canceled1 := false
	p.Bind("u1", sess1, func() { canceled1 = true })

	sess2, conn2 := newSession("u1")
	p.Bind("u1", sess2, func() {})

	if !canceled1 {
		t.Error("first connection should be canceled on replacement")
	}
	// Cancellation alone leaves a silent socket blocked in its read;
	// the transport itself must be closed so the pump exits now.
	if !conn1.isClosed() {
		t.Error("replaced connection's transport should be closed")
	}
	if conn2.isClosed() {
		t.Error("fresh connection must stay open")
	}
	got, ok := p.Lookup("u1")
	if !ok || got != sess2 {
		t.Error("lookup should return the newest connection")
	}
}

func TestPresenceUnbindGuard(t *testing.T) {
	p := NewPresence()
	sess1, _ := newSession("u1")
	sess2, _ := newSession("u1")
	p.Bind("u1", sess1, nil)
	p.Bind("u1", sess2, nil)

	// The replaced connection's deferred cleanup must not tear down
	// the fresh binding.
	p.Unbind("u1", sess1)
	if _, ok := p.Lookup("u1"); !ok {
		t.Fatal("stale unbind removed the fresh binding")
	}

	p.Unbind("u1", sess2)
	if _, ok := p.Lookup("u1"); ok {
		t.Fatal("current unbind should remove the entry")
	}
}

func TestRelayForwardAbsentIsNoop(t *testing.T) {
	p := NewPresence()
	r := NewRelay(p)
	// No registration for u2: forwarding must be silent.
	r.Forward("u2", core.CallSignal{Kind: core.EvCallEnd, To: "u2"})
}

func TestRelayForwardDeliversVerbatim(t *testing.T) {
	p := NewPresence()
	r := NewRelay(p)
	sess, conn := newSession("u2")
	p.Bind("u2", sess, nil)

	r.Forward("u2", core.IncomingCall{Kind: core.EvIncomingCall, From: "u1", FromName: "Alice"})

	kinds := conn.kinds(t)
	if len(kinds) != 1 || kinds[0] != core.EvIncomingCall {
		t.Fatalf("expected one incoming-call frame, got %v", kinds)
	}
	var got core.IncomingCall
	if err := json.Unmarshal(conn.frames[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.From != "u1" || got.FromName != "Alice" {
		t.Errorf("payload mangled: %+v", got)
	}
}
