// Package call drives the 1:1 call lifecycle. Each runtime holds its
// own state machine; the two sides are synchronized only by relayed
// events, so every transition is a reaction to either local intent or
// an inbound frame.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/client/rtc"
	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateCalling
	StateIncoming
	StateConnecting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateIncoming:
		return "incoming"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Reason explains a transition back to idle.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonHangup
	ReasonRejected
	ReasonTimeout
	ReasonUnreachable
	ReasonFailed
)

var (
	ErrBusy     = errors.New("call already in progress")
	ErrBadState = errors.New("operation not valid in current state")
)

// Signal is the slice of the relay connection the call machine needs.
type Signal interface {
	Send(v any) error
	On(kind core.EventKind, h func(json.RawMessage))
}

// Devices gates on capture hardware. Check runs before any intent is
// announced so a callee is never shown a call that cannot complete.
type Devices interface {
	Check(ctx context.Context) error
	Tracks() ([]rtc.LocalTrack, error)
	Release()
}

// API is the out-of-band reachability check (HTTP, not socket).
type API interface {
	RequestCall(ctx context.Context, target domain.Identity) (bool, error)
}

type Options struct {
	Self    domain.Identity
	Signal  Signal
	API     API
	Devices Devices
	Factory rtc.Factory
	// Timeout bounds calling, incoming and connecting; the remote going
	// silent is detected only by this expiring.
	Timeout time.Duration

	OnState       func(State, Reason)
	OnRemoteTrack func(rtc.RemoteTrack)
}

type Manager struct {
	opts Options

	mu            sync.Mutex
	state         State
	remote        domain.Identity
	remoteName    string
	reachable     bool
	conn          rtc.PeerConn
	pending       []core.Candidate
	remoteApplied bool
	timer         *time.Timer
}

func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	m := &Manager{opts: opts}
	sig := opts.Signal
	sig.On(core.EvIncomingCall, m.handleIncoming)
	sig.On(core.EvCallAccept, m.handleAccept)
	sig.On(core.EvCallReject, m.handleReject)
	sig.On(core.EvCallEnd, m.handleEnd)
	sig.On(core.EvNegOffer, m.handleOffer)
	sig.On(core.EvNegAnswer, m.handleAnswer)
	sig.On(core.EvNegCandidate, m.handleCandidate)
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Remote() (domain.Identity, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote, m.remoteName
}

// Place starts an outbound call. Capability failure surfaces to the
// caller and leaves the machine idle; an unreachable callee is a normal
// outcome detected only when the timeout expires.
func (m *Manager) Place(ctx context.Context, target domain.Identity) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrBusy
	}
	m.mu.Unlock()

	if err := m.opts.Devices.Check(ctx); err != nil {
		return err
	}
	reachable, err := m.opts.API.RequestCall(ctx, target)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateCalling
	m.remote = target
	m.reachable = reachable
	m.timer = time.AfterFunc(m.opts.Timeout, m.onTimeout)
	m.mu.Unlock()

	log.Info().Str("module", "client.call").Str("to", string(target)).Bool("reachable", reachable).Msg("placed call")
	m.notify(StateCalling, ReasonNone)
	return nil
}

// Accept runs the callee capability check. On failure the machine stays
// in incoming so retry and decline both remain available; the caller's
// timeout governs cleanup, not a spurious close from here.
func (m *Manager) Accept(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIncoming {
		m.mu.Unlock()
		return ErrBadState
	}
	remote := m.remote
	m.mu.Unlock()

	if err := m.opts.Devices.Check(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateIncoming {
		m.mu.Unlock()
		return ErrBadState
	}
	m.state = StateConnecting
	m.mu.Unlock()

	if err := m.opts.Signal.Send(core.CallSignal{Kind: core.EvCallAccept, To: remote}); err != nil {
		return err
	}
	m.notify(StateConnecting, ReasonNone)
	return nil
}

func (m *Manager) Reject() error {
	m.mu.Lock()
	if m.state != StateIncoming {
		m.mu.Unlock()
		return ErrBadState
	}
	remote := m.remote
	m.mu.Unlock()

	_ = m.opts.Signal.Send(core.CallSignal{Kind: core.EvCallReject, To: remote})
	m.teardown(ReasonNone)
	return nil
}

// HangUp broadcasts the end intent and tears down. Safe to call twice;
// the second invocation is a no-op.
func (m *Manager) HangUp() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	remote := m.remote
	m.mu.Unlock()

	_ = m.opts.Signal.Send(core.CallSignal{Kind: core.EvCallEnd, To: remote})
	m.teardown(ReasonHangup)
}

func (m *Manager) handleIncoming(data json.RawMessage) {
	var p core.IncomingCall
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	m.mu.Lock()
	if m.state != StateIdle {
		remote := p.From
		m.mu.Unlock()
		// Busy: decline without disturbing the current call.
		_ = m.opts.Signal.Send(core.CallSignal{Kind: core.EvCallReject, To: remote})
		return
	}
	m.state = StateIncoming
	m.remote = p.From
	m.remoteName = p.FromName
	// The caller may vanish without ever following up; this side idles
	// out on the same window instead of ringing forever. The caller is
	// evidently reachable, it just signaled.
	m.reachable = true
	m.timer = time.AfterFunc(m.opts.Timeout, m.onTimeout)
	m.mu.Unlock()

	log.Info().Str("module", "client.call").Str("from", string(p.From)).Msg("incoming call")
	m.notify(StateIncoming, ReasonNone)
}

// handleAccept is the caller side: build the connection, offer, send.
func (m *Manager) handleAccept(data json.RawMessage) {
	var p core.CallSignal
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	m.mu.Lock()
	if m.state != StateCalling || p.From != m.remote {
		m.mu.Unlock()
		return
	}
	conn, err := m.buildConnLocked()
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "client.call").Msg("build connection")
		m.teardown(ReasonFailed)
		return
	}
	offer, err := conn.CreateOffer()
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "client.call").Msg("create offer")
		m.teardown(ReasonFailed)
		return
	}
	m.state = StateConnecting
	remote := m.remote
	m.mu.Unlock()

	_ = m.opts.Signal.Send(core.Negotiation{Kind: core.EvNegOffer, To: remote, SDP: offer})
	m.notify(StateConnecting, ReasonNone)
}

func (m *Manager) handleReject(data json.RawMessage) {
	var p core.CallSignal
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	m.mu.Lock()
	relevant := m.state == StateCalling && p.From == m.remote
	m.mu.Unlock()
	if relevant {
		m.teardown(ReasonRejected)
	}
}

func (m *Manager) handleEnd(data json.RawMessage) {
	var p core.CallSignal
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	m.mu.Lock()
	relevant := m.state != StateIdle && p.From == m.remote
	m.mu.Unlock()
	if relevant {
		m.teardown(ReasonHangup)
	}
}

// handleOffer is the callee side. Room negotiation frames carry a room
// id and belong to the mesh orchestrator, not to this machine.
func (m *Manager) handleOffer(data json.RawMessage) {
	var p core.Negotiation
	if err := json.Unmarshal(data, &p); err != nil || p.Room != "" {
		return
	}
	m.mu.Lock()
	if (m.state != StateConnecting && m.state != StateIncoming) || p.From != m.remote {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	if conn == nil {
		var err error
		conn, err = m.buildConnLocked()
		if err != nil {
			m.mu.Unlock()
			log.Error().Err(err).Str("module", "client.call").Msg("build connection")
			m.teardown(ReasonFailed)
			return
		}
	}
	if err := conn.SetRemoteDescription(rtc.SDPOffer, p.SDP); err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "client.call").Msg("apply offer")
		m.teardown(ReasonFailed)
		return
	}
	m.remoteApplied = true
	m.drainPendingLocked(conn)
	answer, err := conn.CreateAnswer()
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "client.call").Msg("create answer")
		m.teardown(ReasonFailed)
		return
	}
	remote := m.remote
	m.mu.Unlock()

	_ = m.opts.Signal.Send(core.Negotiation{Kind: core.EvNegAnswer, To: remote, SDP: answer})
}

func (m *Manager) handleAnswer(data json.RawMessage) {
	var p core.Negotiation
	if err := json.Unmarshal(data, &p); err != nil || p.Room != "" {
		return
	}
	m.mu.Lock()
	if m.conn == nil || p.From != m.remote {
		m.mu.Unlock()
		return
	}
	if err := m.conn.SetRemoteDescription(rtc.SDPAnswer, p.SDP); err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "client.call").Msg("apply answer")
		m.teardown(ReasonFailed)
		return
	}
	m.remoteApplied = true
	m.drainPendingLocked(m.conn)
	m.mu.Unlock()
}

// handleCandidate buffers candidates that outrun the description they
// reference; they are drained in arrival order once it lands.
func (m *Manager) handleCandidate(data json.RawMessage) {
	var p core.Negotiation
	if err := json.Unmarshal(data, &p); err != nil || p.Room != "" || p.Candidate == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle || p.From != m.remote {
		return
	}
	if m.conn == nil || !m.remoteApplied {
		m.pending = append(m.pending, *p.Candidate)
		return
	}
	if err := m.conn.AddCandidate(*p.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "client.call").Msg("add candidate")
	}
}

func (m *Manager) buildConnLocked() (rtc.PeerConn, error) {
	conn, err := m.opts.Factory.NewConn()
	if err != nil {
		return nil, err
	}
	tracks, err := m.opts.Devices.Tracks()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	for _, t := range tracks {
		if err := conn.AddTrack(t); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	remote := m.remote
	conn.OnCandidate(func(c core.Candidate) {
		_ = m.opts.Signal.Send(core.Negotiation{
			Kind: core.EvNegCandidate, To: remote, Candidate: &c,
		})
	})
	// Active means media actually flowing, not a completed answer.
	conn.OnTrack(func(t rtc.RemoteTrack) {
		m.onRemoteTrack(t)
	})
	conn.OnStateChange(func(s rtc.ConnState) {
		if s == rtc.StateFailed || s == rtc.StateDisconnected || s == rtc.StateClosed {
			m.onConnLost()
		}
	})
	m.conn = conn
	return conn, nil
}

func (m *Manager) drainPendingLocked(conn rtc.PeerConn) {
	for _, c := range m.pending {
		if err := conn.AddCandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "client.call").Msg("drain candidate")
		}
	}
	m.pending = nil
}

func (m *Manager) onRemoteTrack(t rtc.RemoteTrack) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	entered := m.state != StateActive
	m.state = StateActive
	if entered && m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	if entered {
		m.notify(StateActive, ReasonNone)
	}
	if m.opts.OnRemoteTrack != nil {
		m.opts.OnRemoteTrack(t)
	}
}

func (m *Manager) onConnLost() {
	m.mu.Lock()
	relevant := m.state != StateIdle
	m.mu.Unlock()
	if relevant {
		m.teardown(ReasonFailed)
	}
}

func (m *Manager) onTimeout() {
	m.mu.Lock()
	if m.state != StateCalling && m.state != StateIncoming && m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	remote := m.remote
	reason := ReasonTimeout
	if !m.reachable {
		reason = ReasonUnreachable
	}
	m.mu.Unlock()
	log.Info().Str("module", "client.call").Str("remote", string(remote)).Msg("call timed out")
	m.teardown(reason)
}

// teardown is the single resource-release path, reachable from explicit
// hang-up, remote end, rejection, timeout and connection loss alike.
func (m *Manager) teardown(reason Reason) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.pending = nil
	m.remoteApplied = false
	m.remote = ""
	m.remoteName = ""
	m.reachable = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = StateIdle
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.opts.Devices.Release()
	m.notify(StateIdle, reason)
}

func (m *Manager) notify(s State, r Reason) {
	if m.opts.OnState != nil {
		m.opts.OnState(s, r)
	}
}
