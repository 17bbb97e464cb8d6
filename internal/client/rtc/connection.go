package rtc

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/client/record"
	"github.com/opencrew/huddle/internal/core"
)

var ErrNotPionTrack = errors.New("track does not belong to this backend")

// PionFactory builds peer connections on pion/webrtc.
type PionFactory struct {
	cfg webrtc.Configuration
}

func NewPionFactory(stunURLs []string) *PionFactory {
	return &PionFactory{
		cfg: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
		},
	}
}

func (f *PionFactory) NewConn() (PeerConn, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &pionConn{pc: pc, senders: make(map[string]*webrtc.RTPSender)}
	c.install()
	return c, nil
}

type pionConn struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender

	onTrack     func(RemoteTrack)
	onCandidate func(core.Candidate)
	onState     func(ConnState)
}

func (c *pionConn) install() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.onCandidate == nil {
			return
		}
		ci := cand.ToJSON()
		c.onCandidate(core.Candidate{
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		})
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		if c.onState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnecting:
			c.onState(StateConnecting)
		case webrtc.PeerConnectionStateConnected:
			c.onState(StateConnected)
		case webrtc.PeerConnectionStateDisconnected:
			c.onState(StateDisconnected)
		case webrtc.PeerConnectionStateFailed:
			c.onState(StateFailed)
		case webrtc.PeerConnectionStateClosed:
			c.onState(StateClosed)
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(&pionRemoteTrack{t: track, pc: c.pc})
		}
	})
}

func (c *pionConn) CreateOffer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (c *pionConn) CreateAnswer() (string, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (c *pionConn) SetRemoteDescription(t SDPType, sdp string) error {
	kind := webrtc.SDPTypeOffer
	if t == SDPAnswer {
		kind = webrtc.SDPTypeAnswer
	}
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: kind, SDP: sdp})
}

func (c *pionConn) AddCandidate(cand core.Candidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (c *pionConn) AddTrack(t LocalTrack) error {
	st, ok := t.(*SampleTrack)
	if !ok {
		return ErrNotPionTrack
	}
	sender, err := c.pc.AddTrack(st.t)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders[t.ID()] = sender
	c.mu.Unlock()
	return nil
}

func (c *pionConn) RemoveTrack(t LocalTrack) error {
	c.mu.Lock()
	sender, ok := c.senders[t.ID()]
	delete(c.senders, t.ID())
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.pc.RemoveTrack(sender)
}

func (c *pionConn) OnTrack(fn func(RemoteTrack))        { c.onTrack = fn }
func (c *pionConn) OnCandidate(fn func(core.Candidate)) { c.onCandidate = fn }
func (c *pionConn) OnStateChange(fn func(ConnState))    { c.onState = fn }

func (c *pionConn) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
		return err
	}
	return nil
}

// pionRemoteTrack also exposes RTP access and keyframe requests for the
// recorder's track sources; orchestration code only sees the
// RemoteTrack side.
type pionRemoteTrack struct {
	t  *webrtc.TrackRemote
	pc *webrtc.PeerConnection
}

var _ record.RTPTrack = (*pionRemoteTrack)(nil)

func (r *pionRemoteTrack) ID() string       { return r.t.ID() }
func (r *pionRemoteTrack) StreamID() string { return r.t.StreamID() }

func (r *pionRemoteTrack) Kind() TrackKind {
	if r.t.Kind() == webrtc.RTPCodecTypeAudio {
		return TrackAudio
	}
	return TrackVideo
}

func (r *pionRemoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.t.ReadRTP()
	return pkt, err
}

// RequestKeyframe sends a PLI upstream; a recorder attaching mid-stream
// needs a fresh keyframe before its decoder produces anything.
func (r *pionRemoteTrack) RequestKeyframe() error {
	return r.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(r.t.SSRC())},
	})
}

// SampleTrack is a local capture track. SetEnabled(false) drops writes,
// which is how mute/camera-off work without renegotiation.
type SampleTrack struct {
	t       *webrtc.TrackLocalStaticSample
	kind    TrackKind
	enabled atomic.Bool
}

func newSampleTrack(codec webrtc.RTPCodecCapability, kind TrackKind, id, streamID string) (*SampleTrack, error) {
	t, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	st := &SampleTrack{t: t, kind: kind}
	st.enabled.Store(true)
	return st, nil
}

func NewCameraTrack(id, streamID string) (*SampleTrack, error) {
	return newSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, TrackVideo, id, streamID)
}

func NewMicrophoneTrack(id, streamID string) (*SampleTrack, error) {
	return newSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, TrackAudio, id, streamID)
}

func NewScreenTrack(id, identity string) (*SampleTrack, error) {
	return newSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, TrackVideo, id, ScreenStreamPrefix+identity)
}

func (t *SampleTrack) ID() string         { return t.t.ID() }
func (t *SampleTrack) StreamID() string   { return t.t.StreamID() }
func (t *SampleTrack) Kind() TrackKind    { return t.kind }
func (t *SampleTrack) SetEnabled(on bool) { t.enabled.Store(on) }
func (t *SampleTrack) Enabled() bool      { return t.enabled.Load() }

// WriteSample feeds one encoded sample from the capture pipeline.
func (t *SampleTrack) WriteSample(data []byte, duration time.Duration) error {
	if !t.enabled.Load() {
		return nil
	}
	return t.t.WriteSample(media.Sample{Data: data, Duration: duration})
}
