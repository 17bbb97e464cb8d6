// Package rtc isolates the platform media primitives behind a small
// interface so the call and mesh orchestration logic stays free of any
// concrete WebRTC implementation.
package rtc

import "github.com/opencrew/huddle/internal/core"

type TrackKind int

const (
	TrackAudio TrackKind = iota
	TrackVideo
)

func (k TrackKind) String() string {
	if k == TrackAudio {
		return "audio"
	}
	return "video"
}

type ConnState int

const (
	StateNew ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

type SDPType int

const (
	SDPOffer SDPType = iota
	SDPAnswer
)

// ScreenStreamPrefix tags a display-capture stream so receivers can
// classify the track without header inspection. Platforms that cannot
// tag fall back to the second-video-track convention in the mesh.
const ScreenStreamPrefix = "screen:"

type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() TrackKind
}

type LocalTrack interface {
	ID() string
	StreamID() string
	Kind() TrackKind
	// SetEnabled gates the media flow locally; mute and camera-off never
	// renegotiate, they just stop the frames.
	SetEnabled(bool)
	Enabled() bool
}

// PeerConn is one point-to-point media connection.
type PeerConn interface {
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetRemoteDescription(t SDPType, sdp string) error
	AddCandidate(core.Candidate) error
	AddTrack(LocalTrack) error
	RemoveTrack(LocalTrack) error
	OnTrack(func(RemoteTrack))
	OnCandidate(func(core.Candidate))
	OnStateChange(func(ConnState))
	Close() error
}

type Factory interface {
	NewConn() (PeerConn, error)
}
