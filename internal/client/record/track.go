package record

import (
	"image"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

// RTPTrack is the slice of a remote media track the recorder pulls
// from; the pion-backed remote track in the rtc package satisfies it.
type RTPTrack interface {
	ID() string
	ReadRTP() (*rtp.Packet, error)
	RequestKeyframe() error
}

// VideoDecoder turns RTP payloads into full pictures. Decode returns a
// nil frame until a complete picture is assembled (mid-frame, or
// waiting for a keyframe after attach). Decoders are platform
// primitives, like capture devices in the rtc package.
type VideoDecoder interface {
	Decode(pkt *rtp.Packet) (*image.RGBA, error)
}

// AudioDecoder turns RTP payloads into mono signed 16-bit PCM.
type AudioDecoder interface {
	Decode(pkt *rtp.Packet) ([]int16, error)
}

// TrackVideoSource adapts a remote track into a VideoSource: a pump
// goroutine pulls RTP, decodes, and keeps only the newest frame. The
// keyframe request on attach matters because a recorder joining
// mid-stream decodes nothing until the next full picture; the cell
// shows the placeholder until it arrives.
type TrackVideoSource struct {
	id    string
	label string

	mu    sync.Mutex
	frame *image.RGBA

	stop chan struct{}
	once sync.Once
}

func NewTrackVideoSource(label string, track RTPTrack, dec VideoDecoder) *TrackVideoSource {
	s := &TrackVideoSource{id: track.ID(), label: label, stop: make(chan struct{})}
	if err := track.RequestKeyframe(); err != nil {
		log.Warn().Err(err).Str("module", "client.record").Str("track", s.id).Msg("keyframe request")
	}
	go s.pump(track, dec)
	return s
}

func (s *TrackVideoSource) pump(track RTPTrack, dec VideoDecoder) {
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		pkt, err := track.ReadRTP()
		if err != nil {
			log.Info().Str("module", "client.record").Str("track", s.id).Msg("video track ended")
			return
		}
		frame, err := dec.Decode(pkt)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.record").Str("track", s.id).Msg("video decode")
			continue
		}
		if frame == nil {
			continue
		}
		s.mu.Lock()
		s.frame = frame
		s.mu.Unlock()
	}
}

func (s *TrackVideoSource) ID() string    { return s.id }
func (s *TrackVideoSource) Label() string { return s.label }

// Frame returns the newest decoded picture, nil before the first one.
func (s *TrackVideoSource) Frame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *TrackVideoSource) Close() {
	s.once.Do(func() { close(s.stop) })
}

// One second at the default sample rate. A stalled mixer must not grow
// the buffer without bound; the oldest samples are dropped.
const audioBufferSamples = 48000

// TrackAudioSource adapts a remote track into an AudioSource: decoded
// PCM accumulates in a bounded buffer that ReadPCM drains in arrival
// order.
type TrackAudioSource struct {
	id  string
	max int

	mu  sync.Mutex
	buf []int16

	stop chan struct{}
	once sync.Once
}

func NewTrackAudioSource(track RTPTrack, dec AudioDecoder) *TrackAudioSource {
	s := &TrackAudioSource{id: track.ID(), max: audioBufferSamples, stop: make(chan struct{})}
	go s.pump(track, dec)
	return s
}

func (s *TrackAudioSource) pump(track RTPTrack, dec AudioDecoder) {
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		pkt, err := track.ReadRTP()
		if err != nil {
			log.Info().Str("module", "client.record").Str("track", s.id).Msg("audio track ended")
			return
		}
		pcm, err := dec.Decode(pkt)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.record").Str("track", s.id).Msg("audio decode")
			continue
		}
		s.mu.Lock()
		s.buf = append(s.buf, pcm...)
		if len(s.buf) > s.max {
			s.buf = s.buf[len(s.buf)-s.max:]
		}
		s.mu.Unlock()
	}
}

func (s *TrackAudioSource) ID() string { return s.id }

func (s *TrackAudioSource) ReadPCM(dst []int16) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(dst, s.buf)
	s.buf = s.buf[n:]
	return n
}

func (s *TrackAudioSource) Close() {
	s.once.Do(func() { close(s.stop) })
}
