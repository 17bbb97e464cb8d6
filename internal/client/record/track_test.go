package record

import (
	"image"
	"io"
	"testing"
	"time"

	"github.com/pion/rtp"
)

type fakeRTPTrack struct {
	id        string
	pkts      chan *rtp.Packet
	keyframes int
}

func newFakeRTPTrack(id string) *fakeRTPTrack {
	return &fakeRTPTrack{id: id, pkts: make(chan *rtp.Packet, 16)}
}

func (t *fakeRTPTrack) ID() string { return t.id }

func (t *fakeRTPTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-t.pkts
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func (t *fakeRTPTrack) RequestKeyframe() error {
	t.keyframes++
	return nil
}

// grayDecoder emits a uniform picture at the level of the first payload
// byte; an empty payload stands in for "no complete picture yet".
type grayDecoder struct{}

func (grayDecoder) Decode(pkt *rtp.Packet) (*image.RGBA, error) {
	if len(pkt.Payload) == 0 {
		return nil, nil
	}
	frame := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range frame.Pix {
		frame.Pix[i] = pkt.Payload[0]
	}
	return frame, nil
}

// byteDecoder widens each payload byte into one PCM sample.
type byteDecoder struct{}

func (byteDecoder) Decode(pkt *rtp.Packet) ([]int16, error) {
	out := make([]int16, len(pkt.Payload))
	for i, b := range pkt.Payload {
		out[i] = int16(b)
	}
	return out, nil
}

func waitFrame(t *testing.T, s *TrackVideoSource, level uint8) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f := s.Frame(); f != nil && f.Pix[0] == level {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("frame at level %d never arrived", level)
}

func TestTrackVideoSourceRequestsKeyframeOnAttach(t *testing.T) {
	track := newFakeRTPTrack("cam-b")
	s := NewTrackVideoSource("Bob", track, grayDecoder{})
	defer s.Close()

	if track.keyframes != 1 {
		t.Fatalf("keyframe requests = %d, want 1 on attach", track.keyframes)
	}
	if s.ID() != "cam-b" || s.Label() != "Bob" {
		t.Errorf("source identity wrong: %s / %s", s.ID(), s.Label())
	}
	if s.Frame() != nil {
		t.Error("no picture can exist before the first decode")
	}
}

func TestTrackVideoSourceKeepsNewestFrame(t *testing.T) {
	track := newFakeRTPTrack("cam-b")
	s := NewTrackVideoSource("Bob", track, grayDecoder{})
	defer s.Close()

	// Incomplete picture first: Frame stays nil.
	track.pkts <- &rtp.Packet{}
	track.pkts <- &rtp.Packet{Payload: []byte{7}}
	waitFrame(t, s, 7)

	track.pkts <- &rtp.Packet{Payload: []byte{9}}
	waitFrame(t, s, 9)

	// Track ending freezes the last picture rather than clearing it.
	close(track.pkts)
	time.Sleep(20 * time.Millisecond)
	if f := s.Frame(); f == nil || f.Pix[0] != 9 {
		t.Error("last frame lost when the track ended")
	}
}

func TestTrackAudioSourceDrainsInOrder(t *testing.T) {
	track := newFakeRTPTrack("mic-b")
	s := NewTrackAudioSource(track, byteDecoder{})
	defer s.Close()

	track.pkts <- &rtp.Packet{Payload: []byte{1, 2}}
	track.pkts <- &rtp.Packet{Payload: []byte{3}}

	got := make([]int16, 0, 3)
	dst := make([]int16, 8)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 3 && time.Now().Before(deadline) {
		n := s.ReadPCM(dst)
		got = append(got, dst[:n]...)
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("drained %v, want [1 2 3]", got)
	}
	if n := s.ReadPCM(dst); n != 0 {
		t.Errorf("empty buffer read %d samples", n)
	}
}

func TestTrackAudioSourceBoundsBacklog(t *testing.T) {
	track := newFakeRTPTrack("mic-b")
	s := NewTrackAudioSource(track, byteDecoder{})
	defer s.Close()
	s.mu.Lock()
	s.max = 4
	s.mu.Unlock()

	track.pkts <- &rtp.Packet{Payload: []byte{1, 2, 3, 4, 5, 6}}

	dst := make([]int16, 8)
	var n int
	deadline := time.Now().Add(2 * time.Second)
	for n == 0 && time.Now().Before(deadline) {
		n = s.ReadPCM(dst)
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
	// Oldest samples fall off; the newest window survives.
	if n != 4 || dst[0] != 3 || dst[3] != 6 {
		t.Fatalf("kept %v (n=%d), want the newest 4 samples", dst[:n], n)
	}
}
