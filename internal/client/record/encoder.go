package record

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"sync"
)

var ErrEncoderClosed = errors.New("encoder closed")

// Encoder accumulates the combined video+audio incrementally and
// assembles one artifact on Close. Implementations that wrap a real
// codec backend slot in here; the orchestration above never changes.
type Encoder interface {
	WriteVideo(frame *image.RGBA) error
	WriteAudio(pcm []int16) error
	// Close flushes and returns the complete artifact plus its MIME type.
	Close() ([]byte, string, error)
}

// MJPEGEncoder encodes frames as JPEG and muxes them with the PCM
// track into an AVI container. Pure Go: no native codec dependency,
// large output; a hardware-backed Encoder replaces it where available.
type MJPEGEncoder struct {
	fps        int
	sampleRate int
	quality    int

	mu      sync.Mutex
	chunks  []chunk
	pcm     []int16
	frames  int
	samples int
	width   int
	height  int
	closed  bool
}

func NewMJPEGEncoder(fps, sampleRate int) *MJPEGEncoder {
	return &MJPEGEncoder{fps: fps, sampleRate: sampleRate, quality: 80}
}

func (e *MJPEGEncoder) WriteVideo(frame *image.RGBA) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEncoderClosed
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: e.quality}); err != nil {
		return err
	}
	if e.frames == 0 {
		b := frame.Bounds()
		e.width, e.height = b.Dx(), b.Dy()
	}
	e.chunks = append(e.chunks, chunk{id: videoChunkID, data: buf.Bytes()})
	e.frames++

	// Interleave: flush the audio backlog right after each frame.
	if len(e.pcm) > 0 {
		e.chunks = append(e.chunks, chunk{id: audioChunkID, data: pcmBytes(e.pcm)})
		e.samples += len(e.pcm)
		e.pcm = e.pcm[:0]
	}
	return nil
}

func (e *MJPEGEncoder) WriteAudio(pcm []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEncoderClosed
	}
	e.pcm = append(e.pcm, pcm...)
	return nil
}

func (e *MJPEGEncoder) Close() ([]byte, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, "", ErrEncoderClosed
	}
	e.closed = true
	if len(e.pcm) > 0 {
		e.chunks = append(e.chunks, chunk{id: audioChunkID, data: pcmBytes(e.pcm)})
		e.samples += len(e.pcm)
		e.pcm = nil
	}
	if e.frames == 0 {
		return nil, "video/x-msvideo", nil
	}
	data := muxAVI(aviParams{
		Width:      e.width,
		Height:     e.height,
		FPS:        e.fps,
		SampleRate: e.sampleRate,
		Frames:     e.frames,
		Samples:    e.samples,
	}, e.chunks)
	e.chunks = nil
	return data, "video/x-msvideo", nil
}

func pcmBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
