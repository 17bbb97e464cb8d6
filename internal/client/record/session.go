package record

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/domain"
)

var (
	ErrAlreadyRecording = errors.New("recording already running")
	ErrNotRecording     = errors.New("no recording running")
)

// Artifact is the single blob a finished session produces.
type Artifact struct {
	ID    string
	Room  domain.RoomID
	Start time.Time
	End   time.Time
	MIME  string
	Data  []byte
}

// Uploader is the external persistence collaborator; the engine hands
// the finished blob over and owns nothing afterwards.
type Uploader interface {
	Upload(ctx context.Context, a Artifact) error
}

type Config struct {
	Room       domain.RoomID
	Width      int
	Height     int
	FPS        int
	SampleRate int
}

// Session owns one recording: hidden render sources per participant,
// the cadence loop, and the accumulated encoder state.
type Session struct {
	cfg   Config
	comp  *Compositor
	mixer *Mixer
	up    Uploader

	mu      sync.Mutex
	enc     Encoder
	video   []VideoSource
	audio   []AudioSource
	running bool
	stopped bool
	start   time.Time
	encErr  error
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSession(cfg Config, enc Encoder, up Uploader) *Session {
	if cfg.FPS <= 0 {
		cfg.FPS = 24
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &Session{
		cfg:   cfg,
		comp:  NewCompositor(cfg.Width, cfg.Height),
		mixer: NewMixer(cfg.SampleRate / cfg.FPS),
		enc:   enc,
		up:    up,
	}
}

// AddVideoSource registers a participant cell. Order of registration is
// the tile order; the local stream is expected first.
func (s *Session) AddVideoSource(src VideoSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.video {
		if v.ID() == src.ID() {
			return
		}
	}
	s.video = append(s.video, src)
}

func (s *Session) AddAudioSource(src AudioSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.audio {
		if a.ID() == src.ID() {
			return
		}
	}
	s.audio = append(s.audio, src)
}

// RemoveSource drops the participant's video and audio. A participant
// leaving mid-recording is simply omitted from subsequent frames.
func (s *Session) RemoveSource(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.video {
		if v.ID() == id {
			s.video = append(s.video[:i], s.video[i+1:]...)
			break
		}
	}
	for i, a := range s.audio {
		if a.ID() == id {
			s.audio = append(s.audio[:i], s.audio[i+1:]...)
			break
		}
	}
}

func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopped {
		return ErrAlreadyRecording
	}
	s.running = true
	s.start = time.Now()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
	log.Info().Str("module", "client.record").Str("room", string(s.cfg.Room)).Msg("recording started")
	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()

	samplesPerFrame := s.cfg.SampleRate / s.cfg.FPS
	pcm := make([]int16, samplesPerFrame)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.step(pcm); err != nil {
				// Encoder failure aborts the session; the artifact is
				// dropped rather than flushed half-corrupt.
				s.mu.Lock()
				s.encErr = err
				s.running = false
				s.mu.Unlock()
				log.Error().Err(err).Str("module", "client.record").Msg("encoder failed, aborting recording")
				return
			}
		}
	}
}

func (s *Session) step(pcm []int16) error {
	s.mu.Lock()
	tiles := make([]Tile, len(s.video))
	for i, v := range s.video {
		tiles[i] = Tile{Label: v.Label(), Frame: v.Frame()}
	}
	audio := make([]AudioSource, len(s.audio))
	copy(audio, s.audio)
	enc := s.enc
	s.mu.Unlock()

	frame := s.comp.Compose(tiles)
	if err := enc.WriteVideo(frame); err != nil {
		return err
	}
	s.mixer.Mix(pcm, audio)
	return enc.WriteAudio(pcm)
}

// Stop flushes the encoder, assembles the artifact, hands it to the
// uploader and releases everything. An aborted or already-stopped
// session returns an empty artifact and the recorded error.
func (s *Session) Stop(ctx context.Context) (Artifact, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Artifact{}, ErrNotRecording
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	encErr := s.encErr
	cancel := s.cancel
	done := s.done
	start := s.start
	s.video = nil
	s.audio = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if !wasRunning && encErr == nil {
		return Artifact{}, ErrNotRecording
	}

	data, mime, err := s.enc.Close()
	if encErr != nil {
		return Artifact{}, encErr
	}
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{
		ID:    uuid.NewString(),
		Room:  s.cfg.Room,
		Start: start,
		End:   time.Now(),
		MIME:  mime,
		Data:  data,
	}
	log.Info().Str("module", "client.record").Str("room", string(s.cfg.Room)).
		Int("bytes", len(data)).Dur("duration", a.End.Sub(a.Start)).Msg("recording stopped")
	if s.up != nil {
		if err := s.up.Upload(ctx, a); err != nil {
			return a, err
		}
	}
	return a, nil
}
