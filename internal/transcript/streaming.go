package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"pickasso/internal/domain"
	"pickasso/internal/ports"
)

const defaultChunkSize = 4096

// StreamingConfig wires microphone capture into a streaming provider.
type StreamingConfig struct {
	Audio     ports.AudioConfig
	Stream    ports.StreamingConfig
	ChunkSize int
}

// Streaming is a server-side transcript source: microphone PCM is pumped
// into a provider websocket and its results are relayed as source events.
type Streaming struct {
	capture  ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      StreamingConfig
	events   chan domain.SourceEvent

	mu     sync.Mutex
	next   uint64
	active *streamingRun
}

func NewStreaming(capture ports.AudioCapture, provider ports.TranscriptionProvider, cfg StreamingConfig) *Streaming {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Streaming{
		capture:  capture,
		provider: provider,
		cfg:      cfg,
		events:   make(chan domain.SourceEvent, 64),
	}
}

func (s *Streaming) Events() <-chan domain.SourceEvent {
	return s.events
}

// Start ends any running session and opens a new one.
func (s *Streaming) Start(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		_ = s.active.stop()
		s.active = nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := s.provider.StartStreaming(runCtx, s.cfg.Stream)
	if err != nil {
		cancel()
		return 0, err
	}
	audio, err := s.capture.Start(runCtx, s.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return 0, err
	}

	s.next++
	run := &streamingRun{
		id:      s.next,
		audio:   audio,
		stream:  stream,
		cancel:  cancel,
		halt:    make(chan struct{}),
		pumped:  make(chan error, 1),
		drained: make(chan struct{}),
	}
	go func() {
		run.pumped <- pumpAudioChunks(audio, stream, s.cfg.ChunkSize)
	}()
	go run.forward(s.events)

	s.active = run
	return run.id, nil
}

// Stop ends the running session without reporting it as ended.
func (s *Streaming) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil
	}
	err := s.active.stop()
	s.active = nil
	return err
}

type streamingRun struct {
	id     uint64
	audio  ports.AudioSession
	stream ports.StreamingSession
	cancel context.CancelFunc

	halt     chan struct{}
	haltOnce sync.Once
	pumped   chan error
	drained  chan struct{}
}

// forward relays provider results until the stream closes, then reports
// the end unless the session was stopped on purpose.
func (r *streamingRun) forward(out chan<- domain.SourceEvent) {
	defer close(r.drained)

	for event := range r.stream.Events() {
		select {
		case out <- domain.SourceEvent{Kind: domain.SourceEventResult, Session: r.id, Transcript: event}:
		case <-r.halt:
			return
		}
	}

	streamErr := r.stream.Wait()
	_ = r.audio.Stop()
	pumpErr := <-r.pumped

	select {
	case <-r.halt:
		return
	default:
	}
	select {
	case out <- domain.SourceEvent{Kind: domain.SourceEventEnded, Session: r.id, Err: errors.Join(pumpErr, streamErr)}:
	case <-r.halt:
	}
}

func (r *streamingRun) stop() error {
	r.haltOnce.Do(func() { close(r.halt) })

	audioErr := r.audio.Stop()
	_ = r.stream.CloseSend()
	streamErr := r.stream.Close()
	r.cancel()
	<-r.drained

	if audioErr != nil {
		return fmt.Errorf("stop audio capture: %w", audioErr)
	}
	return streamErr
}

// pumpAudioChunks copies captured audio into the stream until capture ends,
// then half-closes the stream so the provider flushes final results.
func pumpAudioChunks(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int) error {
	defer func() { _ = stream.CloseSend() }()

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}
