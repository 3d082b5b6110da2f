// Package transcript provides ports.TranscriptSource implementations.
package transcript

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pickasso/internal/domain"
	"pickasso/internal/ports"
)

var (
	ErrRelayIdle   = errors.New("no recognition session is open")
	ErrRelayClosed = errors.New("transcript relay is closed")
)

// Relay is a transcript source fed by a recognizer running elsewhere,
// typically the dashboard's in-browser speech recognition over a websocket.
type Relay struct {
	enabled bool
	events  chan domain.SourceEvent
	closed  chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	next     uint64
	session  uint64
	sequence int
}

func NewRelay(enabled bool) *Relay {
	return &Relay{
		enabled: enabled,
		events:  make(chan domain.SourceEvent, 64),
		closed:  make(chan struct{}),
	}
}

// Start opens a new session, ending the previous one.
func (r *Relay) Start(_ context.Context) (uint64, error) {
	if !r.enabled {
		return 0, ports.ErrSourceUnsupported
	}
	select {
	case <-r.closed:
		return 0, ErrRelayClosed
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != 0 {
		r.offer(domain.SourceEvent{Kind: domain.SourceEventEnded, Session: r.session})
	}
	r.next++
	r.session = r.next
	r.sequence = 0
	return r.session, nil
}

// Stop ends the open session, if any.
func (r *Relay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == 0 {
		return nil
	}
	r.offer(domain.SourceEvent{Kind: domain.SourceEventEnded, Session: r.session})
	r.session = 0
	return nil
}

func (r *Relay) Events() <-chan domain.SourceEvent {
	return r.events
}

// Push forwards one recognition result into the open session.
func (r *Relay) Push(ctx context.Context, final bool, text string) error {
	text = strings.TrimSpace(text)

	r.mu.Lock()
	if r.session == 0 {
		r.mu.Unlock()
		return ErrRelayIdle
	}
	r.sequence++
	kind := domain.TranscriptKindPartial
	if final {
		kind = domain.TranscriptKindFinal
	}
	ev := domain.SourceEvent{
		Kind:       domain.SourceEventResult,
		Session:    r.session,
		Transcript: domain.TranscriptEvent{Kind: kind, Text: text, Sequence: r.sequence, IsSpeechFinal: final},
	}
	r.mu.Unlock()

	return r.deliver(ctx, ev)
}

// End reports that the remote recognizer stopped on its own.
func (r *Relay) End(ctx context.Context, cause error) error {
	r.mu.Lock()
	if r.session == 0 {
		r.mu.Unlock()
		return nil
	}
	ev := domain.SourceEvent{Kind: domain.SourceEventEnded, Session: r.session, Err: cause}
	r.session = 0
	r.mu.Unlock()

	return r.deliver(ctx, ev)
}

// Close unblocks pending deliveries and rejects further sessions.
func (r *Relay) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

// Active reports whether a session is open.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != 0
}

// offer never blocks; it runs on the consumer's goroutine.
func (r *Relay) offer(ev domain.SourceEvent) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *Relay) deliver(ctx context.Context, ev domain.SourceEvent) error {
	select {
	case r.events <- ev:
		return nil
	case <-r.closed:
		return ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
