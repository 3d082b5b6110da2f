package transcript

import (
	"context"
	"errors"
	"testing"
	"time"

	"pickasso/internal/domain"
	"pickasso/internal/ports"
)

func TestRelayDisabledIsUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := NewRelay(false).Start(context.Background()); !errors.Is(err, ports.ErrSourceUnsupported) {
		t.Fatalf("expected ErrSourceUnsupported, got %v", err)
	}
}

func TestRelayPushCarriesSessionAndSequence(t *testing.T) {
	t.Parallel()

	relay := NewRelay(true)
	session, err := relay.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := relay.Push(context.Background(), false, " hey "); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := relay.Push(context.Background(), true, "hey turtle"); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	first := receive(t, relay.Events())
	second := receive(t, relay.Events())
	if first.Session != session || first.Transcript.Text != "hey" || first.Transcript.IsFinal() || first.Transcript.Sequence != 1 {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if second.Session != session || !second.Transcript.IsFinal() || second.Transcript.Sequence != 2 {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestRelayPushWithoutSessionFails(t *testing.T) {
	t.Parallel()

	relay := NewRelay(true)
	if err := relay.Push(context.Background(), true, "x"); !errors.Is(err, ErrRelayIdle) {
		t.Fatalf("expected ErrRelayIdle, got %v", err)
	}

	_, _ = relay.Start(context.Background())
	_ = relay.Stop()
	if relay.Active() {
		t.Fatalf("relay must be idle after stop")
	}
	if err := relay.Push(context.Background(), true, "x"); !errors.Is(err, ErrRelayIdle) {
		t.Fatalf("expected ErrRelayIdle after stop, got %v", err)
	}
}

func TestRelayRestartOpensNewSession(t *testing.T) {
	t.Parallel()

	relay := NewRelay(true)
	first, _ := relay.Start(context.Background())
	second, _ := relay.Start(context.Background())
	if second == first {
		t.Fatalf("expected a new session id")
	}

	ended := receive(t, relay.Events())
	if ended.Kind != domain.SourceEventEnded || ended.Session != first {
		t.Fatalf("expected end of first session, got %+v", ended)
	}

	_ = relay.Push(context.Background(), true, "move")
	if ev := receive(t, relay.Events()); ev.Session != second || ev.Transcript.Sequence != 1 {
		t.Fatalf("sequence must restart with the session: %+v", ev)
	}
}

func TestRelayEndReportsCause(t *testing.T) {
	t.Parallel()

	relay := NewRelay(true)
	session, _ := relay.Start(context.Background())
	cause := errors.New("network")

	if err := relay.End(context.Background(), cause); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	ev := receive(t, relay.Events())
	if ev.Kind != domain.SourceEventEnded || ev.Session != session || !errors.Is(ev.Err, cause) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if err := relay.End(context.Background(), nil); err != nil {
		t.Fatalf("second end should be a no-op: %v", err)
	}
}

func TestRelayStartAndStopNeverBlock(t *testing.T) {
	t.Parallel()

	relay := NewRelay(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, _ = relay.Start(context.Background())
			_ = relay.Stop()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("start/stop blocked with nobody reading events")
	}
}

func TestRelayCloseUnblocksPush(t *testing.T) {
	t.Parallel()

	relay := NewRelay(true)
	_, _ = relay.Start(context.Background())
	for i := 0; i < cap(relay.events); i++ {
		_ = relay.Push(context.Background(), false, "fill")
	}

	result := make(chan error, 1)
	go func() { result <- relay.Push(context.Background(), true, "blocked") }()

	time.Sleep(10 * time.Millisecond)
	_ = relay.Close()

	select {
	case err := <-result:
		if !errors.Is(err, ErrRelayClosed) {
			t.Fatalf("expected ErrRelayClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("push stayed blocked after close")
	}
	if _, err := relay.Start(context.Background()); !errors.Is(err, ErrRelayClosed) {
		t.Fatalf("expected closed relay to refuse sessions, got %v", err)
	}
}

func receive(t *testing.T, events <-chan domain.SourceEvent) domain.SourceEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for source event")
	}
	return domain.SourceEvent{}
}
