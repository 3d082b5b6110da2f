package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"pickasso/internal/domain"
	"pickasso/internal/ports"
)

func TestVoiceMachineStartEntersPassive(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	machine := NewVoiceMachine(source, NewCommandDispatcher(newFakeStore()), nil, events, Config{RestartDelay: 0})

	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer machine.Stop()

	status := machine.Status()
	if status.State != domain.ListeningStatePassive || !status.Listening || status.AwaitingCommand {
		t.Fatalf("unexpected status: %+v", status)
	}

	states := events.snapshotStates()
	if len(states) != 1 || states[0].reason != domain.ListeningReasonSourceStarted {
		t.Fatalf("unexpected announcements: %+v", states)
	}
}

func TestVoiceMachineStartTwice(t *testing.T) {
	t.Parallel()

	machine := NewVoiceMachine(newFakeSource(), NewCommandDispatcher(newFakeStore()), nil, &fakeEventSink{}, Config{})
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer machine.Stop()

	if err := machine.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestVoiceMachineStopBeforeStart(t *testing.T) {
	t.Parallel()

	machine := NewVoiceMachine(newFakeSource(), NewCommandDispatcher(newFakeStore()), nil, &fakeEventSink{}, Config{})
	if err := machine.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestVoiceMachineUnsupportedSourceStaysOffline(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.startErrs = []error{ports.ErrSourceUnsupported}
	events := &fakeEventSink{}
	machine := NewVoiceMachine(source, NewCommandDispatcher(newFakeStore()), nil, events, Config{RestartDelay: 0})

	err := machine.Start(context.Background())
	if !errors.Is(err, ports.ErrSourceUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	defer machine.Stop()

	status := machine.Status()
	if status.State != domain.ListeningStateOffline || status.Available {
		t.Fatalf("expected permanent offline, got %+v", status)
	}

	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeSourceUnavailable {
		t.Fatalf("expected one unavailable notice, got %+v", errs)
	}

	source.final("hey turtle")
	time.Sleep(30 * time.Millisecond)
	if starts, _ := source.counts(); starts != 1 {
		t.Fatalf("expected no further start attempts, got %d", starts)
	}
	if machine.Status().State != domain.ListeningStateOffline {
		t.Fatalf("expected offline after transcript")
	}
}

func TestVoiceMachineWakePhraseIsCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	machine := startMachine(t, source, newFakeStore(), events, Config{RestartDelay: 0})

	source.partial("please say")
	source.final("please say HEY TURTLE now")
	waitForAwaiting(t, machine, source)

	if got := machine.Status().Transcript; got != "" {
		t.Fatalf("expected cleared transcript, got %q", got)
	}
	transcripts := events.snapshotTranscripts()
	if len(transcripts) == 0 || transcripts[0] != "please say" {
		t.Fatalf("expected interim transcript to be displayed, got %v", transcripts)
	}
	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.ListeningReasonWakeDetected {
		t.Fatalf("unexpected last reason: %+v", states)
	}
}

func TestVoiceMachineNonWakeUtteranceStaysPassive(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	machine := startMachine(t, source, newFakeStore(), &fakeEventSink{}, Config{RestartDelay: 0})

	source.final("hello there")
	waitFor(t, "transcript display", func() bool { return machine.Status().Transcript == "hello there" })

	if machine.Status().State != domain.ListeningStatePassive {
		t.Fatalf("expected passive state")
	}
	if starts, _ := source.counts(); starts != 1 {
		t.Fatalf("expected no restart, got %d starts", starts)
	}
}

func TestVoiceMachineScenarioGrabDispatched(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()
	events := &fakeEventSink{}
	machine := startMachine(t, source, store, events, Config{RestartDelay: 0})

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)

	source.final("Grab the block")
	waitFor(t, "command published", func() bool { return len(events.snapshotCommands()) == 1 })

	record := events.snapshotCommands()[0]
	if record.Type != domain.CommandGrab {
		t.Fatalf("unexpected command type: %s", record.Type)
	}
	if record.Reason != "Object detected and verified safe to grab" || !record.Success {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.Payload["command"] != "grab the block" {
		t.Fatalf("unexpected payload: %+v", record.Payload)
	}

	status := machine.Status()
	if status.State != domain.ListeningStatePassive || status.LastCommand != string(domain.CommandGrab) {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.LastResult == nil || status.LastResult.ID != record.ID {
		t.Fatalf("expected last result to be tracked")
	}
	if starts, _ := source.counts(); starts != 3 {
		t.Fatalf("expected a restart after wake and after command, got %d starts", starts)
	}
	if len(store.snapshotRecords()) != 1 {
		t.Fatalf("expected one stored record")
	}
}

func TestVoiceMachineScenarioUnrecognizedCommand(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()
	events := &fakeEventSink{}
	machine := startMachine(t, source, store, events, Config{RestartDelay: 0})

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)

	source.final("what time is it")
	waitFor(t, "rejection", func() bool {
		states := events.snapshotStates()
		return states[len(states)-1].reason == domain.ListeningReasonCommandRejected
	})

	if machine.Status().State != domain.ListeningStatePassive {
		t.Fatalf("expected passive state")
	}
	time.Sleep(20 * time.Millisecond)
	if len(store.snapshotRecords()) != 0 || len(events.snapshotCommands()) != 0 {
		t.Fatalf("expected no dispatch")
	}
}

func TestVoiceMachineClassificationPriority(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	machine := startMachine(t, source, newFakeStore(), events, Config{RestartDelay: 0})

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)
	source.final("move and then stop")
	waitFor(t, "command published", func() bool { return len(events.snapshotCommands()) == 1 })

	if got := events.snapshotCommands()[0].Type; got != domain.CommandMove {
		t.Fatalf("expected MOVE, got %s", got)
	}
}

func TestVoiceMachineWindowTimesOut(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()
	events := &fakeEventSink{}
	window := 60 * time.Millisecond
	machine := startMachine(t, source, store, events, Config{RestartDelay: 0, CommandWindow: window})

	opened := time.Now()
	source.final("hey turtle")
	waitForAwaiting(t, machine, source)

	waitFor(t, "window expiry", func() bool { return machine.Status().State == domain.ListeningStatePassive })
	if elapsed := time.Since(opened); elapsed < window {
		t.Fatalf("window closed early after %s", elapsed)
	}

	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.ListeningReasonWindowExpired {
		t.Fatalf("expected window expired reason, got %+v", states[len(states)-1])
	}
	if len(store.snapshotRecords()) != 0 {
		t.Fatalf("expected no dispatch on timeout")
	}
}

func TestVoiceMachineCancelledWindowNeverFires(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	window := 80 * time.Millisecond
	machine := startMachine(t, source, newFakeStore(), events, Config{RestartDelay: 0, CommandWindow: window})

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)
	source.final("go home")
	waitFor(t, "command published", func() bool { return len(events.snapshotCommands()) == 1 })

	time.Sleep(2 * window)
	for _, state := range events.snapshotStates() {
		if state.reason == domain.ListeningReasonWindowExpired {
			t.Fatalf("cancelled window fired")
		}
	}
}

func TestVoiceMachineSpontaneousEndRestartsOnce(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	machine := startMachine(t, source, newFakeStore(), events, Config{RestartDelay: 0})

	source.end(nil)
	waitFor(t, "restart", func() bool {
		starts, _ := source.counts()
		return starts == 2
	})
	time.Sleep(20 * time.Millisecond)

	starts, stops := source.counts()
	if starts != 2 || stops != 1 {
		t.Fatalf("expected exactly one restart, got starts=%d stops=%d", starts, stops)
	}
	if machine.Status().State != domain.ListeningStatePassive {
		t.Fatalf("expected passive state to be preserved")
	}
	if states := events.snapshotStates(); len(states) != 1 {
		t.Fatalf("expected no state announcements from restart, got %+v", states)
	}
}

func TestVoiceMachineEndPreservesOpenWindow(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	machine := startMachine(t, source, newFakeStore(), events, Config{RestartDelay: 0})

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)

	source.end(errors.New("no-speech"))
	waitFor(t, "restart", func() bool {
		starts, _ := source.counts()
		return starts == 3
	})
	if machine.Status().State != domain.ListeningStateAwaitingCommand {
		t.Fatalf("expected window to survive the restart")
	}

	source.final("place it on the conveyor")
	waitFor(t, "command published", func() bool { return len(events.snapshotCommands()) == 1 })
	if got := events.snapshotCommands()[0].Type; got != domain.CommandPlace {
		t.Fatalf("expected PLACE, got %s", got)
	}
}

func TestVoiceMachineRestartFailureGoesOffline(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	boom := errors.New("recognizer busy")
	source.startErrs = []error{nil, boom, boom, boom}
	events := &fakeEventSink{}
	machine := startMachine(t, source, newFakeStore(), events, Config{RestartDelay: 0, RestartAttempts: 3})

	source.end(nil)
	waitFor(t, "offline", func() bool { return machine.Status().State == domain.ListeningStateOffline })

	if starts, _ := source.counts(); starts != 4 {
		t.Fatalf("expected three restart attempts, got %d starts", starts)
	}
	status := machine.Status()
	if status.Available {
		t.Fatalf("expected voice to be unavailable")
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeSourceRestart {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.ListeningReasonSourceLost {
		t.Fatalf("unexpected last reason: %+v", states[len(states)-1])
	}
}

func TestVoiceMachineIgnoresStaleSessionEvents(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	machine := startMachine(t, source, newFakeStore(), &fakeEventSink{}, Config{RestartDelay: 0})

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)

	source.emitFor(1, domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "stop", Sequence: 9})
	source.emitEnded(1)
	time.Sleep(30 * time.Millisecond)

	if machine.Status().State != domain.ListeningStateAwaitingCommand {
		t.Fatalf("stale session event changed state")
	}
	if starts, _ := source.counts(); starts != 2 {
		t.Fatalf("stale end triggered a restart: %d starts", starts)
	}
}

func TestVoiceMachineDispatchFailureIsSurfaced(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()
	store.appendErr = errors.New("connection refused")
	events := &fakeEventSink{}
	machine := startMachine(t, source, store, events, Config{RestartDelay: 0})

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)
	source.final("stop")

	waitFor(t, "dispatch error", func() bool { return len(events.snapshotErrors()) == 1 })
	if code := events.snapshotErrors()[0].code; code != domain.ErrorCodeDispatch {
		t.Fatalf("unexpected error code: %s", code)
	}
	status := machine.Status()
	if status.State != domain.ListeningStatePassive {
		t.Fatalf("expected passive after failed dispatch")
	}
	if status.LastResult == nil || status.LastResult.Success {
		t.Fatalf("expected failed last result, got %+v", status.LastResult)
	}
}

func TestVoiceMachineManualDispatchLeavesStateAlone(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	store := newFakeStore()
	events := &fakeEventSink{}
	dispatcher := NewCommandDispatcher(store)
	machine := NewVoiceMachine(source, dispatcher, nil, events, Config{RestartDelay: 0})
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer machine.Stop()

	before := machine.Status()
	if _, err := dispatcher.Dispatch(context.Background(), domain.CommandStop, map[string]any{"manual": true}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	after := machine.Status()
	if after.State != before.State || after.LastCommand != before.LastCommand {
		t.Fatalf("manual dispatch changed voice status: %+v -> %+v", before, after)
	}
	if len(events.snapshotStates()) != 1 {
		t.Fatalf("manual dispatch produced announcements")
	}
}

func TestVoiceMachineAppliesPhraseRules(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	rules := &fakeRules{replace: map[string]string{"hey total": "hey turtle"}}
	machine := NewVoiceMachine(source, NewCommandDispatcher(newFakeStore()), rules, &fakeEventSink{}, Config{RestartDelay: 0})
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer machine.Stop()

	source.final("Hey Total")
	waitForAwaiting(t, machine, source)
}

func TestVoiceMachineRulesFailureFallsBack(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	rules := &fakeRules{err: errors.New("rules broke")}
	machine := NewVoiceMachine(source, NewCommandDispatcher(newFakeStore()), rules, events, Config{RestartDelay: 0})
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer machine.Stop()

	source.final("HEY TURTLE")
	waitForAwaiting(t, machine, source)

	errs := events.snapshotErrors()
	if len(errs) == 0 || errs[0].code != domain.ErrorCodeRules {
		t.Fatalf("expected rules error, got %+v", errs)
	}
}

func TestVoiceMachineStopCancelsWindow(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	events := &fakeEventSink{}
	machine := NewVoiceMachine(source, NewCommandDispatcher(newFakeStore()), nil, events, Config{RestartDelay: 0, CommandWindow: 40 * time.Millisecond})
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	source.final("hey turtle")
	waitForAwaiting(t, machine, source)

	if err := machine.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := machine.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	states := events.snapshotStates()
	last := states[len(states)-1]
	if last.state != domain.ListeningStateOffline || last.reason != domain.ListeningReasonStopped {
		t.Fatalf("unexpected final announcement: %+v", last)
	}
	if machine.Status().Listening {
		t.Fatalf("expected not listening after stop")
	}
}

func startMachine(t *testing.T, source *fakeSource, store *fakeStore, events *fakeEventSink, cfg Config) *VoiceMachine {
	t.Helper()
	machine := NewVoiceMachine(source, NewCommandDispatcher(store), nil, events, cfg)
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = machine.Stop() })
	return machine
}

// waitForAwaiting also waits for the post-wake restart so the next
// utterance lands on the fresh session.
func waitForAwaiting(t *testing.T, machine *VoiceMachine, source *fakeSource) {
	t.Helper()
	starts, _ := source.counts()
	waitFor(t, "awaiting command", func() bool {
		current, _ := source.counts()
		return machine.Status().State == domain.ListeningStateAwaitingCommand && current > starts && source.isStarted()
	})
	// Let the actor consume the restart before the next utterance.
	time.Sleep(10 * time.Millisecond)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeSource struct {
	mu sync.Mutex

	events    chan domain.SourceEvent
	next      uint64
	current   uint64
	sequence  int
	startErrs []error

	startCalls int
	stopCalls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan domain.SourceEvent, 64)}
}

func (f *fakeSource) Start(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.next++
	f.current = f.next
	f.sequence = 0
	return f.current, nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.current != 0 {
		select {
		case f.events <- domain.SourceEvent{Kind: domain.SourceEventEnded, Session: f.current}:
		default:
		}
	}
	f.current = 0
	return nil
}

func (f *fakeSource) Events() <-chan domain.SourceEvent { return f.events }

func (f *fakeSource) partial(text string) {
	f.emit(domain.TranscriptKindPartial, text)
}

func (f *fakeSource) final(text string) {
	f.emit(domain.TranscriptKindFinal, text)
}

func (f *fakeSource) emit(kind domain.TranscriptKind, text string) {
	f.mu.Lock()
	f.sequence++
	ev := domain.SourceEvent{
		Kind:       domain.SourceEventResult,
		Session:    f.current,
		Transcript: domain.TranscriptEvent{Kind: kind, Text: text, Sequence: f.sequence},
	}
	f.mu.Unlock()
	f.events <- ev
}

func (f *fakeSource) emitFor(session uint64, event domain.TranscriptEvent) {
	f.events <- domain.SourceEvent{Kind: domain.SourceEventResult, Session: session, Transcript: event}
}

func (f *fakeSource) emitEnded(session uint64) {
	f.events <- domain.SourceEvent{Kind: domain.SourceEventEnded, Session: session}
}

// end simulates the recognizer stopping on its own.
func (f *fakeSource) end(err error) {
	f.mu.Lock()
	session := f.current
	f.current = 0
	f.mu.Unlock()
	f.events <- domain.SourceEvent{Kind: domain.SourceEventEnded, Session: session, Err: err}
}

func (f *fakeSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.stopCalls
}

func (f *fakeSource) isStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current != 0
}

type fakeStore struct {
	mu sync.Mutex

	snapshot    *domain.RobotStatusSnapshot
	records     []domain.CommandRecord
	ensureCalls int

	ensureErr error
	appendErr error
	patchErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) EnsureSnapshot(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if f.snapshot == nil {
		snapshot := domain.DefaultSnapshot()
		f.snapshot = &snapshot
	}
	return nil
}

func (f *fakeStore) Snapshot(_ context.Context) (*domain.RobotStatusSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return nil, nil
	}
	out := f.snapshot.Clone()
	return &out, nil
}

func (f *fakeStore) ReplaceSnapshot(_ context.Context, snapshot domain.RobotStatusSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := snapshot.Clone()
	f.snapshot = &clone
	return nil
}

func (f *fakeStore) PatchSnapshot(_ context.Context, patch domain.SnapshotPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	if f.snapshot != nil {
		f.snapshot.Apply(patch)
	}
	return nil
}

func (f *fakeStore) AppendCommand(_ context.Context, record domain.CommandRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeStore) RecentCommands(_ context.Context, limit int) ([]domain.CommandRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.CommandRecord(nil), f.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) snapshotRecords() []domain.CommandRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CommandRecord(nil), f.records...)
}

type fakeRules struct {
	replace map[string]string
	err     error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.replace[text]; ok {
		return out, nil
	}
	return text, nil
}

type fakeEventSink struct {
	mu sync.Mutex

	states      []stateEvent
	transcripts []string
	commands    []domain.CommandRecord
	errors      []errEvent
}

type stateEvent struct {
	state  domain.ListeningState
	reason domain.ListeningReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) ListeningStateChanged(state domain.ListeningState, reason domain.ListeningReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) TranscriptChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) CommandDispatched(record domain.CommandRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, record)
}

func (f *fakeEventSink) VoiceError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotTranscripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcripts...)
}

func (f *fakeEventSink) snapshotCommands() []domain.CommandRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CommandRecord(nil), f.commands...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}
