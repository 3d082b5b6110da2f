package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pickasso/internal/domain"
	"pickasso/internal/ports"
)

var (
	ErrAlreadyStarted = errors.New("voice machine already started")
	ErrNotStarted     = errors.New("voice machine is not started")
)

const (
	DefaultWakePhrase      = "hey turtle"
	DefaultCommandWindow   = 5 * time.Second
	DefaultRestartDelay    = 100 * time.Millisecond
	DefaultRestartAttempts = 3
	DefaultDispatchTimeout = 5 * time.Second
)

// Config controls wake detection and recognizer recovery.
type Config struct {
	WakePhrase      string
	CommandWindow   time.Duration
	RestartDelay    time.Duration
	RestartAttempts int
	DispatchTimeout time.Duration
	Keywords        []KeywordRule
}

func (c Config) withDefaults() Config {
	c.WakePhrase = strings.ToLower(strings.TrimSpace(c.WakePhrase))
	if c.WakePhrase == "" {
		c.WakePhrase = DefaultWakePhrase
	}
	if c.CommandWindow <= 0 {
		c.CommandWindow = DefaultCommandWindow
	}
	if c.RestartDelay < 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.RestartAttempts <= 0 {
		c.RestartAttempts = DefaultRestartAttempts
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = DefaultDispatchTimeout
	}
	return c
}

// VoiceMachine turns a transcript stream into robot commands.
//
// One goroutine owns the listening state, the command window timer and the
// current source session. Source events, timer firings and dispatch results
// are all delivered to it as events.
type VoiceMachine struct {
	source     ports.TranscriptSource
	dispatcher ports.CommandDispatcher
	events     ports.EventSink
	rules      ports.RulesEngine
	cfg        Config
	fsm        transitions

	inbox      chan machineEvent
	done       chan struct{}
	exited     chan struct{}
	closeOnce  sync.Once
	dispatches sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	// Owned by the actor goroutine, or by Start/Stop while it is not running.
	state    machineState
	timer    *time.Timer
	startErr error

	statusMu sync.RWMutex
	status   domain.VoiceStatus
}

func NewVoiceMachine(
	source ports.TranscriptSource,
	dispatcher ports.CommandDispatcher,
	rules ports.RulesEngine,
	events ports.EventSink,
	cfg Config,
) *VoiceMachine {
	cfg = cfg.withDefaults()
	return &VoiceMachine{
		source:     source,
		dispatcher: dispatcher,
		events:     events,
		rules:      rules,
		cfg:        cfg,
		fsm:        transitions{wakePhrase: cfg.WakePhrase, classifier: NewClassifier(cfg.Keywords)},
		inbox:      make(chan machineEvent, 16),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
		state:      initialState(),
		status:     domain.VoiceStatus{State: domain.ListeningStateOffline, Available: true, UpdatedAt: time.Now()},
	}
}

// Start opens the transcript source and begins processing events. A source
// that is unsupported leaves the machine offline for good and is reported
// through the returned error; manual dispatch keeps working.
func (m *VoiceMachine) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	if m.started {
		m.lifecycleMu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.lifecycleMu.Unlock()

	m.handle(ctx, startRequested{})
	startErr := m.startErr

	go m.run(ctx)

	if startErr != nil {
		return fmt.Errorf("start transcript source: %w", startErr)
	}
	return nil
}

// Stop halts the source, cancels any open window and waits for in-flight
// dispatches to finish.
func (m *VoiceMachine) Stop() error {
	m.lifecycleMu.Lock()
	if !m.started {
		m.lifecycleMu.Unlock()
		return ErrNotStarted
	}
	if m.stopped {
		m.lifecycleMu.Unlock()
		return nil
	}
	m.stopped = true
	m.lifecycleMu.Unlock()

	m.closeOnce.Do(func() { close(m.done) })
	<-m.exited

	m.handle(context.Background(), stopRequested{})
	m.dispatches.Wait()
	return nil
}

// Status returns the current voice status.
func (m *VoiceMachine) Status() domain.VoiceStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	status := m.status
	if status.LastResult != nil {
		record := *status.LastResult
		status.LastResult = &record
	}
	return status
}

func (m *VoiceMachine) run(ctx context.Context) {
	defer close(m.exited)

	sourceEvents := m.source.Events()
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case ev := <-m.inbox:
			m.handle(ctx, ev)
		case sev, ok := <-sourceEvents:
			if !ok {
				sourceEvents = nil
				continue
			}
			m.handle(ctx, m.translate(sev))
		}
	}
}

// post delivers an event from a timer or dispatch goroutine.
func (m *VoiceMachine) post(ev machineEvent) {
	select {
	case m.inbox <- ev:
	case <-m.done:
	}
}

// handle runs one event to completion, including any events its effects
// produce, before the next input is read.
func (m *VoiceMachine) handle(ctx context.Context, ev machineEvent) {
	pending := []machineEvent{ev}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		next, effects := m.fsm.next(m.state, current)
		m.state = next
		m.syncStatus()

		for _, eff := range effects {
			if follow := m.execute(ctx, eff); follow != nil {
				pending = append(pending, follow)
			}
		}
	}
}

func (m *VoiceMachine) execute(ctx context.Context, eff effect) machineEvent {
	switch eff := eff.(type) {
	case effectAnnounce:
		m.updateStatus(func(s *domain.VoiceStatus) { s.Reason = eff.reason })
		m.events.ListeningStateChanged(eff.state, eff.reason)
	case effectSetTranscript:
		m.updateStatus(func(s *domain.VoiceStatus) { s.Transcript = eff.text })
		m.events.TranscriptChanged(eff.text)
	case effectOpenWindow:
		m.stopTimer()
		seq := eff.seq
		m.timer = time.AfterFunc(m.cfg.CommandWindow, func() {
			m.post(windowTimedOut{seq: seq})
		})
	case effectCancelWindow:
		m.stopTimer()
	case effectStartSource:
		session, err := m.source.Start(ctx)
		if err != nil {
			m.startErr = err
			return sourceFailed{err: err}
		}
		return sourceStarted{session: session}
	case effectRestartSource:
		return m.restartSource(ctx)
	case effectStopSource:
		m.stopTimer()
		if err := m.source.Stop(); err != nil {
			m.events.VoiceError(domain.ErrorCodeSourceRestart, fmt.Sprintf("failed to stop transcript source: %v", err))
		}
	case effectDispatch:
		m.dispatch(eff.commandType, eff.payload)
	case effectPublishResult:
		record := eff.record
		m.updateStatus(func(s *domain.VoiceStatus) { s.LastResult = &record })
		if eff.err != nil {
			m.events.VoiceError(domain.ErrorCodeDispatch, eff.err.Error())
			return nil
		}
		m.events.CommandDispatched(record)
	case effectReportError:
		m.events.VoiceError(eff.code, eff.detail)
	}
	return nil
}

// restartSource cycles the recognizer, retrying a bounded number of times.
func (m *VoiceMachine) restartSource(ctx context.Context) machineEvent {
	var lastErr error
	for attempt := 0; attempt < m.cfg.RestartAttempts; attempt++ {
		_ = m.source.Stop()
		if !m.sleep(ctx, m.cfg.RestartDelay) {
			// Shutting down; Stop settles the state.
			return nil
		}
		session, err := m.source.Start(ctx)
		if err == nil {
			return sourceStarted{session: session}
		}
		lastErr = err
		if errors.Is(err, ports.ErrSourceUnsupported) {
			break
		}
	}
	return sourceFailed{err: fmt.Errorf("restart transcript source: %w", lastErr)}
}

func (m *VoiceMachine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-m.done:
		return false
	}
}

func (m *VoiceMachine) dispatch(commandType domain.CommandType, payload map[string]any) {
	m.dispatches.Add(1)
	go func() {
		defer m.dispatches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DispatchTimeout)
		defer cancel()
		record, err := m.dispatcher.Dispatch(ctx, commandType, payload)
		m.post(dispatchFinished{record: record, err: err})
	}()
}

func (m *VoiceMachine) translate(sev domain.SourceEvent) machineEvent {
	switch sev.Kind {
	case domain.SourceEventEnded:
		return sourceEnded{session: sev.Session, err: sev.Err}
	default:
		ev := transcriptReceived{session: sev.Session, event: sev.Transcript}
		if sev.Transcript.IsFinal() {
			ev.normalized = m.normalize(sev.Transcript.Text)
		}
		return ev
	}
}

// normalize lower-cases an utterance and applies phrase rules. A rules
// failure falls back to the lower-cased text.
func (m *VoiceMachine) normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if m.rules == nil || lowered == "" {
		return lowered
	}
	transformed, err := m.rules.Apply(lowered)
	if err != nil {
		m.events.VoiceError(domain.ErrorCodeRules, err.Error())
		return lowered
	}
	return strings.ToLower(strings.TrimSpace(transformed))
}

func (m *VoiceMachine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *VoiceMachine) syncStatus() {
	state := m.state
	m.updateStatus(func(s *domain.VoiceStatus) {
		s.State = state.listening
		s.Listening = state.listening != domain.ListeningStateOffline
		s.AwaitingCommand = state.listening == domain.ListeningStateAwaitingCommand
		s.Available = !state.unavailable
		s.LastCommand = state.lastCommand
	})
}

func (m *VoiceMachine) updateStatus(apply func(*domain.VoiceStatus)) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	apply(&m.status)
	m.status.UpdatedAt = time.Now()
}
