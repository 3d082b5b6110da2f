package usecase

import (
	"strings"

	"pickasso/internal/domain"
)

// machineEvent is one input to the voice state machine.
type machineEvent interface {
	isMachineEvent()
}

type startRequested struct{}

type stopRequested struct{}

type sourceStarted struct {
	session uint64
}

// sourceFailed means a start or restart could not be performed.
type sourceFailed struct {
	err error
}

type sourceEnded struct {
	session uint64
	err     error
}

// transcriptReceived carries the raw event plus the normalized text used for
// matching; normalized is only set for final events.
type transcriptReceived struct {
	session    uint64
	event      domain.TranscriptEvent
	normalized string
}

type windowTimedOut struct {
	seq uint64
}

type dispatchFinished struct {
	record domain.CommandRecord
	err    error
}

func (startRequested) isMachineEvent()     {}
func (stopRequested) isMachineEvent()      {}
func (sourceStarted) isMachineEvent()      {}
func (sourceFailed) isMachineEvent()       {}
func (sourceEnded) isMachineEvent()        {}
func (transcriptReceived) isMachineEvent() {}
func (windowTimedOut) isMachineEvent()     {}
func (dispatchFinished) isMachineEvent()   {}

// effect is a side effect requested by a transition.
type effect interface {
	isEffect()
}

type effectAnnounce struct {
	state  domain.ListeningState
	reason domain.ListeningReason
}

type effectSetTranscript struct {
	text string
}

type effectOpenWindow struct {
	seq uint64
}

type effectCancelWindow struct{}

type effectStartSource struct{}

type effectRestartSource struct{}

type effectStopSource struct{}

type effectDispatch struct {
	commandType domain.CommandType
	payload     map[string]any
}

type effectPublishResult struct {
	record domain.CommandRecord
	err    error
}

type effectReportError struct {
	code   domain.ErrorCode
	detail string
}

func (effectAnnounce) isEffect()      {}
func (effectSetTranscript) isEffect() {}
func (effectOpenWindow) isEffect()    {}
func (effectCancelWindow) isEffect()  {}
func (effectStartSource) isEffect()   {}
func (effectRestartSource) isEffect() {}
func (effectStopSource) isEffect()    {}
func (effectDispatch) isEffect()      {}
func (effectPublishResult) isEffect() {}
func (effectReportError) isEffect()   {}

// machineState is the single authoritative value owned by the actor.
type machineState struct {
	listening   domain.ListeningState
	session     uint64
	window      uint64 // open window sequence, zero when closed
	windowSeq   uint64 // last sequence handed out
	buffer      transcriptBuffer
	lastCommand string
	unavailable bool
	stopped     bool
}

func initialState() machineState {
	return machineState{listening: domain.ListeningStateOffline}
}

// transitions is the pure transition function of the voice state machine.
type transitions struct {
	wakePhrase string
	classifier Classifier
}

func (t transitions) next(s machineState, ev machineEvent) (machineState, []effect) {
	switch ev := ev.(type) {
	case startRequested:
		if s.stopped || s.unavailable || s.listening != domain.ListeningStateOffline {
			return s, nil
		}
		return s, []effect{effectStartSource{}}

	case sourceStarted:
		if s.stopped || s.unavailable {
			return s, nil
		}
		s.session = ev.session
		s.buffer = newTranscriptBuffer(ev.session)
		if s.listening != domain.ListeningStateOffline {
			return s, nil
		}
		s.listening = domain.ListeningStatePassive
		return s, []effect{effectAnnounce{state: s.listening, reason: domain.ListeningReasonSourceStarted}}

	case sourceFailed:
		if s.stopped || s.unavailable {
			return s, nil
		}
		code := domain.ErrorCodeSourceRestart
		reason := domain.ListeningReasonSourceLost
		if s.listening == domain.ListeningStateOffline {
			code = domain.ErrorCodeSourceUnavailable
			reason = domain.ListeningReasonSourceUnavailable
		}
		var effects []effect
		if s.window != 0 {
			effects = append(effects, effectCancelWindow{})
		}
		s.window = 0
		s.session = 0
		s.unavailable = true
		s.listening = domain.ListeningStateOffline
		s.buffer = s.buffer.clear()
		detail := ""
		if ev.err != nil {
			detail = ev.err.Error()
		}
		return s, append(effects,
			effectSetTranscript{},
			effectAnnounce{state: s.listening, reason: reason},
			effectReportError{code: code, detail: detail},
		)

	case sourceEnded:
		if s.listening == domain.ListeningStateOffline || ev.session != s.session {
			return s, nil
		}
		// Spontaneous end: restart and keep the state and any open window.
		return s, []effect{effectRestartSource{}}

	case transcriptReceived:
		if s.listening == domain.ListeningStateOffline {
			return s, nil
		}
		buffer, ok := s.buffer.accept(ev.session, ev.event)
		if !ok {
			return s, nil
		}
		s.buffer = buffer
		effects := []effect{effectSetTranscript{text: buffer.text}}
		if !ev.event.IsFinal() {
			return s, effects
		}
		return t.onFinal(s, ev.normalized, effects)

	case windowTimedOut:
		if s.listening != domain.ListeningStateAwaitingCommand || ev.seq != s.window {
			return s, nil
		}
		s.window = 0
		s.listening = domain.ListeningStatePassive
		s.buffer = s.buffer.clear()
		return s, []effect{
			effectCancelWindow{},
			effectSetTranscript{},
			effectAnnounce{state: s.listening, reason: domain.ListeningReasonWindowExpired},
		}

	case dispatchFinished:
		return s, []effect{effectPublishResult{record: ev.record, err: ev.err}}

	case stopRequested:
		if s.stopped {
			return s, nil
		}
		wasOffline := s.listening == domain.ListeningStateOffline
		var effects []effect
		if s.window != 0 {
			effects = append(effects, effectCancelWindow{})
		}
		s.stopped = true
		s.window = 0
		s.session = 0
		s.listening = domain.ListeningStateOffline
		effects = append(effects, effectStopSource{})
		if !wasOffline {
			effects = append(effects, effectAnnounce{state: s.listening, reason: domain.ListeningReasonStopped})
		}
		return s, effects
	}
	return s, nil
}

func (t transitions) onFinal(s machineState, utterance string, effects []effect) (machineState, []effect) {
	switch s.listening {
	case domain.ListeningStatePassive:
		if !strings.Contains(utterance, t.wakePhrase) {
			return s, effects
		}
		s.windowSeq++
		s.window = s.windowSeq
		s.listening = domain.ListeningStateAwaitingCommand
		s.buffer = s.buffer.clear()
		return s, append(effects,
			effectOpenWindow{seq: s.window},
			effectSetTranscript{},
			effectAnnounce{state: s.listening, reason: domain.ListeningReasonWakeDetected},
			effectRestartSource{},
		)

	case domain.ListeningStateAwaitingCommand:
		effects = append(effects, effectCancelWindow{})
		s.window = 0
		s.listening = domain.ListeningStatePassive
		s.buffer = s.buffer.clear()

		reason := domain.ListeningReasonCommandRejected
		if commandType, ok := t.classifier.Classify(utterance); ok {
			reason = domain.ListeningReasonCommandAccepted
			s.lastCommand = string(commandType)
			effects = append(effects, effectDispatch{
				commandType: commandType,
				payload:     map[string]any{"command": utterance},
			})
		}
		return s, append(effects,
			effectSetTranscript{},
			effectAnnounce{state: s.listening, reason: reason},
			effectRestartSource{},
		)
	}
	return s, effects
}
