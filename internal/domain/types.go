package domain

import "time"

// ListeningState models the wake/command lifecycle of one voice session.
type ListeningState string

const (
	ListeningStateOffline         ListeningState = "offline"
	ListeningStatePassive         ListeningState = "passive"
	ListeningStateAwaitingCommand ListeningState = "awaiting_command"
)

// ListeningReason provides a structured reason for state announcements.
type ListeningReason string

const (
	ListeningReasonSourceStarted     ListeningReason = "source_started"
	ListeningReasonWakeDetected      ListeningReason = "wake_detected"
	ListeningReasonCommandAccepted   ListeningReason = "command_accepted"
	ListeningReasonCommandRejected   ListeningReason = "command_not_recognized"
	ListeningReasonWindowExpired     ListeningReason = "window_expired"
	ListeningReasonSourceUnavailable ListeningReason = "source_unavailable"
	ListeningReasonSourceLost        ListeningReason = "source_lost"
	ListeningReasonStopped           ListeningReason = "stopped"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeSourceUnavailable ErrorCode = "source_unavailable"
	ErrorCodeSourceRestart     ErrorCode = "source_restart"
	ErrorCodeRules             ErrorCode = "rules"
	ErrorCodeDispatch          ErrorCode = "dispatch"
	ErrorCodeStore             ErrorCode = "store"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a recognizer.
// Sequence increases within one recognition session.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	Sequence      int            `json:"sequence"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

func (e TranscriptEvent) IsFinal() bool {
	return e.Kind == TranscriptKindFinal
}

// SourceEventKind distinguishes recognition results from session ends.
type SourceEventKind string

const (
	SourceEventResult SourceEventKind = "result"
	SourceEventEnded  SourceEventKind = "ended"
)

// SourceEvent is emitted by a transcript source for one recognition session.
type SourceEvent struct {
	Kind       SourceEventKind
	Session    uint64
	Transcript TranscriptEvent
	Err        error
}

// VoiceStatus summarizes the voice session for readers.
type VoiceStatus struct {
	State           ListeningState  `json:"state"`
	Listening       bool            `json:"listening"`
	AwaitingCommand bool            `json:"awaitingCommand"`
	Available       bool            `json:"available"`
	Transcript      string          `json:"transcript"`
	LastCommand     string          `json:"lastCommand,omitempty"`
	LastResult      *CommandRecord  `json:"lastResult,omitempty"`
	Reason          ListeningReason `json:"reason,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
