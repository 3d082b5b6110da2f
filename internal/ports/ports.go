package ports

import (
	"context"
	"errors"
	"io"

	"pickasso/internal/domain"
)

// ErrSourceUnsupported marks a transcript source the environment cannot provide.
var ErrSourceUnsupported = errors.New("speech recognition is not supported in this environment")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// TranscriptSource is a continuous recognizer with interim results.
//
// Start opens a new recognition session and returns its id, ending any
// session already open. Every event carries the id of the session that
// produced it. Events emitted while Start or Stop run must not block.
type TranscriptSource interface {
	Start(ctx context.Context) (uint64, error)
	Stop() error
	Events() <-chan domain.SourceEvent
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Store persists the robot snapshot and the command log.
type Store interface {
	EnsureSnapshot(ctx context.Context) error
	Snapshot(ctx context.Context) (*domain.RobotStatusSnapshot, error)
	ReplaceSnapshot(ctx context.Context, snapshot domain.RobotStatusSnapshot) error
	PatchSnapshot(ctx context.Context, patch domain.SnapshotPatch) error
	AppendCommand(ctx context.Context, record domain.CommandRecord) error
	RecentCommands(ctx context.Context, limit int) ([]domain.CommandRecord, error)
	Close() error
}

// CommandDispatcher records a command and updates the robot snapshot.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, commandType domain.CommandType, payload map[string]any) (domain.CommandRecord, error)
}

// EventSink emits backend state/events to the dashboard.
type EventSink interface {
	ListeningStateChanged(state domain.ListeningState, reason domain.ListeningReason)
	TranscriptChanged(text string)
	CommandDispatched(record domain.CommandRecord)
	VoiceError(code domain.ErrorCode, detail string)
}
