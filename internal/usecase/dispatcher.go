package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"pickasso/internal/domain"
	"pickasso/internal/ports"
)

// ErrStoreUnavailable wraps every failure to reach the status/history store.
var ErrStoreUnavailable = errors.New("status store is unavailable")

// CommandDispatcher records commands and moves the robot snapshot along.
type CommandDispatcher struct {
	store ports.Store
	now   func() time.Time

	mu      sync.Mutex
	last    time.Time
	entropy io.Reader
}

func NewCommandDispatcher(store ports.Store) *CommandDispatcher {
	return &CommandDispatcher{
		store:   store,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Initialize creates the default snapshot if none exists. Safe to repeat.
func (d *CommandDispatcher) Initialize(ctx context.Context) error {
	if err := d.store.EnsureSnapshot(ctx); err != nil {
		return fmt.Errorf("%w: ensure snapshot: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Dispatch appends a completed command and patches the snapshot.
//
// When the append fails the returned record has Success false and a reason
// describing the failure. A failed snapshot patch still returns the recorded
// command together with the error.
func (d *CommandDispatcher) Dispatch(ctx context.Context, commandType domain.CommandType, payload map[string]any) (domain.CommandRecord, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	timestamp, id, err := d.stamp()
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("generate command id: %w", err)
	}

	reason := domain.ReasonFor(commandType)
	record := domain.CommandRecord{
		ID:        id,
		Type:      commandType,
		Payload:   payload,
		Status:    domain.CommandStatusCompleted,
		Timestamp: timestamp,
		Reason:    reason,
		Success:   true,
	}

	if err := d.store.AppendCommand(ctx, record); err != nil {
		failed := record
		failed.Success = false
		failed.Reason = fmt.Sprintf("Command %s could not be recorded: %v", commandType, err)
		return failed, fmt.Errorf("%w: append command: %v", ErrStoreUnavailable, err)
	}

	patch := domain.SnapshotPatch{
		State:           string(commandType),
		CurrentDecision: string(commandType),
		CurrentReason:   reason,
	}
	if err := d.store.PatchSnapshot(ctx, patch); err != nil {
		return record, fmt.Errorf("%w: patch snapshot: %v", ErrStoreUnavailable, err)
	}

	return record, nil
}

// stamp hands out strictly increasing timestamps and matching ULIDs.
func (d *CommandDispatcher) stamp() (time.Time, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := d.now().UTC().Truncate(time.Microsecond)
	if !ts.After(d.last) {
		ts = d.last.Add(time.Microsecond)
	}
	d.last = ts

	id, err := ulid.New(ulid.Timestamp(ts), d.entropy)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, id.String(), nil
}
