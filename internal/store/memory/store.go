// Package memory keeps the robot snapshot and command log in process.
package memory

import (
	"context"
	"sort"
	"sync"

	"pickasso/internal/domain"
)

// Store is safe for concurrent use. Values are copied in and out so
// callers never share slices or pointers with the store.
type Store struct {
	mu       sync.RWMutex
	snapshot *domain.RobotStatusSnapshot
	commands []domain.CommandRecord
	capacity int
}

// New returns an empty store. A positive capacity bounds the command log,
// dropping the oldest records first.
func New(capacity int) *Store {
	return &Store{capacity: capacity}
}

func (s *Store) EnsureSnapshot(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		snapshot := domain.DefaultSnapshot()
		s.snapshot = &snapshot
	}
	return nil
}

func (s *Store) Snapshot(_ context.Context) (*domain.RobotStatusSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, nil
	}
	clone := s.snapshot.Clone()
	return &clone, nil
}

func (s *Store) ReplaceSnapshot(_ context.Context, snapshot domain.RobotStatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := snapshot.Clone()
	s.snapshot = &clone
	return nil
}

func (s *Store) PatchSnapshot(_ context.Context, patch domain.SnapshotPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		s.snapshot.Apply(patch)
	}
	return nil
}

func (s *Store) AppendCommand(_ context.Context, record domain.CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cloneRecord(record))
	if s.capacity > 0 && len(s.commands) > s.capacity {
		s.commands = append([]domain.CommandRecord(nil), s.commands[len(s.commands)-s.capacity:]...)
	}
	return nil
}

// RecentCommands returns up to limit records, newest first.
func (s *Store) RecentCommands(_ context.Context, limit int) ([]domain.CommandRecord, error) {
	s.mu.RLock()
	out := make([]domain.CommandRecord, 0, len(s.commands))
	for _, record := range s.commands {
		out = append(out, cloneRecord(record))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

func cloneRecord(record domain.CommandRecord) domain.CommandRecord {
	out := record
	out.Payload = make(map[string]any, len(record.Payload))
	for k, v := range record.Payload {
		out.Payload[k] = v
	}
	return out
}
