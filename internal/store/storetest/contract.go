// Package storetest holds behaviour every ports.Store adapter must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"pickasso/internal/domain"
	"pickasso/internal/ports"
)

// Run exercises a store built fresh for each case by newStore.
func Run(t *testing.T, newStore func(t *testing.T) ports.Store) {
	t.Helper()

	t.Run("snapshot absent until ensured", func(t *testing.T) {
		store := newStore(t)
		snapshot, err := store.Snapshot(context.Background())
		if err != nil || snapshot != nil {
			t.Fatalf("expected no snapshot, got %+v err=%v", snapshot, err)
		}
	})

	t.Run("ensure is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.EnsureSnapshot(ctx); err != nil {
			t.Fatalf("ensure failed: %v", err)
		}
		if err := store.PatchSnapshot(ctx, domain.SnapshotPatch{State: "MOVE", CurrentDecision: "MOVE", CurrentReason: "r"}); err != nil {
			t.Fatalf("patch failed: %v", err)
		}
		if err := store.EnsureSnapshot(ctx); err != nil {
			t.Fatalf("second ensure failed: %v", err)
		}

		snapshot := mustSnapshot(t, store)
		if snapshot.State != "MOVE" {
			t.Fatalf("second ensure must not reset the snapshot: %+v", snapshot)
		}
	})

	t.Run("default snapshot", func(t *testing.T) {
		store := newStore(t)
		if err := store.EnsureSnapshot(context.Background()); err != nil {
			t.Fatalf("ensure failed: %v", err)
		}
		snapshot := mustSnapshot(t, store)
		if snapshot.State != domain.RobotStateIdle || snapshot.Battery != 100 || !snapshot.IsConnected {
			t.Fatalf("unexpected default snapshot: %+v", snapshot)
		}
		if snapshot.CurrentDecision == nil || *snapshot.CurrentDecision != domain.DefaultDecision {
			t.Fatalf("unexpected default decision: %+v", snapshot.CurrentDecision)
		}
		if snapshot.Errors == nil || len(snapshot.Errors) != 0 {
			t.Fatalf("expected empty error list, got %#v", snapshot.Errors)
		}
	})

	t.Run("patch leaves other fields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		replacement := domain.DefaultSnapshot()
		replacement.Position = domain.Position{X: 1.5, Y: -2, Z: 0.25}
		replacement.Battery = 42
		replacement.Errors = []string{"gripper jam"}
		if err := store.ReplaceSnapshot(ctx, replacement); err != nil {
			t.Fatalf("replace failed: %v", err)
		}
		if err := store.PatchSnapshot(ctx, domain.SnapshotPatch{State: "GRAB", CurrentDecision: "GRAB", CurrentReason: "Object detected and verified safe to grab"}); err != nil {
			t.Fatalf("patch failed: %v", err)
		}

		snapshot := mustSnapshot(t, store)
		if snapshot.State != "GRAB" || *snapshot.CurrentDecision != "GRAB" || *snapshot.CurrentReason != "Object detected and verified safe to grab" {
			t.Fatalf("patch not applied: %+v", snapshot)
		}
		if snapshot.Battery != 42 || snapshot.Position != replacement.Position || len(snapshot.Errors) != 1 {
			t.Fatalf("patch touched unrelated fields: %+v", snapshot)
		}
	})

	t.Run("patch without snapshot is a no-op", func(t *testing.T) {
		store := newStore(t)
		if err := store.PatchSnapshot(context.Background(), domain.SnapshotPatch{State: "STOP"}); err != nil {
			t.Fatalf("patch failed: %v", err)
		}
		if snapshot, _ := store.Snapshot(context.Background()); snapshot != nil {
			t.Fatalf("patch must not create a snapshot: %+v", snapshot)
		}
	})

	t.Run("recent commands newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		for i := 0; i < 7; i++ {
			record := domain.CommandRecord{
				ID:        fmt.Sprintf("cmd-%d", i),
				Type:      domain.CommandMove,
				Payload:   map[string]any{"manual": true},
				Status:    domain.CommandStatusCompleted,
				Timestamp: base.Add(time.Duration(i) * time.Millisecond),
				Reason:    domain.ReasonFor(domain.CommandMove),
				Success:   true,
			}
			if err := store.AppendCommand(ctx, record); err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}

		recent, err := store.RecentCommands(ctx, 5)
		if err != nil {
			t.Fatalf("recent failed: %v", err)
		}
		if len(recent) != 5 {
			t.Fatalf("expected 5 records, got %d", len(recent))
		}
		for i, record := range recent {
			if want := fmt.Sprintf("cmd-%d", 6-i); record.ID != want {
				t.Fatalf("record %d: expected %s, got %s", i, want, record.ID)
			}
		}
		if !recent[0].Timestamp.Equal(base.Add(6*time.Millisecond)) || recent[0].Payload["manual"] != true {
			t.Fatalf("record fields not preserved: %+v", recent[0])
		}
	})

	t.Run("recent commands with zero limit", func(t *testing.T) {
		store := newStore(t)
		recent, err := store.RecentCommands(context.Background(), 0)
		if err != nil || len(recent) != 0 {
			t.Fatalf("expected empty result, got %+v err=%v", recent, err)
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.AppendCommand(ctx, domain.CommandRecord{
					ID:        fmt.Sprintf("c%02d", i),
					Type:      domain.CommandStop,
					Payload:   map[string]any{},
					Status:    domain.CommandStatusCompleted,
					Timestamp: base.Add(time.Duration(i) * time.Microsecond),
					Success:   true,
				})
			}(i)
		}
		wg.Wait()

		recent, err := store.RecentCommands(ctx, 50)
		if err != nil || len(recent) != 20 {
			t.Fatalf("expected 20 records, got %d err=%v", len(recent), err)
		}
	})
}

func mustSnapshot(t *testing.T, store ports.Store) domain.RobotStatusSnapshot {
	t.Helper()
	snapshot, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snapshot == nil {
		t.Fatalf("expected snapshot")
	}
	return *snapshot
}
