package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pickasso/internal/domain"
	"pickasso/internal/log"
	"pickasso/internal/ports"
	"pickasso/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) ports.Store {
		store, _ := newTestStore(t)
		return store
	})
}

func TestSnapshotIsStoredAsJSON(t *testing.T) {
	t.Parallel()

	store, server := newTestStore(t)
	if err := store.EnsureSnapshot(context.Background()); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	raw, err := server.Get("test:status")
	if err != nil {
		t.Fatalf("status key missing: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if decoded["state"] != domain.RobotStateIdle || decoded["isConnected"] != true {
		t.Fatalf("unexpected stored snapshot: %v", decoded)
	}
}

func TestCommandsAreScoredByTimestamp(t *testing.T) {
	t.Parallel()

	store, server := newTestStore(t)
	ts := time.Date(2025, 6, 1, 8, 30, 0, 123456000, time.UTC)
	if err := store.AppendCommand(context.Background(), domain.CommandRecord{ID: "01J", Type: domain.CommandHome, Timestamp: ts}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	members, err := server.ZMembers("test:commands")
	if err != nil || len(members) != 1 {
		t.Fatalf("expected one member, got %v err=%v", members, err)
	}
	score, err := server.ZScore("test:commands", members[0])
	if err != nil || score != float64(ts.UnixMicro()) {
		t.Fatalf("unexpected score %v err=%v", score, err)
	}
}

func TestUndecodableCommandIsSkipped(t *testing.T) {
	t.Parallel()

	store, server := newTestStore(t)
	if _, err := server.ZAdd("test:commands", 1, "not json"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_ = store.AppendCommand(context.Background(), domain.CommandRecord{ID: "ok", Timestamp: time.Unix(10, 0)})

	recent, err := store.RecentCommands(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "ok" {
		t.Fatalf("unexpected records: %+v", recent)
	}
}

func TestStoreReportsServerFailure(t *testing.T) {
	t.Parallel()

	store, server := newTestStore(t)
	server.Close()

	if err := store.EnsureSnapshot(context.Background()); err == nil {
		t.Fatalf("expected error with server down")
	}
	if err := store.AppendCommand(context.Background(), domain.CommandRecord{ID: "x"}); err == nil {
		t.Fatalf("expected append error with server down")
	}
}

func TestOpenFailsWithoutServer(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Open(ctx, Options{Addr: addr}, log.Discard()); err == nil {
		t.Fatalf("expected connection error")
	}
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test", log.Discard()), server
}
