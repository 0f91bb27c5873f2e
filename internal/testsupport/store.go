package testsupport

import (
	"context"
	"testing"

	"reclaim/internal/config"
	"reclaim/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustBeginRun records a running run in the ledger.
func MustBeginRun(t testing.TB, store *queue.Store, id string) {
	t.Helper()

	if err := store.BeginRun(context.Background(), queue.Run{ID: id, Concurrency: 1}); err != nil {
		t.Fatalf("store.BeginRun: %v", err)
	}
}
