package task

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	xerrors "LedgerAgent-Kit/internal/errors"
)

func seedMemoryStore(t *testing.T, store *MemoryStore, tasks ...*Task) {
	t.Helper()
	for _, task := range tasks {
		if err := store.Create(context.Background(), task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-2 * time.Minute)

	seedMemoryStore(t, store,
		&Task{ID: "t1", Operation: "transfer_hbar", MaxRetries: 3},
		&Task{ID: "t2", Operation: "create_topic", MaxRetries: 3},
		&Task{ID: "t3", Operation: "transfer_hbar", MaxRetries: 3},
	)

	if err := store.MarkFailed(ctx, "t2", Failure{Code: xerrors.CodeSubmissionFailure, Message: "INSUFFICIENT_PAYER_BALANCE", Terminal: true}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Outcome: "execute", TransactionIDs: []string{"0.0.2@1700000000.000000001"}}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %+v", all)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" || !failed[0].Terminal {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	transfers, err := store.List(ctx, buildListOptions([]ListOption{WithOperations("transfer_hbar", " transfer_hbar ")}))
	if err != nil {
		t.Fatalf("list by operation: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfer tasks, got %d", len(transfers))
	}

	withResult, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(withResult) != 1 || withResult[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", withResult)
	}

	byTxID, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("@1700000000")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byTxID) != 1 || byTxID[0].ID != "t3" {
		t.Fatalf("unexpected query result: %+v", byTxID)
	}

	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(base.Add(15 * time.Second)), WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "t2" {
		t.Fatalf("unexpected recent list: %+v", recent)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedMemoryStore(t, store, &Task{ID: "job", Operation: "create_topic", MaxRetries: 2})

	claimed, err := store.Claim(ctx, "job")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed task: %+v", claimed)
	}
	if _, err := store.Claim(ctx, "job"); !stdErrors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict for running task, got %v", err)
	}

	if err := store.MarkFailed(ctx, "job", Failure{Code: xerrors.CodeQueryFailure, Message: "mirror unavailable"}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "job"); err != nil {
		t.Fatalf("retryable failure should be claimable: %v", err)
	}
	if err := store.MarkFailed(ctx, "job", Failure{Code: xerrors.CodeQueryFailure, Message: "mirror unavailable"}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "job"); !stdErrors.Is(err, ErrTaskExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}
}

func TestMemoryStoreTerminalFailureNotClaimable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedMemoryStore(t, store, &Task{ID: "job", Operation: "transfer_hbar", MaxRetries: 5})

	if _, err := store.Claim(ctx, "job"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	result := &ExecutionResult{Outcome: "execute", TransactionIDs: []string{"0.0.2@1.1"}}
	if err := store.MarkFailed(ctx, "job", Failure{Code: xerrors.CodeSubmissionFailure, Message: "INVALID_SIGNATURE", Terminal: true, Result: result}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	task, err := store.Claim(ctx, "job")
	if !stdErrors.Is(err, ErrTaskExhausted) {
		t.Fatalf("expected terminal task to be exhausted, got %v", err)
	}
	if task.Result == nil || task.Result.TransactionIDs[0] != "0.0.2@1.1" {
		t.Fatalf("expected result to be kept on failure, got %+v", task.Result)
	}

	// mutating the returned copy must not leak into the store
	task.Result.TransactionIDs[0] = "mutated"
	stored, _ := store.Get(ctx, "job")
	if stored.Result.TransactionIDs[0] != "0.0.2@1.1" {
		t.Fatalf("store returned shared result slice")
	}
}

func TestMemoryStoreCreateConflict(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryStore(t, store, &Task{ID: "dup", Operation: "create_topic", MaxRetries: 1})
	if err := store.Create(context.Background(), &Task{ID: "dup"}); !stdErrors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !IsTaskError(ErrTaskConflict, CodeTaskConflict) {
		t.Fatalf("expected task conflict code")
	}
	if _, err := store.Get(context.Background(), "missing"); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-3 * time.Minute)

	seedMemoryStore(t, store,
		&Task{ID: "a", Operation: "create_topic", MaxRetries: 3},
		&Task{ID: "b", Operation: "create_topic", MaxRetries: 3},
		&Task{ID: "c", Operation: "mint_fungible_token", MaxRetries: 3},
	)
	if err := store.MarkFailed(ctx, "b", Failure{Code: CodeTaskProcessing, Message: "boom", Terminal: true}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Outcome: "returnBytes"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["a"].UpdatedAt = base.Unix()
	store.tasks["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Terminal != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() || stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected timestamps: %+v", stats)
	}

	topics, err := store.Stats(ctx, buildListOptions([]ListOption{WithOperations("create_topic")}))
	if err != nil {
		t.Fatalf("stats by operation: %v", err)
	}
	if topics.Total != 2 || topics.Succeeded != 0 {
		t.Fatalf("unexpected operation stats: %+v", topics)
	}

	stuck, err := store.List(ctx, buildListOptions([]ListOption{WithTerminal(true)}))
	if err != nil {
		t.Fatalf("list terminal: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != "b" {
		t.Fatalf("expected only the terminal job, got %+v", stuck)
	}
}
