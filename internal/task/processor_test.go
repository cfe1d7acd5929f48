package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"LedgerAgent-Kit/internal/agent"
	"LedgerAgent-Kit/internal/dispatch"
	"LedgerAgent-Kit/internal/engine"
	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/ledger/simulated"
	"LedgerAgent-Kit/internal/mirror"
	"LedgerAgent-Kit/internal/observability/alerting"
	"LedgerAgent-Kit/internal/session"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	errs      []error
	mu        sync.Mutex
}

func (f *fakeExecutor) Run(ctx context.Context, req agent.Request) (dispatch.Response, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return dispatch.Response{}, ctx.Err()
		}
	}
	f.mu.Lock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return dispatch.Response{}, err
	}
	f.mu.Unlock()
	f.processed.Add(1)
	return dispatch.Response{
		Outcome: dispatch.OutcomeExecute,
		Results: []engine.Result{{Success: true, TransactionID: "0.0.2@1700000000.000000001"}},
	}, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerter) Notify(_ context.Context, e alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAlerter) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Metadata["stage"])
	}
	return out
}

type stubTransactions struct {
	result string
	err    error
	calls  atomic.Int32
}

func (s *stubTransactions) Transaction(_ context.Context, _ ledger.TransactionID) ([]mirror.Txn, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []mirror.Txn{{Result: s.result}}, nil
}

func newSimulatedKit(t *testing.T) (*agent.Kit, *simulated.Network) {
	t.Helper()
	net := simulated.New()
	account := ledger.AccountID{Num: 2}
	priv, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	net.RegisterAccount(account, priv.PublicKey())
	sess, err := session.New(ledger.NewLocalSigner(account, priv, net))
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	kit, err := agent.New(sess, nil)
	if err != nil {
		t.Fatalf("kit: %v", err)
	}
	return kit, net
}

func submitTask(t *testing.T, svc *Service, req agent.Request) *Task {
	t.Helper()
	task, err := svc.Submit(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}
	return task
}

func drain(q *MemoryQueue) []string {
	var ids []string
	for {
		select {
		case id := <-q.ch:
			ids = append(ids, id)
		default:
			return ids
		}
	}
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 5 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !stdErrors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	for i := 0; i < total; i++ {
		submitTask(t, service, agent.Request{Operation: "create_topic", Params: json.RawMessage(fmt.Sprintf(`{"topicMemo":"m-%d"}`, i))})
	}

	deadline := time.After(5 * time.Second)
	for {
		stats, _ := service.Stats(ctx)
		if stats.Succeeded >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestProcessorExecutesOperationOnLedger(t *testing.T) {
	ctx := context.Background()
	kit, net := newSimulatedKit(t)
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)
	processor := NewProcessor(kit, store, queue, queue)

	task := submitTask(t, service, agent.Request{
		ID:        "topic-1",
		Operation: "create_topic",
		Params:    json.RawMessage(`{"topicMemo":"prices"}`),
	})
	if err := processor.handle(ctx, drain(queue)[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}

	done, err := service.WaitUntilCompleted(ctx, task.ID, time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusSucceeded || done.Result == nil {
		t.Fatalf("unexpected task: %+v", done)
	}
	if done.Result.Outcome != dispatch.OutcomeExecute.String() || len(done.Result.TransactionIDs) != 1 {
		t.Fatalf("unexpected result: %+v", done.Result)
	}
	var resp dispatch.Response
	if err := json.Unmarshal(done.Result.Response, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Receipt == nil || resp.Results[0].Receipt.TopicID == nil {
		t.Fatalf("expected topic receipt, got %+v", resp)
	}
	if len(net.Submitted()) != 1 {
		t.Fatalf("expected one submission, got %d", len(net.Submitted()))
	}

	// 重复提交同一 ID 不会再次入队
	again := submitTask(t, service, agent.Request{ID: "topic-1", Operation: "create_topic"})
	if again.Status != StatusSucceeded || len(drain(queue)) != 0 {
		t.Fatalf("expected idempotent submit, got %+v", again)
	}
}

func TestProcessorLedgerFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	kit, net := newSimulatedKit(t)
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerter := &recordingAlerter{}
	service := NewService(store, queue, 5)
	processor := NewProcessor(kit, store, queue, queue, WithAlertDispatcher(alerter))

	net.FailNext(stdErrors.New("PLATFORM_NOT_ACTIVE"))
	task := submitTask(t, service, agent.Request{
		Operation: "transfer_hbar",
		Params:    json.RawMessage(`{"transfers":[{"accountId":"0.0.1001","amount":"1.5"}]}`),
	})
	if err := processor.handle(ctx, drain(queue)[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}

	failed, _ := service.Get(ctx, task.ID)
	if failed.Status != StatusFailed || !failed.Terminal {
		t.Fatalf("expected terminal failure, got %+v", failed)
	}
	if failed.ErrorCode != string(xerrors.CodeSubmissionFailure) {
		t.Fatalf("unexpected error code %s", failed.ErrorCode)
	}
	if failed.Result == nil || len(failed.Result.TransactionIDs) != 1 {
		t.Fatalf("expected transaction id to be recorded, got %+v", failed.Result)
	}
	if len(drain(queue)) != 0 {
		t.Fatalf("ledger failure must not be requeued")
	}

	// 再次投递也不会重复上链
	if err := processor.handle(ctx, task.ID); err != nil {
		t.Fatalf("handle again: %v", err)
	}
	if len(net.Submitted()) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(net.Submitted()))
	}
	if stages := alerter.stages(); len(stages) != 1 || stages[0] != "ledger" {
		t.Fatalf("unexpected alert stages: %v", stages)
	}
}

func TestProcessorReconcilesWithMirror(t *testing.T) {
	ctx := context.Background()
	kit, net := newSimulatedKit(t)
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	lookup := &stubTransactions{result: "SUCCESS"}
	service := NewService(store, queue, 3)
	processor := NewProcessor(kit, store, queue, queue, WithRecoveryHandler(NewMirrorReconciler(lookup)))

	net.FailNext(stdErrors.New("receipt timeout"))
	task := submitTask(t, service, agent.Request{Operation: "create_topic"})
	if err := processor.handle(ctx, drain(queue)[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}

	done, _ := service.Get(ctx, task.ID)
	if done.Status != StatusSucceeded || done.Result == nil || !done.Result.Reconciled {
		t.Fatalf("expected reconciled success, got %+v", done)
	}
	if lookup.calls.Load() != 1 {
		t.Fatalf("expected one mirror lookup, got %d", lookup.calls.Load())
	}
}

func TestProcessorReconcileMissFallsBackToFailure(t *testing.T) {
	ctx := context.Background()
	kit, net := newSimulatedKit(t)
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	lookup := &stubTransactions{err: xerrors.New(xerrors.CodeNotFound, "not found")}
	service := NewService(store, queue, 3)
	processor := NewProcessor(kit, store, queue, queue, WithRecoveryHandler(NewMirrorReconciler(lookup)))

	net.FailNext(stdErrors.New("receipt timeout"))
	task := submitTask(t, service, agent.Request{Operation: "create_topic"})
	if err := processor.handle(ctx, drain(queue)[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	failed, _ := service.Get(ctx, task.ID)
	if failed.Status != StatusFailed || !failed.Terminal {
		t.Fatalf("expected terminal failure, got %+v", failed)
	}
}

func TestProcessorRequeuesRetryableBuildErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	executor := &fakeExecutor{errs: []error{xerrors.New(xerrors.CodeQueryFailure, "mirror unavailable")}}
	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue)

	task := submitTask(t, service, agent.Request{Operation: "associate_token"})
	if err := processor.handle(ctx, drain(queue)[0]); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	retry, _ := service.Get(ctx, task.ID)
	if retry.Status != StatusFailed || retry.Terminal || retry.ErrorCode != string(xerrors.CodeQueryFailure) {
		t.Fatalf("expected retryable failure, got %+v", retry)
	}

	requeued := drain(queue)
	if len(requeued) != 1 || requeued[0] != task.ID {
		t.Fatalf("expected task to be requeued, got %v", requeued)
	}
	if err := processor.handle(ctx, requeued[0]); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	done, _ := service.Get(ctx, task.ID)
	if done.Status != StatusSucceeded || done.Attempts != 2 {
		t.Fatalf("expected success on retry, got %+v", done)
	}
}

func TestProcessorInvalidParamsAreTerminal(t *testing.T) {
	ctx := context.Background()
	kit, net := newSimulatedKit(t)
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)
	processor := NewProcessor(kit, store, queue, queue)

	task := submitTask(t, service, agent.Request{Operation: "submit_topic_message", Params: json.RawMessage(`{"topicId":"not-an-id","message":"x"}`)})
	if err := processor.handle(ctx, drain(queue)[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	failed, _ := service.Get(ctx, task.ID)
	if failed.Status != StatusFailed || !failed.Terminal {
		t.Fatalf("expected terminal validation failure, got %+v", failed)
	}
	if len(net.Submitted()) != 0 || len(drain(queue)) != 0 {
		t.Fatalf("invalid params must not reach the ledger or the queue")
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1), 0)
	if _, err := service.Submit(context.Background(), agent.Request{}, nil); !xerrors.HasCode(err, CodeTaskValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	closed := NewMemoryQueue(1)
	_ = closed.Close()
	store := NewMemoryStore()
	service = NewService(store, closed, 3)
	_, err := service.Submit(context.Background(), agent.Request{ID: "lost", Operation: "create_topic"}, map[string]any{"source": "test"})
	if !xerrors.HasCode(err, CodeTaskPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
	task, _ := store.Get(context.Background(), "lost")
	if task.Status != StatusFailed || !task.Terminal || task.Metadata["source"] != "test" {
		t.Fatalf("unexpected task after publish failure: %+v", task)
	}
}
