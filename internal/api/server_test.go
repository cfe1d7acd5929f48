package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"LedgerAgent-Kit/internal/agent"
	"LedgerAgent-Kit/internal/auth"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/ledger/simulated"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/internal/task"
)

func newTestServer(t *testing.T) (*Server, *task.MemoryStore) {
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
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(16)
	return NewServer(":0", kit, task.NewService(store, queue, 3)), store
}

func serve(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleOperationDetailSuccess(t *testing.T) {
	server, store := newTestServer(t)

	sample := &task.Task{
		ID:         "task-success",
		Operation:  "create_topic",
		Status:     task.StatusSucceeded,
		Attempts:   1,
		MaxRetries: 3,
		CreatedAt:  1700000000,
		UpdatedAt:  1700000001,
		Result: &task.ExecutionResult{
			Outcome:        "execute",
			TransactionIDs: []string{"0.0.2@1700000000.000000001"},
		},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample task: %v", err)
	}

	for _, target := range []string{"/api/v1/operations/task-success", "/api/v1/operations?id=task-success"} {
		rec := serve(server, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: unexpected status code: got %d want %d", target, rec.Code, http.StatusOK)
		}
		var got task.Task
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if got.ID != sample.ID || got.Result == nil || got.Result.Outcome != "execute" {
			t.Fatalf("unexpected task: %+v", got)
		}
	}
}

func TestHandleOperationDetailErrors(t *testing.T) {
	server, _ := newTestServer(t)

	cases := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"invalid method", http.MethodPost, "/api/v1/operations/task-1", http.StatusMethodNotAllowed},
		{"missing id", http.MethodGet, "/api/v1/operations/", http.StatusBadRequest},
		{"not found", http.MethodGet, "/api/v1/operations/missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(server, tc.method, tc.target, nil)
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestSubmitOperationSynchronously(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, http.MethodPost, "/api/v1/operations",
		[]byte(`{"operation":"create_topic","params":{"topicMemo":"prices"}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Outcome string `json:"outcome"`
		Results []struct {
			Success       bool   `json:"success"`
			TransactionID string `json:"transactionId"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "execute" || len(resp.Results) != 1 || !resp.Results[0].Success {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if resp.Results[0].TransactionID == "" {
		t.Fatal("expected transaction id")
	}
}

func TestSubmitUnknownOperation(t *testing.T) {
	server, _ := newTestServer(t)

	for _, target := range []string{"/api/v1/operations", "/api/v1/operations?async=true"} {
		rec := serve(server, http.MethodPost, target, []byte(`{"operation":"launch_rocket"}`))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if body.Error.Code != "NOT_FOUND" {
			t.Fatalf("unexpected error code %q", body.Error.Code)
		}
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, http.MethodPost, "/api/v1/operations", []byte(`{`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitOperationAsynchronously(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, http.MethodPost, "/api/v1/operations?async=true",
		[]byte(`{"id":"job-1","operation":"create_topic","params":{"topicMemo":"later"},"scheduleMemo":"m"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var created task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if created.ID != "job-1" || created.Status != task.StatusPending || created.Options.ScheduleMemo != "m" {
		t.Fatalf("unexpected task: %+v", created)
	}
	if created.Metadata["source"] != "api" {
		t.Fatalf("expected api metadata, got %+v", created.Metadata)
	}

	list := serve(server, http.MethodGet, "/api/v1/operations?status=pending&operation=create_topic", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list status %d", list.Code)
	}
	var tasks []task.Task
	if err := json.Unmarshal(list.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "job-1" {
		t.Fatalf("unexpected list: %+v", tasks)
	}

	stats := serve(server, http.MethodGet, "/api/v1/operations/stats", nil)
	var got task.TaskStats
	if err := json.Unmarshal(stats.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if got.Total != 1 || got.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, http.MethodGet, "/api/v1/operations?status=archived", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = serve(server, http.MethodGet, "/api/v1/operations?limit=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rec.Code)
	}
	rec = serve(server, http.MethodGet, "/api/v1/operations?terminal=maybe", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad terminal flag, got %d", rec.Code)
	}
}

func TestCatalogAndHealth(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, http.MethodGet, "/api/v1/catalog", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog status %d", rec.Code)
	}
	var catalog struct {
		Mode       string            `json:"mode"`
		Account    string            `json:"account"`
		Operations []agent.Operation `json:"operations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if catalog.Mode != "autonomous" || catalog.Account != "0.0.2" || len(catalog.Operations) == 0 {
		t.Fatalf("unexpected catalog: %+v", catalog)
	}

	health := serve(server, http.MethodGet, "/healthz", nil)
	if health.Code != http.StatusOK {
		t.Fatalf("healthz status %d", health.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	server, _ := newTestServer(t)
	svc, err := auth.NewService([]auth.Key{{Name: "reader", Secret: "r", Permissions: []string{auth.PermissionRead}}})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	WithAuth(svc)(server)

	if rec := serve(server, http.MethodGet, "/api/v1/catalog", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer r")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/operations", bytes.NewReader([]byte(`{"operation":"create_topic"}`)))
	req.Header.Set("Authorization", "Bearer r")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	if health := serve(server, http.MethodGet, "/healthz", nil); health.Code != http.StatusOK {
		t.Fatalf("healthz must stay open, got %d", health.Code)
	}
}
