package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNamedAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelDebug)

	Named("mirror").Info("fetched", slog.Int("status", 200))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["component"] != "mirror" {
		t.Fatalf("expected component attribute, got %v", record)
	}
	if record["status"] != float64(200) {
		t.Fatalf("expected flat status attribute, got %v", record)
	}
}

func TestAuditEventCarriesAction(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo)

	AuditEvent(context.Background(), "ledger.execute", slog.Bool("success", true))
	if !strings.Contains(buf.String(), `"action":"ledger.execute"`) {
		t.Fatalf("audit record missing action: %s", buf.String())
	}
}

func TestAuditWriterAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "ledger.log")
	w, err := newAuditWriter(AuditConfig{Path: path})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	if w.MaxSize != 100 || w.MaxBackups != 7 || w.MaxAge != 30 {
		t.Fatalf("unexpected defaults: %+v", w)
	}
	if _, err := w.Write([]byte("submitted\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "submitted\n" {
		t.Fatalf("unexpected audit file: %q %v", data, err)
	}
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatal("expected error for audit without path")
	}
}
