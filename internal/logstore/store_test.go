package logstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	logger, _ := zap.NewDevelopment()
	store, err := Open(filepath.Join(dir, "logs.db"), filepath.Join(dir, "logs"), logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureStation_IsIdempotent(t *testing.T) {
	store := newTestStore(t)

	if err := store.EnsureStation("CP-1"); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if err := store.EnsureStation("CP-1"); err != nil {
		t.Fatalf("unexpected error on duplicate insert: %v", err)
	}
}

func TestAppend_ThenExtract_ReturnsTheAppendedLine(t *testing.T) {
	store := newTestStore(t)
	begin := time.Now().Add(-time.Minute)

	store.Append("CP-1", "info", "BootNotification accepted")

	end := time.Now().Add(time.Minute)
	path, err := store.Extract("CP-1", begin, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	contents, err := os.ReadFile(filepath.Join(store.logDir, path))
	if err != nil {
		t.Fatalf("unable to read extraction file: %v", err)
	}
	if !strings.Contains(string(contents), "BootNotification accepted") {
		t.Errorf("expected the extraction file to contain the appended message, got %q", string(contents))
	}
}

func TestAppend_DefaultsLevelToInfo(t *testing.T) {
	store := newTestStore(t)
	store.Append("CP-1", "", "heartbeat received")

	var level string
	row := store.db.QueryRow(`SELECT level FROM events WHERE message = ?`, "heartbeat received")
	if err := row.Scan(&level); err != nil {
		t.Fatalf("unexpected error scanning level: %v", err)
	}
	if level != "info" {
		t.Errorf("expected level to default to 'info', got %q", level)
	}
}

func TestExtract_OutsideTimeRange_ProducesAnEmptyFile(t *testing.T) {
	store := newTestStore(t)
	store.Append("CP-1", "info", "an event")

	farPast := time.Now().Add(-365 * 24 * time.Hour)
	farPastEnd := farPast.Add(time.Hour)
	path, err := store.Extract("CP-1", farPast, farPastEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	contents, err := os.ReadFile(filepath.Join(store.logDir, path))
	if err != nil {
		t.Fatalf("unable to read extraction file: %v", err)
	}
	if len(contents) != 0 {
		t.Errorf("expected an empty extraction file, got %q", string(contents))
	}
}

func TestPurge_RemovesStaleArtifactsButTruncatesServerLog(t *testing.T) {
	store := newTestStore(t)

	stalePath := filepath.Join(store.logDir, "CP-1_0.log")
	if err := os.WriteFile(stalePath, []byte("old content"), 0o644); err != nil {
		t.Fatalf("failed to seed stale file: %v", err)
	}
	staleTime := time.Now().Add(-60 * 24 * time.Hour)
	if err := os.Chtimes(stalePath, staleTime, staleTime); err != nil {
		t.Fatalf("failed to backdate stale file: %v", err)
	}

	serverLogPath := filepath.Join(store.logDir, canonicalServerLog)
	if err := os.WriteFile(serverLogPath, []byte("running log content"), 0o644); err != nil {
		t.Fatalf("failed to seed server.log: %v", err)
	}
	if err := os.Chtimes(serverLogPath, staleTime, staleTime); err != nil {
		t.Fatalf("failed to backdate server.log: %v", err)
	}

	if err := store.Purge(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("expected the stale artifact to be removed")
	}
	info, err := os.Stat(serverLogPath)
	if err != nil {
		t.Fatalf("expected server.log to still exist: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected server.log to be truncated to empty, got size %d", info.Size())
	}
}

func TestPurge_DeletesOldEventRows(t *testing.T) {
	store := newTestStore(t)
	store.EnsureStation("CP-1")

	oldTimestamp := time.Now().Add(-60 * 24 * time.Hour).Format("2006-01-02T15:04:05.000Z07:00")
	if _, err := store.db.Exec(
		`INSERT INTO events (timestamp, station_id, level, message)
		 SELECT ?, id, 'info', 'stale event' FROM stations WHERE name = ?`,
		oldTimestamp, "CP-1",
	); err != nil {
		t.Fatalf("failed to seed stale event: %v", err)
	}
	store.Append("CP-1", "info", "fresh event")

	if err := store.Purge(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	row := store.db.QueryRow(`SELECT COUNT(*) FROM events WHERE message = 'stale event'`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected the stale event to be purged, still found %d rows", count)
	}

	row = store.db.QueryRow(`SELECT COUNT(*) FROM events WHERE message = 'fresh event'`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected the fresh event to survive purge, found %d rows", count)
	}
}

func TestPing_SucceedsAfterOpen(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
