package convlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesPerUserNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := New(Config{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		Timestamp:  "2026-03-14T09:00:00Z",
		UserID:     "user-1",
		Channel:    "http",
		Direction:  Inbound,
		EventType:  "text",
		ContentRaw: "гречка   с курицей",
	})

	path := filepath.Join(dir, "user-1", "2026-03-14.ndjson")
	line := waitForLogLine(t, path)
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "гречка   с курицей" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content != "гречка с курицей" {
		t.Fatalf("unexpected cleaned content: %q", got.Content)
	}

	if line := waitForLogLine(t, global); !strings.Contains(line, "user-1") {
		t.Fatalf("global log missing event: %q", line)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 64}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		logger.Log(Event{Timestamp: "2026-03-14T09:00:00Z", UserID: "u", Direction: Outbound, ContentRaw: "ok"})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Log after Close must not panic.
	logger.Log(Event{UserID: "u"})

	data, err := os.ReadFile(filepath.Join(dir, "u", "2026-03-14.ndjson"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 10 {
		t.Fatalf("expected 10 lines, got %d", n)
	}
}

func TestLogRacingCloseDropsLateEvents(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Enabled: true, Dir: t.TempDir(), QueueSize: 8}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	fl := logger.(*FileLogger)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				fl.Log(Event{Timestamp: "2026-03-14T09:00:00Z", UserID: "u", Direction: Inbound, ContentRaw: "x"})
			}
		}()
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	wg.Wait()

	before := fl.dropped.Load()
	fl.Log(Event{UserID: "u"})
	if fl.dropped.Load() != before+1 {
		t.Fatal("event after Close was not counted as dropped")
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := logger.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", logger)
	}
}

func TestSafePathComponent(t *testing.T) {
	t.Parallel()

	if got := safePathComponent("../etc/passwd"); strings.Contains(got, "/") {
		t.Fatalf("path separator survived: %q", got)
	}
	if got := safePathComponent(".."); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
	if got := safePathComponent("tg:12345"); got != "tg_12345" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain"
	clean := CleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if !strings.Contains(clean, "error plain") {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
