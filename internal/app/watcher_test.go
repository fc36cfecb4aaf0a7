package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codedojo/internal/telemetry"
)

func TestSolutionWatcherReloadsExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solution.py")
	if err := os.WriteFile(path, []byte("print(1)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changes := make(chan string, 4)
	w, err := newSolutionWatcher(path, 20*time.Millisecond, telemetry.NewWriterLogger(io.Discard, false), func(code string) {
		changes <- code
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })

	if err := os.WriteFile(path, []byte("print(2)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-changes:
		if got != "print(2)\n" {
			t.Fatalf("unexpected reload %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected a reload")
	}
}

func TestSolutionWatcherIgnoresRememberedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solution.py")
	if err := os.WriteFile(path, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changes := make(chan string, 4)
	w, err := newSolutionWatcher(path, 20*time.Millisecond, telemetry.NewWriterLogger(io.Discard, false), func(code string) {
		changes <- code
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })

	w.Remember("b\n")
	if err := os.WriteFile(path, []byte("b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-changes:
		t.Fatalf("expected no reload, got %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSolutionWatcherSkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solution.py")
	if err := os.WriteFile(path, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changes := make(chan string, 4)
	w, err := newSolutionWatcher(path, 20*time.Millisecond, telemetry.NewWriterLogger(io.Discard, false), func(code string) {
		changes <- code
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-changes:
		t.Fatalf("expected no reload, got %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}
