package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/upparat/internal/inbox"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hook.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func takeWithTimeout(t *testing.T, box *inbox.Inbox) inbox.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e, err := box.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	return e
}

func TestRunCompletedOnExitZero(t *testing.T) {
	script := writeScript(t, "echo done\nexit 0\n")
	box := inbox.New()
	h := Run(context.Background(), box, Config{Command: script, RetryInterval: time.Millisecond, MaxRetries: 3}, time.Now())

	var last inbox.Event
	for i := 0; i < 10; i++ {
		e := takeWithTimeout(t, box)
		last = e
		if e.HookStatus == inbox.HookStatusCompleted {
			break
		}
	}
	if last.HookStatus != inbox.HookStatusCompleted {
		t.Fatalf("final status = %v, want completed", last.HookStatus)
	}
	h.Wait()
}

func TestRunFailedOnNonZeroExit(t *testing.T) {
	script := writeScript(t, "exit 7\n")
	box := inbox.New()
	h := Run(context.Background(), box, Config{Command: script, RetryInterval: time.Millisecond, MaxRetries: 3}, time.Now())

	e := takeWithTimeout(t, box)
	if e.HookStatus != inbox.HookStatusFailed {
		t.Fatalf("status = %v, want failed", e.HookStatus)
	}
	h.Wait()
}

func TestRunTimesOutAfterMaxRetries(t *testing.T) {
	script := writeScript(t, "exit 3\n")
	box := inbox.New()
	h := Run(context.Background(), box, Config{Command: script, RetryInterval: time.Millisecond, MaxRetries: 2}, time.Now())

	e := takeWithTimeout(t, box)
	if e.HookStatus != inbox.HookStatusTimedOut {
		t.Fatalf("status = %v, want timed_out", e.HookStatus)
	}
	h.Wait()
}

func TestStopCancelsRunningHook(t *testing.T) {
	script := writeScript(t, "sleep 5\nexit 0\n")
	box := inbox.New()
	h := Run(context.Background(), box, Config{Command: script, RetryInterval: time.Millisecond, MaxRetries: 3}, time.Now())

	time.Sleep(50 * time.Millisecond)
	h.Stop()
	h.Wait()
}
