package worker

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"code-runner/internal/config"
	"code-runner/internal/monitor"
	"code-runner/internal/queue"
	"code-runner/internal/runtime"
	"code-runner/internal/storage"
)

// shRuntime executes staged files with /bin/sh so tests do not depend on
// python3 or node being installed.
type shRuntime struct{}

func (s *shRuntime) Name() string                     { return "shell" }
func (s *shRuntime) FileExtension() string            { return ".sh" }
func (s *shRuntime) Command(codePath string) []string { return []string{"/bin/sh", codePath} }

// brokenRuntime points at a command that cannot be spawned.
type brokenRuntime struct{}

func (b *brokenRuntime) Name() string          { return "broken" }
func (b *brokenRuntime) FileExtension() string { return ".x" }
func (b *brokenRuntime) Command(codePath string) []string {
	return []string{"/nonexistent-interpreter-for-test", codePath}
}

type finishCall struct {
	id     string
	status storage.Status
	stdout string
	stderr string
	execMS *int64
}

type fakeStore struct {
	mu          sync.Mutex
	running     []string
	finished    []finishCall
	markErr     error
	finishFails int // first N FinishExecution calls fail
	finishCalls int
}

func (f *fakeStore) MarkRunning(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.running = append(f.running, id)
	return nil
}

func (f *fakeStore) FinishExecution(_ context.Context, id string, status storage.Status, stdout, stderr string, execMS *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls++
	if f.finishCalls <= f.finishFails {
		return errors.New("store unavailable")
	}
	f.finished = append(f.finished, finishCall{id, status, stdout, stderr, execMS})
	return nil
}

func (f *fakeStore) lastFinish(t *testing.T) finishCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finished) == 0 {
		t.Fatal("no terminal update recorded")
	}
	return f.finished[len(f.finished)-1]
}

type fakeQueue struct {
	jobs chan *queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case j := <-q.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func newTestWorker(t *testing.T, store Store, timeout time.Duration) (*Worker, string) {
	t.Helper()

	registry := runtime.NewRegistry()
	registry.Register(&shRuntime{})
	registry.Register(&brokenRuntime{})

	tempDir := t.TempDir()
	w, err := New(store, &fakeQueue{}, registry, monitor.NewMetrics(), config.ExecutorConfig{
		Timeout: timeout,
		TempDir: tempDir,
	})
	if err != nil {
		t.Fatal(err)
	}
	return w, tempDir
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir not empty after job: %d file(s) left behind", len(entries))
	}
}

func TestProcess_Completed(t *testing.T) {
	store := &fakeStore{}
	w, tempDir := newTestWorker(t, store, 5*time.Second)

	w.Process(context.Background(), &queue.Job{
		ExecutionID: "exec-ok",
		Language:    "shell",
		Code:        "echo hello",
	})

	if len(store.running) != 1 || store.running[0] != "exec-ok" {
		t.Errorf("MarkRunning calls = %v, want [exec-ok]", store.running)
	}

	fin := store.lastFinish(t)
	if fin.status != storage.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", fin.status)
	}
	if fin.stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", fin.stdout, "hello\n")
	}
	if fin.execMS == nil {
		t.Error("execMS = nil, want recorded execution time")
	}
	requireEmptyDir(t, tempDir)
}

func TestProcess_NonZeroExit(t *testing.T) {
	store := &fakeStore{}
	w, tempDir := newTestWorker(t, store, 5*time.Second)

	w.Process(context.Background(), &queue.Job{
		ExecutionID: "exec-fail",
		Language:    "shell",
		Code:        "exit 3",
	})

	fin := store.lastFinish(t)
	if fin.status != storage.StatusFailed {
		t.Errorf("status = %s, want FAILED", fin.status)
	}
	if fin.stderr != "Process exited with code 3" {
		t.Errorf("stderr = %q, want %q", fin.stderr, "Process exited with code 3")
	}
	if fin.execMS == nil {
		t.Error("execMS = nil, want recorded execution time")
	}
	requireEmptyDir(t, tempDir)
}

func TestProcess_ProgramStderrPreserved(t *testing.T) {
	store := &fakeStore{}
	w, tempDir := newTestWorker(t, store, 5*time.Second)

	w.Process(context.Background(), &queue.Job{
		ExecutionID: "exec-stderr",
		Language:    "shell",
		Code:        "echo boom 1>&2\nexit 1",
	})

	fin := store.lastFinish(t)
	if fin.status != storage.StatusFailed {
		t.Errorf("status = %s, want FAILED", fin.status)
	}
	if fin.stderr != "boom\n" {
		t.Errorf("stderr = %q, want the program's own stderr", fin.stderr)
	}
	requireEmptyDir(t, tempDir)
}

func TestProcess_Timeout(t *testing.T) {
	store := &fakeStore{}
	w, tempDir := newTestWorker(t, store, 150*time.Millisecond)

	start := time.Now()
	w.Process(context.Background(), &queue.Job{
		ExecutionID: "exec-slow",
		Language:    "shell",
		Code:        "sleep 30",
	})
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Process took %s, process was not killed at the deadline", elapsed)
	}

	fin := store.lastFinish(t)
	if fin.status != storage.StatusTimeout {
		t.Errorf("status = %s, want TIMEOUT", fin.status)
	}
	if !strings.Contains(fin.stderr, "Timeout") {
		t.Errorf("stderr = %q, want a timeout indication", fin.stderr)
	}
	if fin.execMS != nil {
		t.Errorf("execMS = %d, want nil on timeout", *fin.execMS)
	}
	requireEmptyDir(t, tempDir)
}

func TestProcess_UnsupportedLanguage(t *testing.T) {
	store := &fakeStore{}
	w, tempDir := newTestWorker(t, store, 5*time.Second)

	w.Process(context.Background(), &queue.Job{
		ExecutionID: "exec-ruby",
		Language:    "ruby",
		Code:        "puts 1",
	})

	if len(store.running) != 0 {
		t.Errorf("MarkRunning calls = %v, want none for unsupported language", store.running)
	}

	fin := store.lastFinish(t)
	if fin.status != storage.StatusFailed {
		t.Errorf("status = %s, want FAILED", fin.status)
	}
	if fin.stderr != "Unsupported language: ruby" {
		t.Errorf("stderr = %q, want %q", fin.stderr, "Unsupported language: ruby")
	}
	if fin.execMS != nil {
		t.Error("execMS set, want nil when nothing was spawned")
	}
	requireEmptyDir(t, tempDir)
}

func TestProcess_SpawnError(t *testing.T) {
	store := &fakeStore{}
	w, tempDir := newTestWorker(t, store, 5*time.Second)

	w.Process(context.Background(), &queue.Job{
		ExecutionID: "exec-spawn",
		Language:    "broken",
		Code:        "whatever",
	})

	if len(store.running) != 1 {
		t.Errorf("MarkRunning calls = %d, want 1", len(store.running))
	}

	fin := store.lastFinish(t)
	if fin.status != storage.StatusFailed {
		t.Errorf("status = %s, want FAILED", fin.status)
	}
	if fin.stderr == "" {
		t.Error("stderr empty, want the spawn error text")
	}
	if fin.execMS != nil {
		t.Error("execMS set, want nil on spawn failure")
	}
	requireEmptyDir(t, tempDir)
}

func TestProcess_FinalUpdateRetries(t *testing.T) {
	store := &fakeStore{finishFails: 2}
	w, tempDir := newTestWorker(t, store, 5*time.Second)

	w.Process(context.Background(), &queue.Job{
		ExecutionID: "exec-retry",
		Language:    "shell",
		Code:        "echo hi",
	})

	if store.finishCalls != 3 {
		t.Errorf("FinishExecution calls = %d, want 3 (two failures, one success)", store.finishCalls)
	}
	fin := store.lastFinish(t)
	if fin.status != storage.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", fin.status)
	}
	requireEmptyDir(t, tempDir)
}

func TestProcess_Idempotent(t *testing.T) {
	store := &fakeStore{}
	w, tempDir := newTestWorker(t, store, 5*time.Second)

	job := &queue.Job{
		ExecutionID: "exec-replay",
		Language:    "shell",
		Code:        "echo same",
	}

	// Redelivery of the same job must re-run cleanly: same staging path,
	// same record, no collision.
	w.Process(context.Background(), job)
	w.Process(context.Background(), job)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.finished) != 2 {
		t.Fatalf("terminal updates = %d, want 2", len(store.finished))
	}
	for i, fin := range store.finished {
		if fin.status != storage.StatusCompleted || fin.stdout != "same\n" {
			t.Errorf("run %d: status=%s stdout=%q, want COMPLETED %q", i, fin.status, fin.stdout, "same\n")
		}
	}
	requireEmptyDir(t, tempDir)
}

func TestRun_ProcessesJobsUntilCancelled(t *testing.T) {
	store := &fakeStore{}
	w, _ := newTestWorker(t, store, 5*time.Second)

	q := &fakeQueue{jobs: make(chan *queue.Job, 1)}
	w.queue = q

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	q.jobs <- &queue.Job{ExecutionID: "exec-loop", Language: "shell", Code: "echo loop"}

	deadline := time.After(5 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.finished)
		store.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job was not processed before the deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
