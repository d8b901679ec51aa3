// Package worker dequeues execution jobs and runs them to a terminal state:
// stage the code to a temp file, spawn the interpreter under a wall-clock
// timeout, capture output, persist the outcome, and always remove the file.
package worker

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"code-runner/internal/config"
	"code-runner/internal/monitor"
	"code-runner/internal/queue"
	"code-runner/internal/runtime"
	"code-runner/internal/storage"
)

// Store is the subset of the record store the worker mutates.
type Store interface {
	MarkRunning(ctx context.Context, id string) error
	FinishExecution(ctx context.Context, id string, status storage.Status, stdout, stderr string, executionTimeMS *int64) error
}

// Dequeuer pulls jobs from the shared queue. A nil job with nil error means
// the queue stayed empty for the block interval.
type Dequeuer interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
}

// Worker processes one job at a time. Run multiple Workers (or instances)
// against the same queue for horizontal scaling; jobs for different
// executions never contend because staging paths and records are
// partitioned by execution ID.
type Worker struct {
	store    Store
	queue    Dequeuer
	runtimes *runtime.Registry
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
	timeout  time.Duration
	tempDir  string
}

// New creates a worker. An empty TempDir falls back to the OS temp directory.
func New(store Store, q Dequeuer, runtimes *runtime.Registry, metrics *monitor.Metrics, cfg config.ExecutorConfig) (*Worker, error) {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0700); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	return &Worker{
		store:    store,
		queue:    q,
		runtimes: runtimes,
		metrics:  metrics,
		tracer:   monitor.NewTracer(),
		timeout:  cfg.Timeout,
		tempDir:  tempDir,
	}, nil
}

// Run pulls and processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Str("temp_dir", w.tempDir).Dur("timeout", w.timeout).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopped")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("worker stopped")
				return
			}
			log.Error().Err(err).Msg("dequeue failed")
			time.Sleep(1 * time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.Process(ctx, job)
	}
}

// Process runs the per-job protocol. Every branch ends in a terminal record
// update; execution-time failures are absorbed here and expressed only as
// record state, never propagated.
func (w *Worker) Process(ctx context.Context, job *queue.Job) {
	logger := log.With().
		Str("execution_id", job.ExecutionID).
		Str("language", job.Language).
		Logger()

	ctx, span := w.tracer.StartSpan(ctx, "process_job",
		monitor.AttrExecutionID.String(job.ExecutionID),
		monitor.AttrLanguage.String(job.Language),
	)
	defer span.End()

	w.metrics.ActiveJobs.Inc()
	defer w.metrics.ActiveJobs.Dec()

	logger.Info().Msg("processing job")

	// The queue is an external boundary; re-check the language even though
	// the submission path already validated it.
	rt, err := w.runtimes.Get(job.Language)
	if err != nil {
		logger.Warn().Err(err).Msg("job references unsupported language")
		w.finishWithRetry(job.ExecutionID, storage.StatusFailed, "",
			"Unsupported language: "+job.Language, nil, logger)
		w.metrics.RecordExecution(job.Language, string(storage.StatusFailed), 0)
		return
	}

	if err := w.store.MarkRunning(ctx, job.ExecutionID); err != nil {
		// No file staged, no process spawned yet; leave the record QUEUED
		// so a queue redelivery can start over.
		logger.Error().Err(err).Msg("failed to mark execution running, abandoning job")
		return
	}

	codePath := filepath.Join(w.tempDir, job.ExecutionID+rt.FileExtension())
	if err := os.WriteFile(codePath, []byte(job.Code), 0600); err != nil {
		logger.Error().Err(err).Msg("failed to stage code file")
		w.removeStagingFile(codePath, logger)
		w.finishWithRetry(job.ExecutionID, storage.StatusFailed, "", err.Error(), nil, logger)
		return
	}
	// The staging file must never outlive this job, whatever branch is taken.
	defer w.removeStagingFile(codePath, logger)

	start := time.Now()
	res, runErr := runCommand(ctx, w.timeout, rt.Command(codePath))
	elapsed := time.Since(start)

	var (
		status storage.Status
		stderr string
		execMS *int64
	)

	switch {
	case runErr != nil:
		status = storage.StatusFailed
		stderr = runErr.Error()

	case res.TimedOut:
		status = storage.StatusTimeout
		stderr = fmt.Sprintf("Timeout: execution exceeded %s", w.timeout)

	case res.ExitCode == 0:
		status = storage.StatusCompleted
		stderr = res.Stderr
		ms := elapsed.Milliseconds()
		execMS = &ms

	default:
		status = storage.StatusFailed
		stderr = res.Stderr
		if stderr == "" {
			stderr = fmt.Sprintf("Process exited with code %d", res.ExitCode)
		}
		ms := elapsed.Milliseconds()
		execMS = &ms
	}

	span.SetAttributes(
		monitor.AttrStatus.String(string(status)),
		monitor.AttrExitCode.Int(res.ExitCode),
	)
	w.metrics.RecordExecution(job.Language, string(status), elapsed.Seconds())

	w.finishWithRetry(job.ExecutionID, status, res.Stdout, stderr, execMS, logger)

	logger.Info().
		Str("status", string(status)).
		Int("exit_code", res.ExitCode).
		Dur("elapsed", elapsed).
		Msg("job processed")
}

// finishWithRetry persists the terminal update, retrying with exponential
// backoff and dropping after the last attempt. A fresh background context is
// used so a shutdown that killed the job's context cannot lose a result
// that was already produced.
func (w *Worker) finishWithRetry(id string, status storage.Status, stdout, stderr string, execMS *int64, logger zerolog.Logger) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.store.FinishExecution(ctx, id, status, stdout, stderr, execMS)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			w.metrics.FinalUpdateRetries.Inc()
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("final update failed, retrying")
			time.Sleep(backoff)
		} else {
			w.metrics.FinalUpdateDrops.Inc()
			logger.Error().
				Err(err).
				Str("status", string(status)).
				Msg("final update failed permanently after retries")
		}
	}
}

func (w *Worker) removeStagingFile(path string, logger zerolog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", path).Msg("failed to remove staging file")
	}
}
