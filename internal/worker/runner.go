package worker

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// RunResult is the typed outcome of one subprocess run. A spawn-level
// failure (the command could not start at all) is reported separately as an
// error; timeout and nonzero exit are ordinary results, not errors.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// runCommand spawns argv and blocks until exit or the wall-clock timeout.
// On timeout the process is killed and the partial output is returned with
// TimedOut set; the exit code is discarded.
func runCommand(ctx context.Context, timeout time.Duration, argv []string) (RunResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...) // #nosec G204 -- argv comes from the runtime registry, not from user input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	// The code may fork. Run it in its own process group and kill the whole
	// group on timeout, otherwise a backgrounded grandchild inherits the
	// output pipes and Wait blocks on them long after the direct child is
	// dead. WaitDelay bounds the pipe drain if the group kill itself fails.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	err := cmd.Run()

	res := RunResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.ExitCode = -1
			return res, nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}

		// Spawn-level fault: command missing, permission denied, etc.
		return res, err
	}

	return res, nil
}
