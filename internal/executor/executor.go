package executor

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
	"golang.org/x/sys/unix"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultLongTimeout = 5 * time.Minute
	defaultTermGrace   = 5 * time.Second
	defaultKeepalive   = 10 * time.Second
	defaultMaxOutput   = 1 << 20
	tailBytes          = 500
)

// Options tunes a single Executor. Zero timeouts, grace, keepalive interval
// and MaxOutputBytes fall back to defaults; a zero PostCommandDelay adds no
// delay, and an empty EnvAllow or EnvPrefix passes no variables through.
type Options struct {
	DefaultTimeout    time.Duration
	LongTimeout       time.Duration
	TermGrace         time.Duration
	KeepaliveInterval time.Duration
	PostCommandDelay  time.Duration
	MaxOutputBytes    int64
	EnvAllow          []string
	EnvPrefix         string
}

// Executor spawns validated commands under a scrubbed environment and
// bounded time. It is the only component that creates OS child processes.
type Executor struct {
	root string
	opts Options
}

// EmitFunc receives incremental stream events in streaming mode.
type EmitFunc func(types.StreamEvent) error

func New(root string, opts Options) *Executor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultTimeout
	}
	if opts.LongTimeout <= 0 {
		opts.LongTimeout = defaultLongTimeout
	}
	if opts.TermGrace <= 0 {
		opts.TermGrace = defaultTermGrace
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = defaultKeepalive
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutput
	}
	return &Executor{root: root, opts: opts}
}

func (e *Executor) timeoutFor(req types.ExecRequest) time.Duration {
	if req.Timeout != "" {
		if d, err := time.ParseDuration(req.Timeout); err == nil && d > 0 {
			return d
		}
	}
	if req.LongOperation {
		return e.opts.LongTimeout
	}
	return e.opts.DefaultTimeout
}

// buildEnv scrubs the parent environment down to the named allowlist plus
// the configured agent prefix.
func (e *Executor) buildEnv() []string {
	allow := map[string]struct{}{}
	for _, k := range e.opts.EnvAllow {
		allow[k] = struct{}{}
	}
	var out []string
	for _, kv := range os.Environ() {
		k, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, ok := allow[k]; ok {
			out = append(out, kv)
			continue
		}
		if e.opts.EnvPrefix != "" && strings.HasPrefix(k, e.opts.EnvPrefix) {
			out = append(out, kv)
		}
	}
	return out
}

func (e *Executor) resolveWorkdir(rel string) (string, error) {
	if rel == "" {
		return e.root, nil
	}
	abs := rel
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.root, rel)
	}
	abs = filepath.Clean(abs)
	if abs != e.root && !strings.HasPrefix(abs, e.root+string(filepath.Separator)) {
		return "", fmt.Errorf("workingDir escapes workspace")
	}
	return abs, nil
}

// Run executes one pre-validated command. The result is always non-nil and
// emitted exactly once; failures are carried in Result.Error rather than a
// Go error so the boundary can serialize them uniformly.
//
// State machine: starting -> running -> (completed | timed-out ->
// terminating -> terminated | spawn-failed). The terminal latch is the
// single return; racing timeout and close events both funnel into Wait.
func (e *Executor) Run(req types.ExecRequest, emit EmitFunc) *types.ExecResult {
	start := time.Now().UTC()
	res := &types.ExecResult{StartTime: start, LongOperation: req.LongOperation}
	finish := func() {
		res.EndTime = time.Now().UTC()
		res.ElapsedMs = res.EndTime.Sub(start).Milliseconds()
	}

	timeout := e.timeoutFor(req)

	workdir, err := e.resolveWorkdir(req.WorkingDir)
	if err != nil {
		res.ExitCode = 2
		res.Error = &types.ExecError{Code: "E_WORKDIR", Message: err.Error()}
		finish()
		return res
	}

	driver, err := writeDriver(composeDriver(req.Command, e.postDelay(req)))
	if err != nil {
		res.ExitCode = 2
		res.Error = &types.ExecError{Code: "E_DRIVER", Message: err.Error()}
		finish()
		return res
	}
	defer os.Remove(driver)

	var lastOutput atomic.Int64
	lastOutput.Store(start.UnixNano())
	touch := func() { lastOutput.Store(time.Now().UnixNano()) }

	stdoutW := newCaptureWriter(e.opts.MaxOutputBytes, chunkEmitter(emit, "stdout", touch))
	stderrW := newCaptureWriter(e.opts.MaxOutputBytes, chunkEmitter(emit, "stderr", touch))

	cmd := exec.Command("/bin/sh", driver)
	cmd.Dir = workdir
	cmd.Env = e.buildEnv()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		slog.Error("spawn failed", "command", req.Command, "err", err)
		res.ExitCode = 127
		res.Error = &types.ExecError{
			Code:        "E_SPAWN_FAILED",
			Message:     err.Error(),
			Diagnostics: diagnose(req.Command, workdir, err),
		}
		finish()
		return res
	}

	pgid := cmd.Process.Pid
	if gp, err := unix.Getpgid(cmd.Process.Pid); err == nil {
		pgid = gp
	}

	var timedOut atomic.Bool
	termTimer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		slog.Warn("command timed out, terminating", "command", req.Command, "timeout", timeout)
		_ = unix.Kill(-pgid, unix.SIGTERM)
	})
	defer termTimer.Stop()
	killTimer := time.AfterFunc(timeout+e.opts.TermGrace, func() {
		_ = unix.Kill(-pgid, unix.SIGKILL)
	})
	defer killTimer.Stop()

	stopKeepalive := make(chan struct{})
	if req.LongOperation {
		go e.keepalive(req, emit, start, &lastOutput, stdoutW, stderrW, stopKeepalive)
	}

	waitErr := cmd.Wait()
	close(stopKeepalive)

	res.Stdout = string(stdoutW.Bytes())
	res.Stderr = string(stderrW.Bytes())
	res.StdoutTotalBytes, res.StdoutTruncated = stdoutW.Stats()
	res.StderrTotalBytes, res.StderrTruncated = stderrW.Stats()
	finish()

	switch {
	case timedOut.Load():
		res.ExitCode = 124
		res.Error = &types.ExecError{
			Code:    "E_TIMEOUT",
			Message: fmt.Sprintf("command timed out after %s", timeout),
		}
	case waitErr == nil:
		res.ExitCode = 0
	default:
		if ee, ok := waitErr.(*exec.ExitError); ok {
			// A non-zero exit is a command outcome, not an executor error.
			res.ExitCode = ee.ExitCode()
		} else {
			res.ExitCode = 127
			res.Error = &types.ExecError{Code: "E_COMMAND_FAILED", Message: waitErr.Error()}
		}
	}
	return res
}

func (e *Executor) postDelay(req types.ExecRequest) time.Duration {
	if req.LongOperation {
		return e.opts.PostCommandDelay
	}
	return 0
}

func chunkEmitter(emit EmitFunc, stream string, touch func()) func([]byte) error {
	return func(chunk []byte) error {
		touch()
		if emit == nil || len(chunk) == 0 {
			return nil
		}
		return emit(types.StreamEvent{
			Type:      stream,
			Data:      string(chunk),
			Timestamp: time.Now().UTC(),
		})
	}
}

// keepalive emits a progress line every interval while a long operation is
// running, plus a progress event with output tails when streaming.
func (e *Executor) keepalive(req types.ExecRequest, emit EmitFunc, start time.Time, lastOutput *atomic.Int64, stdoutW, stderrW *captureWriter, stop <-chan struct{}) {
	ticker := time.NewTicker(e.opts.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			slog.Info("long operation in progress", "command", req.Command, "elapsed", elapsed.Round(time.Second))
			if req.StreamOutput && emit != nil {
				_ = emit(types.StreamEvent{
					Type:              "progress",
					Timestamp:         now.UTC(),
					ElapsedMs:         elapsed.Milliseconds(),
					SinceLastOutputMs: (now.UnixNano() - lastOutput.Load()) / int64(time.Millisecond),
					StdoutTail:        string(stdoutW.Tail(tailBytes)),
					StderrTail:        string(stderrW.Tail(tailBytes)),
				})
			}
		}
	}
}
