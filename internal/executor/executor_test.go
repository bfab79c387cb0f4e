package executor

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return New(t.TempDir(), Options{
		DefaultTimeout: 5 * time.Second,
		TermGrace:      time.Second,
		EnvAllow:       []string{"PATH", "HOME"},
		EnvPrefix:      "AGENTYARD_",
	})
}

func TestRunCapturesOutput(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Run(types.ExecRequest{Command: "echo hello"}, nil)
	require.Nil(t, res.Error)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, int64(6), res.StdoutTotalBytes)
	assert.False(t, res.StdoutTruncated)
	assert.False(t, res.EndTime.Before(res.StartTime))
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Run(types.ExecRequest{Command: "exit 3"}, nil)
	assert.Nil(t, res.Error)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunShellMetacharacters(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Run(types.ExecRequest{Command: "echo one; echo two"}, nil)
	require.Nil(t, res.Error)
	assert.Equal(t, "one\ntwo\n", res.Stdout)
}

func TestRunTimeout(t *testing.T) {
	e := newTestExecutor(t)
	start := time.Now()
	res := e.Run(types.ExecRequest{Command: "sleep 10", Timeout: "200ms"}, nil)
	elapsed := time.Since(start)

	require.NotNil(t, res.Error)
	assert.Equal(t, "E_TIMEOUT", res.Error.Code)
	assert.Equal(t, 124, res.ExitCode)
	assert.GreaterOrEqual(t, res.ElapsedMs, int64(200))
	assert.Less(t, elapsed, 5*time.Second, "SIGTERM must end the process group promptly")
}

func TestRunScrubsEnvironment(t *testing.T) {
	t.Setenv("AGENTYARD_MARKER", "yes")
	t.Setenv("SUPER_SECRET_VALUE", "no")

	e := newTestExecutor(t)
	res := e.Run(types.ExecRequest{Command: "env"}, nil)
	require.Nil(t, res.Error)
	assert.Contains(t, res.Stdout, "AGENTYARD_MARKER=yes")
	assert.NotContains(t, res.Stdout, "SUPER_SECRET_VALUE")
}

func TestRunWorkdirConfinement(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Run(types.ExecRequest{Command: "pwd", WorkingDir: "../.."}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, "E_WORKDIR", res.Error.Code)
}

func TestRunStreamEmitsChunks(t *testing.T) {
	e := newTestExecutor(t)
	var mu sync.Mutex
	var events []types.StreamEvent
	emit := func(ev types.StreamEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	}

	res := e.Run(types.ExecRequest{Command: "echo line1; echo line2", StreamOutput: true}, emit)
	require.Nil(t, res.Error)

	mu.Lock()
	defer mu.Unlock()
	var stdout strings.Builder
	for _, ev := range events {
		require.Equal(t, "stdout", ev.Type)
		stdout.WriteString(ev.Data)
	}
	assert.Equal(t, "line1\nline2\n", stdout.String())
}

func TestRunSpawnDiagnostics(t *testing.T) {
	e := New(t.TempDir(), Options{EnvAllow: []string{"PATH"}})
	// A missing sh is not reproducible, but a bad working dir start error is.
	res := e.Run(types.ExecRequest{Command: "echo hi", WorkingDir: "does/not/exist"}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, "E_SPAWN_FAILED", res.Error.Code)
	require.NotNil(t, res.Error.Diagnostics)
	assert.Equal(t, "echo hi", res.Error.Diagnostics.Command)
	assert.NotEmpty(t, res.Error.Diagnostics.Platform)
}

func TestRunTruncatesOutput(t *testing.T) {
	e := New(t.TempDir(), Options{
		DefaultTimeout: 5 * time.Second,
		MaxOutputBytes: 16,
		EnvAllow:       []string{"PATH"},
	})
	res := e.Run(types.ExecRequest{Command: "echo 0123456789; echo 0123456789"}, nil)
	require.Nil(t, res.Error)
	assert.True(t, res.StdoutTruncated)
	assert.Equal(t, int64(22), res.StdoutTotalBytes)
	assert.Len(t, res.Stdout, 16)
}

func TestComposeDriverDirectVsShell(t *testing.T) {
	plain := composeDriver("echo hi", 0)
	assert.Contains(t, plain, "echo hi\n")
	assert.NotContains(t, plain, "sh -c")

	piped := composeDriver("echo hi | wc -c", 0)
	assert.Contains(t, piped, "sh -c 'echo hi | wc -c'")
	assert.Contains(t, piped, "exit $status")
}

func TestComposeDriverGrace(t *testing.T) {
	s := composeDriver("echo hi", 5*time.Second)
	assert.Contains(t, s, "sleep 5")
}

func TestEscapeSingleQuotes(t *testing.T) {
	assert.Equal(t, `it'\''s`, escapeSingleQuotes("it's"))
}

func TestDriverCleanup(t *testing.T) {
	e := newTestExecutor(t)
	before := countDrivers(t)
	res := e.Run(types.ExecRequest{Command: "echo done"}, nil)
	require.Nil(t, res.Error)
	assert.Equal(t, before, countDrivers(t), "driver temp file must be removed")
}

func countDrivers(t *testing.T) int {
	t.Helper()
	ents, err := os.ReadDir(os.TempDir())
	require.NoError(t, err)
	n := 0
	for _, ent := range ents {
		if strings.HasPrefix(ent.Name(), "agentyard-driver-") {
			n++
		}
	}
	return n
}
