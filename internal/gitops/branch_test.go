package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentyard/agentyard/internal/backup"
	"github.com/agentyard/agentyard/internal/executor"
	"github.com/agentyard/agentyard/internal/policy"
	"github.com/agentyard/agentyard/internal/workspace"
	"github.com/agentyard/agentyard/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkflow(t *testing.T) (*Workflow, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	pm, err := policy.NewManager(root, "")
	require.NoError(t, err)
	bs, err := backup.New(filepath.Join(root, ".file-backups"), 10)
	require.NoError(t, err)
	ops := workspace.NewOps(pm, bs, 10<<20, 50, nil)
	ex := executor.New(root, executor.Options{
		DefaultTimeout: 30 * time.Second,
		EnvAllow:       []string{"PATH", "HOME", "USER"},
	})

	for _, cmd := range []string{
		"git init -q",
		"git config user.email agent@example.com",
		"git config user.name agent",
		"git commit --allow-empty -q -m init",
	} {
		res := ex.Run(types.ExecRequest{Command: cmd}, nil)
		require.Zero(t, res.ExitCode, "%s: %s", cmd, res.Stderr)
	}
	return New(ex, ops), root
}

func TestBranchWorkflowCreatesAndCommits(t *testing.T) {
	w, root := newTestWorkflow(t)
	res, err := w.Run(context.Background(), types.BranchWorkflowRequest{Branch: "feature/login"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Committed)
	assert.False(t, res.Pushed)

	_, err = os.Stat(filepath.Join(root, ".agentyard", "branch.json"))
	assert.NoError(t, err)
}

func TestBranchWorkflowCheckoutExisting(t *testing.T) {
	w, _ := newTestWorkflow(t)
	ctx := context.Background()
	_, err := w.Run(ctx, types.BranchWorkflowRequest{Branch: "dev"})
	require.NoError(t, err)

	res, err := w.Run(ctx, types.BranchWorkflowRequest{Branch: "dev"})
	require.NoError(t, err)
	assert.False(t, res.Created)
}

func TestBranchWorkflowRejectsBadName(t *testing.T) {
	w, _ := newTestWorkflow(t)
	for _, name := range []string{"", "bad name", "x;rm", "a..b!"} {
		_, err := w.Run(context.Background(), types.BranchWorkflowRequest{Branch: name})
		assert.Error(t, err, name)
	}
}
