package gitops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/agentyard/agentyard/internal/executor"
	"github.com/agentyard/agentyard/internal/workspace"
	"github.com/agentyard/agentyard/pkg/types"
)

var branchName = regexp.MustCompile(`^[A-Za-z0-9\-_/]+$`)

const metadataPath = ".agentyard/branch.json"

// Workflow runs the create-or-checkout branch routine: switch to the
// branch, drop a metadata file, commit it, and push when an origin remote
// is configured. Git runs through the executor so child-process ownership
// stays in one place.
type Workflow struct {
	exec *executor.Executor
	ops  *workspace.Ops
}

func New(exec *executor.Executor, ops *workspace.Ops) *Workflow {
	return &Workflow{exec: exec, ops: ops}
}

func (w *Workflow) git(args string) *types.ExecResult {
	return w.exec.Run(types.ExecRequest{Command: "git " + args}, nil)
}

func (w *Workflow) Run(ctx context.Context, req types.BranchWorkflowRequest) (*types.BranchWorkflowResult, error) {
	if !branchName.MatchString(req.Branch) {
		return nil, fmt.Errorf("invalid branch name %q", req.Branch)
	}
	if res := w.git("rev-parse --is-inside-work-tree"); res.ExitCode != 0 {
		return nil, fmt.Errorf("workspace is not a git repository")
	}

	out := &types.BranchWorkflowResult{Branch: req.Branch}

	if res := w.git("rev-parse --verify refs/heads/" + req.Branch); res.ExitCode == 0 {
		if res := w.git("checkout " + req.Branch); res.ExitCode != 0 {
			return nil, fmt.Errorf("checkout %s: %s", req.Branch, strings.TrimSpace(res.Stderr))
		}
	} else {
		if res := w.git("checkout -b " + req.Branch); res.ExitCode != 0 {
			return nil, fmt.Errorf("create branch %s: %s", req.Branch, strings.TrimSpace(res.Stderr))
		}
		out.Created = true
	}

	meta, err := json.MarshalIndent(map[string]any{
		"branch":     req.Branch,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if _, err := w.ops.Create(ctx, types.FileRequest{
		FilePath:  metadataPath,
		Content:   string(meta),
		Overwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("write branch metadata: %w", err)
	}

	if res := w.git("add " + metadataPath); res.ExitCode != 0 {
		return nil, fmt.Errorf("git add: %s", strings.TrimSpace(res.Stderr))
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("chore: start work on %s", req.Branch)
	}
	commit := w.git(fmt.Sprintf("commit -m %q", message))
	switch {
	case commit.ExitCode == 0:
		out.Committed = true
	case strings.Contains(commit.Stdout+commit.Stderr, "nothing to commit"):
		// Re-running on an unchanged branch is fine.
	default:
		return nil, fmt.Errorf("git commit: %s", strings.TrimSpace(commit.Stderr))
	}

	if req.Push {
		if res := w.git("remote get-url origin"); res.ExitCode == 0 {
			if res := w.git("push -u origin " + req.Branch); res.ExitCode != 0 {
				return nil, fmt.Errorf("git push: %s", strings.TrimSpace(res.Stderr))
			}
			out.Pushed = true
		} else {
			slog.Info("skipping push, no origin remote", "branch", req.Branch)
		}
	}
	return out, nil
}
