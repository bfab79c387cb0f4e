package executor

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"github.com/agentyard/agentyard/pkg/types"
)

// diagnose assembles the environment snapshot attached to spawn failures.
func diagnose(command, workdir string, spawnErr error) *types.Diagnostics {
	d := &types.Diagnostics{
		Command:    command,
		WorkingDir: workdir,
		Path:       os.Getenv("PATH"),
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
	if isNotFound(spawnErr) {
		d.LikelyCause = "the command's binary was not found on PATH"
		d.Hints = installHints(command)
	}
	return d
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, syscall.ENOENT) {
		return true
	}
	return strings.Contains(err.Error(), "executable file not found")
}

// installHints maps the leading tool of a command to installation advice.
func installHints(command string) []string {
	tool := command
	if i := strings.IndexByte(tool, ' '); i >= 0 {
		tool = tool[:i]
	}
	switch tool {
	case "npm", "npx", "node":
		return []string{
			"install Node.js (which bundles npm and npx): https://nodejs.org",
			"or via a version manager: nvm install --lts",
		}
	case "yarn":
		return []string{"enable via corepack: corepack enable yarn", "or: npm install -g yarn"}
	case "pnpm":
		return []string{"enable via corepack: corepack enable pnpm", "or: npm install -g pnpm"}
	}
	return nil
}
