package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/agentyard/agentyard/pkg/types"
)

// Inspector derives project shape from the workspace contents. It only
// reads; every conclusion is reproducible from the file tree.
type Inspector struct {
	root string
}

func NewInspector(root string) *Inspector {
	return &Inspector{root: root}
}

func (i *Inspector) has(rel string) bool {
	_, err := os.Stat(filepath.Join(i.root, filepath.FromSlash(rel)))
	return err == nil
}

func (i *Inspector) packageManifest() map[string]any {
	b, err := os.ReadFile(filepath.Join(i.root, "package.json"))
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func dependencies(manifest map[string]any) map[string]struct{} {
	out := map[string]struct{}{}
	for _, key := range []string{"dependencies", "devDependencies"} {
		deps, ok := manifest[key].(map[string]any)
		if !ok {
			continue
		}
		for name := range deps {
			out[name] = struct{}{}
		}
	}
	return out
}

// Analyze detects the project type, notable features, and improvement
// suggestions.
func (i *Inspector) Analyze() *types.ProjectAnalysis {
	a := &types.ProjectAnalysis{Type: "unknown", Features: []string{}, Suggestions: []string{}}

	manifest := i.packageManifest()
	deps := dependencies(manifest)

	switch {
	case manifest != nil && hasAny(deps, "next"):
		a.Type = "nextjs"
	case manifest != nil && hasAny(deps, "react", "react-dom"):
		a.Type = "react"
	case manifest != nil && hasAny(deps, "vue"):
		a.Type = "vue"
	case manifest != nil && hasAny(deps, "express", "fastify", "koa"):
		a.Type = "node-api"
	case manifest != nil:
		a.Type = "node"
	case i.has("go.mod"):
		a.Type = "go"
	case i.has("index.html"):
		a.Type = "static"
	}

	feature := func(cond bool, name string) {
		if cond {
			a.Features = append(a.Features, name)
		}
	}
	feature(i.has("tsconfig.json"), "typescript")
	feature(hasAny(deps, "vite"), "vite")
	feature(hasAny(deps, "tailwindcss"), "tailwind")
	feature(hasAny(deps, "jest", "vitest", "mocha"), "tests")
	feature(i.has(".github/workflows"), "ci")
	feature(i.has("Dockerfile"), "docker")
	feature(i.has(".eslintrc.json") || i.has(".eslintrc.js") || i.has("eslint.config.js"), "eslint")

	suggest := func(cond bool, s string) {
		if cond {
			a.Suggestions = append(a.Suggestions, s)
		}
	}
	suggest(!i.has(".gitignore"), "add a .gitignore to keep build output and secrets out of version control")
	suggest(!i.has("README.md"), "add a README.md describing how to run the project")
	suggest(manifest != nil && !hasAny(deps, "jest", "vitest", "mocha"), "add a test runner (vitest or jest) and a first test")
	suggest(manifest != nil && !i.has("package-lock.json") && !i.has("yarn.lock") && !i.has("pnpm-lock.yaml"),
		"commit a lockfile so installs are reproducible")
	suggest(a.Type == "react" && !i.has("tsconfig.json"), "consider TypeScript for component props safety")

	return a
}

func hasAny(set map[string]struct{}, names ...string) bool {
	for _, n := range names {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}
