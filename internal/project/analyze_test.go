package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestAnalyzeReactProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{
		"name": "demo",
		"dependencies": {"react": "^18.0.0", "react-dom": "^18.0.0"},
		"devDependencies": {"vite": "^5.0.0", "vitest": "^1.0.0"}
	}`)
	writeFile(t, root, "tsconfig.json", "{}")

	a := NewInspector(root).Analyze()
	assert.Equal(t, "react", a.Type)
	assert.Contains(t, a.Features, "typescript")
	assert.Contains(t, a.Features, "vite")
	assert.Contains(t, a.Features, "tests")
	assert.Contains(t, a.Suggestions, "add a README.md describing how to run the project")
}

func TestAnalyzeNextTakesPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies": {"next": "14.0.0", "react": "18.0.0"}}`)
	a := NewInspector(root).Analyze()
	assert.Equal(t, "nextjs", a.Type)
}

func TestAnalyzeGoProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/x\n")
	a := NewInspector(root).Analyze()
	assert.Equal(t, "go", a.Type)
}

func TestAnalyzeUnknown(t *testing.T) {
	a := NewInspector(t.TempDir()).Analyze()
	assert.Equal(t, "unknown", a.Type)
	assert.NotNil(t, a.Features)
}

func TestMetaNamesOnly(t *testing.T) {
	t.Setenv("AGENTYARD_SAMPLE", "should-not-appear")
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name": "demo"}`)
	writeFile(t, root, "docs/setup.md", "# Setup")

	m := NewInspector(root).Meta()
	assert.Contains(t, m.EnvVarNames, "AGENTYARD_SAMPLE")
	for _, n := range m.EnvVarNames {
		assert.NotContains(t, n, "should-not-appear")
	}
	assert.Equal(t, "demo", m.Manifest["name"])
	assert.Equal(t, "docs/setup.md", m.DocResources["setup"])
}
