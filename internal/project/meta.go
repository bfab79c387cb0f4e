package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentyard/agentyard/pkg/types"
)

// Meta gathers ambient workspace metadata: the package manifest, the names
// of environment variables (values never leave the process), and doc
// resources found under docs/.
func (i *Inspector) Meta() *types.ProjectMeta {
	m := &types.ProjectMeta{
		Manifest:    i.packageManifest(),
		EnvVarNames: envNames(),
	}

	docsDir := filepath.Join(i.root, "docs")
	entries, err := os.ReadDir(docsDir)
	if err == nil {
		m.DocResources = map[string]string{}
		for _, ent := range entries {
			if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".md") {
				continue
			}
			name := strings.TrimSuffix(ent.Name(), ".md")
			m.DocResources[name] = "docs/" + ent.Name()
		}
	}
	return m
}

func envNames() []string {
	var names []string
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
