package scaffold

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"sync"

	"github.com/agentyard/agentyard/internal/workspace"
	"github.com/agentyard/agentyard/pkg/types"
)

const (
	KindUnknownTemplate = "UnknownTemplate"
	KindProjectExists   = "ProjectExists"
)

var projectName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Generator materializes bundled templates into the workspace through the
// file operations layer, so every write passes the same policy envelope.
type Generator struct {
	ops       *workspace.Ops
	templates map[string]*Template
}

func NewGenerator(ops *workspace.Ops) (*Generator, error) {
	tmpls, err := loadBundled()
	if err != nil {
		return nil, err
	}
	return &Generator{ops: ops, templates: tmpls}, nil
}

// List returns the bundled templates, sorted by id.
func (g *Generator) List() []types.TemplateInfo {
	out := make([]types.TemplateInfo, 0, len(g.templates))
	for _, t := range g.templates {
		out = append(out, types.TemplateInfo{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Generate walks the template tree in two phases per level: the directory
// is created first (parents strictly before children), then all files at
// that level are written in parallel.
func (g *Generator) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error) {
	tmpl, ok := g.templates[req.TemplateID]
	if !ok {
		return nil, &workspace.OpError{Kind: KindUnknownTemplate, Message: "unknown template " + req.TemplateID}
	}
	if !projectName.MatchString(req.ProjectName) {
		return nil, &workspace.OpError{Kind: KindProjectExists, Message: "invalid project name " + req.ProjectName}
	}
	exists, err := g.ops.Exists(req.ProjectName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &workspace.OpError{Kind: KindProjectExists, Message: req.ProjectName + " already exists"}
	}

	res := &types.GenerateResult{ProjectName: req.ProjectName}
	if err := g.generateDir(ctx, req.ProjectName, tmpl.Tree, res); err != nil {
		return nil, err
	}
	slog.Info("template generated", "template", req.TemplateID, "project", req.ProjectName,
		"dirs", res.Directories, "files", res.Files)
	return res, nil
}

func (g *Generator) generateDir(ctx context.Context, rel string, dir *Node, res *types.GenerateResult) error {
	if err := g.ops.Mkdir(ctx, rel); err != nil {
		return err
	}
	res.Directories++
	res.Entries = append(res.Entries, types.GeneratedEntry{Type: "dir", Path: rel})

	// Files at this level fan out together; subdirectories wait so their
	// parents always exist before descent.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, name := range dir.ChildNames() {
		child := dir.Child(name)
		if !child.IsFile() {
			continue
		}
		wg.Add(1)
		go func(p, content string) {
			defer wg.Done()
			fr, err := g.ops.Create(ctx, types.FileRequest{FilePath: p, Content: content})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			res.Files++
			res.Entries = append(res.Entries, types.GeneratedEntry{Type: "file", Path: p, Size: fr.Size})
		}(path.Join(rel, name), child.Content())
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	for _, name := range dir.ChildNames() {
		child := dir.Child(name)
		if child.IsFile() {
			continue
		}
		if err := g.generateDir(ctx, path.Join(rel, name), child, res); err != nil {
			return err
		}
	}
	return nil
}
