package scaffold

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var bundled embed.FS

// Node is a template tree: a string leaf is file content, a mapping is a
// subdirectory.
type Node struct {
	content  string
	children map[string]*Node
	isFile   bool
}

func (n *Node) IsFile() bool    { return n.isFile }
func (n *Node) Content() string { return n.content }

// ChildNames returns the child names of a directory node, files before
// directories, each group sorted, so generation order is deterministic.
func (n *Node) ChildNames() []string {
	var files, dirs []string
	for name, c := range n.children {
		if c.isFile {
			files = append(files, name)
		} else {
			dirs = append(dirs, name)
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return append(files, dirs...)
}

func (n *Node) Child(name string) *Node { return n.children[name] }

func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		n.isFile = true
		n.content = value.Value
		return nil
	case yaml.MappingNode:
		n.children = map[string]*Node{}
		for i := 0; i+1 < len(value.Content); i += 2 {
			name := value.Content[i].Value
			if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
				return fmt.Errorf("invalid template entry name %q", name)
			}
			child := &Node{}
			if err := child.UnmarshalYAML(value.Content[i+1]); err != nil {
				return err
			}
			n.children[name] = child
		}
		return nil
	default:
		return fmt.Errorf("template node must be a string or a mapping")
	}
}

// Template is one bundled project template: metadata plus a content tree.
type Template struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Tree        *Node  `yaml:"tree"`
}

func (t *Template) validate() error {
	if t.ID == "" {
		return fmt.Errorf("template missing id")
	}
	if t.Tree == nil || t.Tree.isFile {
		return fmt.Errorf("template %s: tree must be a mapping", t.ID)
	}
	return nil
}

// loadBundled parses every embedded template definition.
func loadBundled() (map[string]*Template, error) {
	return loadFS(bundled, "templates")
}

func loadFS(fsys fs.FS, dir string) (map[string]*Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	out := map[string]*Template{}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".yaml") {
			continue
		}
		b, err := fs.ReadFile(fsys, dir+"/"+ent.Name())
		if err != nil {
			return nil, err
		}
		var t Template
		if err := yaml.Unmarshal(b, &t); err != nil {
			return nil, fmt.Errorf("template %s: %w", ent.Name(), err)
		}
		if err := t.validate(); err != nil {
			return nil, err
		}
		out[t.ID] = &t
	}
	return out, nil
}
