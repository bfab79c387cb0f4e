package policy

import "fmt"

// Policy is the on-disk policy document. It is configuration, not code: the
// engine compiles it once and consults the compiled form on every decision.
type Policy struct {
	Version     int    `yaml:"version"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// CriticalFiles are basenames that must never be mutated.
	CriticalFiles []string `yaml:"critical_files"`

	// ProtectedFiles are basenames that may be mutated, but every mutation
	// is preceded by a snapshot and deletion requires force.
	ProtectedFiles []string `yaml:"protected_files"`

	// ProtectedDirectories are workspace-relative prefixes under which all
	// operations are refused.
	ProtectedDirectories []string `yaml:"protected_directories"`

	// ProjectPathPatterns are anchored regexes over the workspace-relative
	// path. A match classifies the path as a project file, checked before
	// the protected-directory denylist so a configured project path wins.
	ProjectPathPatterns []string `yaml:"project_path_patterns"`

	Credentials CredentialPolicy `yaml:"credentials"`
	Commands    CommandPolicy    `yaml:"commands"`
}

// CredentialPolicy identifies files whose content must never cross the API.
type CredentialPolicy struct {
	// Names are exact basenames (globs allowed, e.g. "*.pem").
	Names []string `yaml:"names"`
	// Patterns are case-insensitive regexes over the basename.
	Patterns []string `yaml:"patterns"`
}

// CommandPolicy is a two-stage model: deny rules reject first, then the
// command must match at least one allow rule.
type CommandPolicy struct {
	Deny  []CommandRule `yaml:"deny"`
	Allow []CommandRule `yaml:"allow"`
}

type CommandRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	Message  string   `yaml:"message,omitempty"`
}

// Validate performs minimal semantic validation of a policy.
func (p *Policy) Validate() error {
	if p.Version <= 0 {
		return fmt.Errorf("version must be > 0")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Commands.Allow) == 0 {
		return fmt.Errorf("commands.allow must not be empty")
	}
	return nil
}
