package policy

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentyard/agentyard/pkg/types"
	"github.com/gobwas/glob"
)

// ErrPathTraversal is returned when a path resolves outside the workspace.
var ErrPathTraversal = errors.New("path escapes workspace")

// Engine holds the compiled policy. It is immutable after construction;
// hot reload swaps whole engines (see Manager).
type Engine struct {
	root   string
	policy *Policy

	critical       map[string]struct{}
	protectedNames map[string]struct{}
	protectedDirs  []string

	projectPaths []*regexp.Regexp

	credNames    []glob.Glob
	credPatterns []*regexp.Regexp

	deny  []compiledRule
	allow []compiledRule
}

type compiledRule struct {
	name     string
	message  string
	patterns []*regexp.Regexp
}

// chainPrefix matches "cd <dir> && <rest>" so chained commands can be
// validated by their tail.
var chainPrefix = regexp.MustCompile(`^cd\s+[\w./-]+\s*&&\s*(.+)$`)

// NewEngine compiles a policy against a workspace root. The root must be
// absolute.
func NewEngine(root string, p *Policy) (*Engine, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("workspace root %q is not absolute", root)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	e := &Engine{
		root:           filepath.Clean(root),
		policy:         p,
		critical:       map[string]struct{}{},
		protectedNames: map[string]struct{}{},
	}
	for _, n := range p.CriticalFiles {
		e.critical[n] = struct{}{}
	}
	for _, n := range p.ProtectedFiles {
		e.protectedNames[n] = struct{}{}
	}
	for _, d := range p.ProtectedDirectories {
		e.protectedDirs = append(e.protectedDirs, strings.Trim(filepath.ToSlash(d), "/"))
	}

	for _, pat := range p.ProjectPathPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compile project path pattern %q: %w", pat, err)
		}
		e.projectPaths = append(e.projectPaths, re)
	}

	for _, n := range p.Credentials.Names {
		g, err := glob.Compile(n)
		if err != nil {
			return nil, fmt.Errorf("compile credential name %q: %w", n, err)
		}
		e.credNames = append(e.credNames, g)
	}
	for _, pat := range p.Credentials.Patterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, fmt.Errorf("compile credential pattern %q: %w", pat, err)
		}
		e.credPatterns = append(e.credPatterns, re)
	}

	var err error
	if e.deny, err = compileRules(p.Commands.Deny); err != nil {
		return nil, err
	}
	if e.allow, err = compileRules(p.Commands.Allow); err != nil {
		return nil, err
	}

	// Commands that mention a critical file or a protected directory are
	// refused regardless of shape; the rule is synthesized from the path
	// policy so the two stay in sync.
	if mention := e.mentionRule(); mention != nil {
		e.deny = append(e.deny, *mention)
	}

	return e, nil
}

func compileRules(rules []CommandRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{name: r.Name, message: r.Message}
		for _, pat := range r.Patterns {
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, fmt.Errorf("compile command rule %q pattern %q: %w", r.Name, pat, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		out = append(out, cr)
	}
	return out, nil
}

func (e *Engine) mentionRule() *compiledRule {
	var parts []string
	for n := range e.critical {
		parts = append(parts, regexp.QuoteMeta(n))
	}
	for _, d := range e.protectedDirs {
		parts = append(parts, regexp.QuoteMeta(d+"/"))
	}
	if len(parts) == 0 {
		return nil
	}
	re := regexp.MustCompile(`(?i)(` + strings.Join(parts, "|") + `)`)
	return &compiledRule{
		name:     "mentions-protected-path",
		message:  "command references a critical file or protected directory",
		patterns: []*regexp.Regexp{re},
	}
}

// Resolve turns an incoming path into an absolute path confined to the
// workspace and its workspace-relative, forward-slash form.
func (e *Engine) Resolve(p string) (abs string, rel string, err error) {
	if p == "" {
		return "", "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Clean(filepath.Join(e.root, p))
	}
	if abs != e.root && !strings.HasPrefix(abs, e.root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrPathTraversal, p)
	}
	rel, err = filepath.Rel(e.root, abs)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrPathTraversal, p)
	}
	return abs, filepath.ToSlash(rel), nil
}

// ClassifyPath resolves p against the workspace and classifies it.
// The returned abs path is only valid when err is nil.
func (e *Engine) ClassifyPath(p string) (types.PathDecision, string, error) {
	abs, rel, err := e.Resolve(p)
	if err != nil {
		return types.PathDecision{}, "", err
	}

	base := path.Base(rel)
	d := types.PathDecision{
		Relative:   rel,
		Credential: e.IsCredential(base),
	}
	if _, ok := e.protectedNames[base]; ok {
		d.Protected = true
	}

	if _, ok := e.critical[base]; ok {
		d.Level = types.LevelCritical
		d.Allowed = false
		d.Reason = "Critical system file cannot be modified"
		return d, abs, nil
	}

	// The project allowlist wins over the directory denylist so that a
	// configured project path below a broader protected entry stays usable.
	for _, re := range e.projectPaths {
		if re.MatchString(rel) {
			d.Level = types.LevelProjectFile
			d.Allowed = true
			d.Reason = "allowed project path"
			return d, abs, nil
		}
	}

	for _, dir := range e.protectedDirs {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			d.Level = types.LevelSystemDirectory
			d.Allowed = false
			d.Reason = fmt.Sprintf("path is inside protected directory %s/", dir)
			return d, abs, nil
		}
	}

	d.Level = types.LevelSystemFile
	d.Allowed = true
	d.Reason = "system file requires careful handling"
	return d, abs, nil
}

// IsCredential reports whether a basename matches the credential predicate.
func (e *Engine) IsCredential(base string) bool {
	for _, g := range e.credNames {
		if g.Match(base) {
			return true
		}
	}
	for _, re := range e.credPatterns {
		if re.MatchString(base) {
			return true
		}
	}
	return false
}

// CheckCommand classifies a command string. Deny rules reject first; the
// command (or the tail of a "cd <dir> && <rest>" chain) must then match an
// allow rule. Commands matching nothing are refused.
func (e *Engine) CheckCommand(command string) types.CommandDecision {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return types.CommandDecision{Allowed: false, Rule: "empty", Reason: "command is empty"}
	}

	for _, r := range e.deny {
		for _, re := range r.patterns {
			if re.MatchString(cmd) {
				reason := r.message
				if reason == "" {
					reason = "command blocked by policy"
				}
				return types.CommandDecision{Allowed: false, Rule: r.name, Reason: reason}
			}
		}
	}

	if rule, ok := e.matchAllow(cmd, 0); ok {
		return types.CommandDecision{Allowed: true, Rule: rule}
	}
	return types.CommandDecision{
		Allowed: false,
		Rule:    "not-allowlisted",
		Reason:  "command does not match any allowed pattern",
	}
}

func (e *Engine) matchAllow(cmd string, depth int) (string, bool) {
	if depth > 4 {
		return "", false
	}
	for _, r := range e.allow {
		for _, re := range r.patterns {
			if re.MatchString(cmd) {
				return r.name, true
			}
		}
	}
	if m := chainPrefix.FindStringSubmatch(cmd); m != nil {
		return e.matchAllow(strings.TrimSpace(m[1]), depth+1)
	}
	return "", false
}

// Root returns the workspace root the engine confines paths to.
func (e *Engine) Root() string { return e.root }

// CriticalFiles returns the configured critical basenames.
func (e *Engine) CriticalFiles() []string {
	return append([]string(nil), e.policy.CriticalFiles...)
}

// ProtectedDirectories returns the configured protected prefixes.
func (e *Engine) ProtectedDirectories() []string {
	return append([]string(nil), e.policy.ProtectedDirectories...)
}
