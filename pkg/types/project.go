package types

// TemplateInfo describes one bundled template.
type TemplateInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type GenerateRequest struct {
	TemplateID  string `json:"templateId"`
	ProjectName string `json:"projectName"`
}

type GeneratedEntry struct {
	Type string `json:"type"` // "dir" or "file"
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
}

type GenerateResult struct {
	ProjectName string           `json:"projectName"`
	Directories int              `json:"directories"`
	Files       int              `json:"files"`
	Entries     []GeneratedEntry `json:"entries"`
}

// ProjectAnalysis is the result of inspecting the workspace.
type ProjectAnalysis struct {
	Type        string   `json:"type"`
	Features    []string `json:"features"`
	Suggestions []string `json:"suggestions"`
}

// ProjectMeta carries ambient workspace metadata: the package manifest, the
// names (never values) of environment variables, and doc resources.
type ProjectMeta struct {
	Manifest     map[string]any    `json:"manifest,omitempty"`
	EnvVarNames  []string          `json:"env_var_names"`
	DocResources map[string]string `json:"doc_resources,omitempty"`
}

type BranchWorkflowRequest struct {
	Branch  string `json:"branch"`
	Message string `json:"message,omitempty"`
	Push    bool   `json:"push,omitempty"`
}

type BranchWorkflowResult struct {
	Branch    string `json:"branch"`
	Created   bool   `json:"created"`
	Committed bool   `json:"committed"`
	Pushed    bool   `json:"pushed"`
}

// HealthReport is the system/health inventory.
type HealthReport struct {
	Status               string   `json:"status"`
	CriticalFiles        []string `json:"critical_files"`
	ProtectedDirectories []string `json:"protected_directories"`
	BackupCount          int      `json:"backup_count"`
}
