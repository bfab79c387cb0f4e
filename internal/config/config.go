package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Policy    PolicyConfig    `yaml:"policy"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Browser   BrowserConfig   `yaml:"browser"`
	Audit     AuditConfig     `yaml:"audit"`
	Templates TemplatesConfig `yaml:"templates"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
	MaxRequestSize string `yaml:"max_request_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

type WorkspaceConfig struct {
	Root            string `yaml:"root"`
	BackupDir       string `yaml:"backup_dir"`
	MaxFileSize     string `yaml:"max_file_size"`
	MaxBulkFiles    int    `yaml:"max_bulk_files"`
	BackupRetention int    `yaml:"backup_retention"`
}

type PolicyConfig struct {
	File      string `yaml:"file"`
	HotReload bool   `yaml:"hot_reload"`
}

type ExecutorConfig struct {
	DefaultTimeout    string   `yaml:"default_timeout"`
	LongTimeout       string   `yaml:"long_timeout"`
	TermGrace         string   `yaml:"term_grace"`
	KeepaliveInterval string   `yaml:"keepalive_interval"`
	PostCommandDelay  string   `yaml:"post_command_delay"`
	MaxOutputSize     string   `yaml:"max_output_size"`
	EnvAllow          []string `yaml:"env_allow"`
	EnvPrefix         string   `yaml:"env_prefix"`
}

type BrowserConfig struct {
	Enabled   bool `yaml:"enabled"`
	Headless  bool `yaml:"headless"`
	LocalPort int  `yaml:"local_port"`
}

type AuditConfig struct {
	SQLitePath string             `yaml:"sqlite_path"`
	JSONL      AuditJSONLConfig   `yaml:"jsonl"`
	Webhook    AuditWebhookConfig `yaml:"webhook"`
}

type AuditJSONLConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type AuditWebhookConfig struct {
	URL           string            `yaml:"url"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval string            `yaml:"flush_interval"`
	Timeout       string            `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
}

type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration. The workspace root defaults to
// the current working directory; everything else is relative to it.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Server: ServerConfig{
			Addr:           ":3001",
			ReadTimeout:    "30s",
			WriteTimeout:   "10m",
			MaxRequestSize: "20MB",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Workspace: WorkspaceConfig{
			Root:            cwd,
			BackupDir:       ".file-backups",
			MaxFileSize:     "10MiB",
			MaxBulkFiles:    50,
			BackupRetention: 10,
		},
		Policy: PolicyConfig{HotReload: true},
		Executor: ExecutorConfig{
			DefaultTimeout:    "30s",
			LongTimeout:       "5m",
			TermGrace:         "5s",
			KeepaliveInterval: "10s",
			PostCommandDelay:  "5s",
			MaxOutputSize:     "1MB",
			EnvAllow: []string{
				"PATH", "HOME", "USER", "NODE_ENV", "TZ", "LANG", "LC_ALL",
				"PWD", "TMPDIR", "TEMP", "TMP",
			},
			EnvPrefix: "AGENTYARD_",
		},
		Browser: BrowserConfig{Enabled: true, Headless: true, LocalPort: 3000},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root is required")
	}
	if !filepath.IsAbs(c.Workspace.Root) {
		abs, err := filepath.Abs(c.Workspace.Root)
		if err != nil {
			return fmt.Errorf("resolve workspace.root: %w", err)
		}
		c.Workspace.Root = abs
	}
	if c.Workspace.MaxBulkFiles <= 0 {
		c.Workspace.MaxBulkFiles = 50
	}
	if c.Workspace.BackupRetention <= 0 {
		c.Workspace.BackupRetention = 10
	}
	for _, d := range []string{
		c.Executor.DefaultTimeout, c.Executor.LongTimeout,
		c.Executor.TermGrace, c.Executor.KeepaliveInterval,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("executor duration %q: %w", d, err)
		}
	}
	return nil
}

// BackupPath returns the absolute backup directory under the workspace root.
func (c *Config) BackupPath() string {
	if filepath.IsAbs(c.Workspace.BackupDir) {
		return c.Workspace.BackupDir
	}
	return filepath.Join(c.Workspace.Root, c.Workspace.BackupDir)
}

// Duration parses a duration field that Validate has already vetted,
// falling back to def when unset.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
