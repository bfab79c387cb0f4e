package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentyard/agentyard/internal/backup"
	"github.com/agentyard/agentyard/internal/policy"
	"github.com/agentyard/agentyard/pkg/types"
	"github.com/google/uuid"
)

// Emitter receives audit events for every decision and mutation.
type Emitter interface {
	Emit(ctx context.Context, ev types.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, types.Event) {}

// Ops implements the five file operations over a confined workspace. It is
// the only component that writes to the workspace subtree; snapshots go
// through the backup store, which owns the backup directory.
type Ops struct {
	policies    *policy.Manager
	backups     *backup.Store
	maxFileSize int64
	maxBulk     int
	emitter     Emitter
}

func NewOps(policies *policy.Manager, backups *backup.Store, maxFileSize int64, maxBulk int, emitter Emitter) *Ops {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	if maxBulk <= 0 {
		maxBulk = 50
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Ops{
		policies:    policies,
		backups:     backups,
		maxFileSize: maxFileSize,
		maxBulk:     maxBulk,
		emitter:     emitter,
	}
}

func (o *Ops) engine() *policy.Engine { return o.policies.Engine() }

// classifyForMutation runs the ordered front half of every mutation:
// classifier decision, then credential check. checkCredential is false for
// delete, which operates on names rather than content.
func (o *Ops) classifyForMutation(p string, checkCredential bool) (types.PathDecision, string, error) {
	d, abs, err := o.engine().ClassifyPath(p)
	if err != nil {
		return d, "", wrapErr(KindPathTraversal, "path escapes workspace", err)
	}
	switch d.Level {
	case types.LevelCritical:
		return d, "", opErr(KindCritical, "%s", d.Reason)
	case types.LevelSystemDirectory:
		return d, "", opErr(KindSystemDirectory, "%s", d.Reason)
	}
	if checkCredential && d.Credential {
		return d, "", opErr(KindCredential, "credential file %s cannot be accessed", d.Relative)
	}
	return d, abs, nil
}

// snapshot wraps the backup store; a failed snapshot aborts the mutation.
func (o *Ops) snapshot(abs, label string, d types.PathDecision) (string, error) {
	bp, err := o.backups.Snapshot(abs, label, &d)
	if err != nil {
		return "", wrapErr(KindBackupFailed, "snapshot before "+label, err)
	}
	return bp, nil
}

func (o *Ops) Create(ctx context.Context, req types.FileRequest) (*types.FileResult, error) {
	d, abs, err := o.classifyForMutation(req.FilePath, true)
	if err != nil {
		o.audit(ctx, "file_create_denied", req.FilePath, d, err)
		return nil, err
	}

	info, statErr := os.Lstat(abs)
	exists := statErr == nil
	if exists && info.IsDir() {
		return nil, opErr(KindExists, "%s is a directory", d.Relative)
	}
	if exists && !req.Overwrite {
		return nil, opErr(KindExists, "%s already exists (set overwrite)", d.Relative)
	}

	var backupPath string
	if exists && (d.Level == types.LevelSystemFile || d.Protected) {
		if backupPath, err = o.snapshot(abs, "create-overwrite", d); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, wrapErr(KindIOError, "create parent dirs", err)
	}
	if err := os.WriteFile(abs, []byte(req.Content), 0o644); err != nil {
		return nil, wrapErr(KindIOError, "write file", err)
	}

	slog.Info("✚ " + d.Relative)
	o.audit(ctx, "file_created", d.Relative, d, nil)
	return &types.FileResult{
		Path:       d.Relative,
		Size:       int64(len(req.Content)),
		BackupPath: backupPath,
		Created:    !exists,
		Overwrote:  exists,
	}, nil
}

func (o *Ops) Update(ctx context.Context, req types.FileRequest) (*types.FileResult, error) {
	d, abs, err := o.classifyForMutation(req.FilePath, true)
	if err != nil {
		o.audit(ctx, "file_update_denied", req.FilePath, d, err)
		return nil, err
	}

	info, statErr := os.Lstat(abs)
	if statErr != nil || info.IsDir() {
		return nil, opErr(KindMissing, "%s does not exist", d.Relative)
	}

	// The request flag and the snapshot operation are deliberately distinct
	// names: the snapshot also fires unconditionally for system files and
	// protected names, whatever the caller asked for.
	shouldSnapshot := req.CreateBackup || d.Level == types.LevelSystemFile || d.Protected
	var backupPath string
	if shouldSnapshot {
		if backupPath, err = o.snapshot(abs, "update", d); err != nil {
			return nil, err
		}
	}

	if err := os.WriteFile(abs, []byte(req.Content), 0o644); err != nil {
		return nil, wrapErr(KindIOError, "write file", err)
	}

	slog.Info("✎ " + d.Relative)
	o.audit(ctx, "file_updated", d.Relative, d, nil)
	return &types.FileResult{
		Path:       d.Relative,
		Size:       int64(len(req.Content)),
		BackupPath: backupPath,
	}, nil
}

func (o *Ops) Delete(ctx context.Context, req types.FileRequest) (*types.FileResult, error) {
	d, abs, err := o.classifyForMutation(req.FilePath, false)
	if err != nil {
		o.audit(ctx, "file_delete_denied", req.FilePath, d, err)
		return nil, err
	}

	info, statErr := os.Lstat(abs)
	if statErr != nil {
		return nil, opErr(KindMissing, "%s does not exist", d.Relative)
	}
	if info.IsDir() {
		return nil, opErr(KindIOError, "%s is a directory", d.Relative)
	}
	if d.Protected && !req.Force {
		return nil, opErr(KindProtected, "%s is protected (set force to delete)", d.Relative)
	}

	backupPath, err := o.snapshot(abs, "delete", d)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(abs); err != nil {
		return nil, wrapErr(KindIOError, "unlink", err)
	}

	slog.Info("✖ " + d.Relative)
	o.audit(ctx, "file_deleted", d.Relative, d, nil)
	return &types.FileResult{Path: d.Relative, BackupPath: backupPath, Deleted: true}, nil
}

// Mkdir creates a directory (and parents) inside the workspace, subject to
// the same classification as file mutations.
func (o *Ops) Mkdir(ctx context.Context, p string) error {
	d, abs, err := o.classifyForMutation(p, false)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return wrapErr(KindIOError, "mkdir", err)
	}
	o.audit(ctx, "dir_created", d.Relative, d, nil)
	return nil
}

// Exists reports whether a workspace-relative path exists, without policy
// checks beyond confinement.
func (o *Ops) Exists(p string) (bool, error) {
	abs, _, err := o.engine().Resolve(p)
	if err != nil {
		return false, wrapErr(KindPathTraversal, "path escapes workspace", err)
	}
	_, statErr := os.Lstat(abs)
	return statErr == nil, nil
}

func (o *Ops) Read(ctx context.Context, p string) (*types.ReadResult, error) {
	d, abs, err := o.engine().ClassifyPath(p)
	if err != nil {
		return nil, wrapErr(KindPathTraversal, "path escapes workspace", err)
	}
	// Reads of critical files are permitted; protected directories stay
	// opaque in both directions.
	if d.Level == types.LevelSystemDirectory {
		return nil, opErr(KindSystemDirectory, "%s", d.Reason)
	}
	if d.Credential {
		o.audit(ctx, "file_read_denied", d.Relative, d, nil)
		return nil, opErr(KindCredential, "credential file %s cannot be read", d.Relative)
	}

	info, statErr := os.Lstat(abs)
	if statErr != nil {
		return nil, opErr(KindMissing, "%s does not exist", d.Relative)
	}
	if info.IsDir() {
		return nil, opErr(KindNotDirectory, "%s is a directory, not a file", d.Relative)
	}
	if info.Size() > o.maxFileSize {
		return nil, opErr(KindTooLarge, "%s is %d bytes (limit %d)", d.Relative, info.Size(), o.maxFileSize)
	}

	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapErr(KindIOError, "read file", err)
	}
	return &types.ReadResult{
		Path:       d.Relative,
		Content:    string(b),
		Size:       info.Size(),
		Modified:   info.ModTime(),
		Protected:  d.Protected,
		Credential: false,
	}, nil
}

func (o *Ops) List(ctx context.Context, req types.ListRequest) (*types.ListResult, error) {
	p := req.DirPath
	if p == "" {
		p = "."
	}
	d, abs, err := o.engine().ClassifyPath(p)
	if err != nil {
		return nil, wrapErr(KindPathTraversal, "path escapes workspace", err)
	}
	if d.Level == types.LevelSystemDirectory {
		return nil, opErr(KindSystemDirectory, "%s", d.Reason)
	}

	info, statErr := os.Lstat(abs)
	if statErr != nil {
		return nil, opErr(KindMissing, "%s does not exist", d.Relative)
	}
	if !info.IsDir() {
		return nil, opErr(KindNotDirectory, "%s is not a directory", d.Relative)
	}

	var entries []types.ListEntry
	eng := o.engine()
	collect := func(path string, ent os.DirEntry) error {
		name := ent.Name()
		if !req.IncludeHidden && strings.HasPrefix(name, ".") {
			if ent.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !req.IncludeCredentials && eng.IsCredential(name) {
			return nil
		}
		rel, err := filepath.Rel(eng.Root(), path)
		if err != nil {
			return nil
		}
		fi, err := ent.Info()
		if err != nil {
			return nil
		}
		le := types.ListEntry{
			Name:     name,
			Path:     filepath.ToSlash(rel),
			Dir:      ent.IsDir(),
			Modified: fi.ModTime(),
		}
		if !ent.IsDir() {
			le.Size = fi.Size()
		}
		if ed, _, err := eng.ClassifyPath(path); err == nil {
			le.Protected = ed.Protected
		}
		entries = append(entries, le)
		return nil
	}

	if req.Recursive {
		err = filepath.WalkDir(abs, func(path string, ent os.DirEntry, err error) error {
			if err != nil || path == abs {
				return err
			}
			return collect(path, ent)
		})
		if err != nil {
			return nil, wrapErr(KindIOError, "walk directory", err)
		}
	} else {
		ents, err := os.ReadDir(abs)
		if err != nil {
			return nil, wrapErr(KindIOError, "read directory", err)
		}
		for _, ent := range ents {
			_ = collect(filepath.Join(abs, ent.Name()), ent)
		}
	}

	slog.Info("list", "path", d.Relative, "count", len(entries))
	return &types.ListResult{Path: d.Relative, Count: len(entries), Entries: entries}, nil
}

func (o *Ops) audit(ctx context.Context, typ, path string, d types.PathDecision, failure error) {
	ev := types.Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Path:      path,
		Policy: &types.PolicyInfo{
			Allowed: failure == nil,
			Level:   d.Level,
			Reason:  d.Reason,
		},
	}
	if failure != nil {
		ev.Fields = map[string]any{"error": failure.Error()}
	}
	o.emitter.Emit(ctx, ev)
}
