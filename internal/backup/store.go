package backup

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
)

const (
	backupSuffix = ".backup"
	metaSuffix   = ".backup.meta"
)

// Meta is the sidecar written next to every snapshot. The MD5 is the
// integrity witness of the bytes at snapshot time.
type Meta struct {
	OriginalPath string              `json:"original_path"`
	Context      string              `json:"context"` // update | create-overwrite | delete | legacy
	Timestamp    time.Time           `json:"timestamp"`
	Size         int64               `json:"size"`
	MD5          string              `json:"md5"`
	Decision     *types.PathDecision `json:"decision,omitempty"`
}

// Store owns the backup directory. Snapshots for different basenames are
// independent; snapshots of the same basename are serialized so retention
// cleanup runs on a consistent view.
type Store struct {
	dir       string
	retention int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(dir string, retention int) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("backup dir required")
	}
	if retention <= 0 {
		retention = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir backup dir: %w", err)
	}
	return &Store{dir: dir, retention: retention, locks: map[string]*sync.Mutex{}}, nil
}

// Dir returns the backup directory the store owns.
func (s *Store) Dir() string { return s.dir }

func (s *Store) lockFor(base string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[base]
	if !ok {
		l = &sync.Mutex{}
		s.locks[base] = l
	}
	return l
}

// Snapshot copies the file at path into the backup directory before the
// caller mutates it. A missing source is not an error: it returns "" so
// plain creates proceed without a snapshot. On any copy error the caller
// must not perform its mutation.
func (s *Store) Snapshot(path, context string, decision *types.PathDecision) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open original: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat original: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot snapshot directory %s", path)
	}

	base := filepath.Base(path)
	l := s.lockFor(base)
	l.Lock()
	defer l.Unlock()

	stamp := strings.ReplaceAll(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
	name := fmt.Sprintf("%s.%s.%s%s", base, context, stamp, backupSuffix)
	backupPath := filepath.Join(s.dir, name)

	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		// Two snapshots of the same basename landed in the same
		// millisecond; disambiguate with a nanosecond stamp.
		stamp = strings.ReplaceAll(time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z"), ":", "-")
		name = fmt.Sprintf("%s.%s.%s%s", base, context, stamp, backupSuffix)
		backupPath = filepath.Join(s.dir, name)
		dst, err = os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}

	h := md5.New()
	size, err := io.Copy(io.MultiWriter(dst, h), src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("copy backup: %w", err)
	}

	meta := Meta{
		OriginalPath: path,
		Context:      context,
		Timestamp:    time.Now().UTC(),
		Size:         size,
		MD5:          fmt.Sprintf("%x", h.Sum(nil)),
		Decision:     decision,
	}
	mb, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	if err := os.WriteFile(backupPath+".meta", mb, 0o644); err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("write meta: %w", err)
	}

	if err := s.pruneLocked(base); err != nil {
		return "", fmt.Errorf("prune backups: %w", err)
	}
	return backupPath, nil
}

// pruneLocked unlinks snapshots of base beyond the retention cap,
// oldest first. Caller holds the per-basename lock.
func (s *Store) pruneLocked(base string) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	type candidate struct {
		name string
		mod  time.Time
	}
	var matches []candidate
	prefix := base + "."
	for _, ent := range entries {
		n := ent.Name()
		if ent.IsDir() || !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, backupSuffix) {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		matches = append(matches, candidate{name: n, mod: info.ModTime()})
	}
	if len(matches) <= s.retention {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].mod.After(matches[j].mod) })
	for _, old := range matches[s.retention:] {
		if err := os.Remove(filepath.Join(s.dir, old.name)); err != nil && !os.IsNotExist(err) {
			return err
		}
		_ = os.Remove(filepath.Join(s.dir, old.name+".meta"))
	}
	return nil
}

// List returns all snapshots, newest first. The store is fully
// reconstructible from directory enumeration; there is no index.
func (s *Store) List() ([]types.BackupInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []types.BackupInfo
	for _, ent := range entries {
		n := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(n, backupSuffix) {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		bi := types.BackupInfo{
			Name:     n,
			Size:     info.Size(),
			Modified: info.ModTime(),
			Created:  info.ModTime(),
		}
		if meta, err := s.readMeta(n); err == nil {
			bi.OriginalPath = meta.OriginalPath
			bi.Context = meta.Context
			bi.Created = meta.Timestamp
			bi.MD5 = meta.MD5
		}
		out = append(out, bi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

// Count returns the number of retained snapshots.
func (s *Store) Count() int {
	list, err := s.List()
	if err != nil {
		return 0
	}
	return len(list)
}

func (s *Store) readMeta(backupName string) (*Meta, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, backupName+".meta"))
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Restore copies a snapshot back to its original path after verifying the
// blob still matches its MD5 witness. An existing destination requires
// force.
func (s *Store) Restore(backupName string, force bool) (string, error) {
	if strings.Contains(backupName, "/") || strings.Contains(backupName, "..") {
		return "", fmt.Errorf("invalid backup name %q", backupName)
	}
	meta, err := s.readMeta(backupName)
	if err != nil {
		return "", fmt.Errorf("read meta: %w", err)
	}

	blob, err := os.ReadFile(filepath.Join(s.dir, backupName))
	if err != nil {
		return "", fmt.Errorf("read backup: %w", err)
	}
	sum := fmt.Sprintf("%x", md5.Sum(blob))
	if meta.MD5 != "" && sum != meta.MD5 {
		return "", fmt.Errorf("integrity mismatch for %s: expected %s got %s", backupName, meta.MD5, sum)
	}

	target := meta.OriginalPath
	if !force {
		if _, err := os.Lstat(target); err == nil {
			return "", fmt.Errorf("destination exists: %s", target)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, blob, 0o644); err != nil {
		return "", fmt.Errorf("restore write: %w", err)
	}
	return target, nil
}
