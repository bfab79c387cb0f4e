package backup

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSnapshotWritesBlobAndMeta(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, ".file-backups"), 10)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "app.txt")
	if err := os.WriteFile(src, []byte("A"), 0o644); err != nil {
		t.Fatal(err)
	}

	bp, err := s.Snapshot(src, "update", nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(bp), "app.txt.update.") || !strings.HasSuffix(bp, ".backup") {
		t.Fatalf("unexpected backup name %s", bp)
	}

	blob, err := os.ReadFile(bp)
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != "A" {
		t.Fatalf("blob mismatch: %q", blob)
	}

	mb, err := os.ReadFile(bp + ".meta")
	if err != nil {
		t.Fatalf("meta sidecar missing: %v", err)
	}
	var m Meta
	if err := json.Unmarshal(mb, &m); err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("%x", md5.Sum([]byte("A")))
	if m.MD5 != want {
		t.Fatalf("md5 witness mismatch: got %s want %s", m.MD5, want)
	}
	if m.OriginalPath != src || m.Context != "update" || m.Size != 1 {
		t.Fatalf("meta fields wrong: %+v", m)
	}
}

func TestSnapshotMissingSourceIsNil(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, ".file-backups"), 10)
	if err != nil {
		t.Fatal(err)
	}
	bp, err := s.Snapshot(filepath.Join(dir, "nope.txt"), "delete", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if bp != "" {
		t.Fatalf("expected empty backup path, got %s", bp)
	}
}

func TestRetentionBound(t *testing.T) {
	dir := t.TempDir()
	const n = 3
	s, err := New(filepath.Join(dir, ".file-backups"), n)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "config.txt")

	for i := 0; i < n+4; i++ {
		if err := os.WriteFile(src, []byte(fmt.Sprintf("v%d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Snapshot(src, "update", nil); err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		// Distinct mtimes so the prune ordering is deterministic.
		time.Sleep(5 * time.Millisecond)
	}

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, b := range list {
		if strings.HasPrefix(b.Name, "config.txt.") {
			count++
		}
	}
	if count > n {
		t.Fatalf("retention exceeded: %d > %d", count, n)
	}
}

func TestRetentionIsPerBasename(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, ".file-backups"), 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		src := filepath.Join(dir, name)
		for i := 0; i < 3; i++ {
			if err := os.WriteFile(src, []byte(fmt.Sprintf("%s%d", name, i)), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Snapshot(src, "update", nil); err != nil {
				t.Fatal(err)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 2 per basename, got %d total", len(list))
	}
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, ".file-backups"), 10)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "f.txt")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(src, []byte{byte('0' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Snapshot(src, "update", nil); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 backups, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].Created.After(list[i-1].Created) {
			t.Fatalf("list not newest-first at %d", i)
		}
	}
}

func TestRestoreVerifiesWitness(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, ".file-backups"), 10)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "page.txt")
	if err := os.WriteFile(src, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	bp, err := s.Snapshot(src, "update", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("mutated"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Restore(filepath.Base(bp), false); err == nil {
		t.Fatal("expected refusal while destination exists")
	}
	restored, err := s.Restore(filepath.Base(bp), true)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	b, err := os.ReadFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "original" {
		t.Fatalf("restored content mismatch: %q", b)
	}

	// Corrupt the blob; restore must refuse.
	if err := os.WriteFile(bp, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Restore(filepath.Base(bp), true); err == nil {
		t.Fatal("expected integrity mismatch")
	}
}
