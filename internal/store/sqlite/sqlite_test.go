package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
)

func TestAppendAndQuery(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	evs := []types.Event{
		{ID: "e1", Type: "file_created", Path: "src/a.txt", Policy: &types.PolicyInfo{Allowed: true, Level: types.LevelProjectFile}},
		{ID: "e2", Type: "file_update_denied", Path: "agentyard.yaml", Policy: &types.PolicyInfo{Allowed: false, Level: types.LevelCritical}},
		{ID: "e3", Type: "command_finished", CommandID: "cmd-1"},
	}
	for i, ev := range evs {
		ev.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("append %s: %v", ev.ID, err)
		}
	}

	all, err := s.QueryEvents(ctx, types.EventQuery{Asc: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].ID != "e1" {
		t.Fatalf("ascending order broken: %s first", all[0].ID)
	}

	denied, err := s.QueryEvents(ctx, types.EventQuery{Denied: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(denied) != 1 || denied[0].ID != "e2" {
		t.Fatalf("denied filter wrong: %+v", denied)
	}

	byCmd, err := s.QueryEvents(ctx, types.EventQuery{CommandID: "cmd-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byCmd) != 1 || byCmd[0].ID != "e3" {
		t.Fatalf("command filter wrong: %+v", byCmd)
	}
}

func TestOutputRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.SaveOutput(ctx, "cmd-9", []byte("hello world"), []byte("err"), 11, 3, false, false); err != nil {
		t.Fatal(err)
	}
	chunk, total, trunc, err := s.ReadOutputChunk(ctx, "cmd-9", "stdout", 6, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(chunk) != "world" || total != 11 || trunc {
		t.Fatalf("chunk=%q total=%d trunc=%v", chunk, total, trunc)
	}

	if _, _, _, err := s.ReadOutputChunk(ctx, "missing", "stdout", 0, 10); err == nil {
		t.Fatal("expected error for missing output")
	}
}
