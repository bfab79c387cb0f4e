package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentyard/agentyard/pkg/types"
)

func TestAppendWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := New(path, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, id := range []string{"a", "b"} {
		if err := s.AppendEvent(context.Background(), types.Event{ID: id, Type: "file_created"}); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	var ids []string
	for sc.Scan() {
		var ev types.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line: %v", err)
		}
		ids = append(ids, ev.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestQueryUnsupported(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "audit.jsonl"), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.QueryEvents(context.Background(), types.EventQuery{}); err == nil {
		t.Fatal("expected query to be unsupported")
	}
}
