package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
)

func TestBatchFlushOnSize(t *testing.T) {
	var mu sync.Mutex
	var batches [][]types.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []types.Event
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
	}))
	defer srv.Close()

	s, err := New(srv.URL, 2, time.Hour, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.AppendEvent(ctx, types.Event{ID: "1", Type: "x"}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if len(batches) != 0 {
		t.Fatal("flushed before batch size reached")
	}
	mu.Unlock()

	if err := s.AppendEvent(ctx, types.Event{ID: "2", Type: "x"}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("unexpected batches %v", batches)
	}
	mu.Unlock()
}

func TestCloseFlushesRemainder(t *testing.T) {
	var mu sync.Mutex
	got := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []types.Event
		_ = json.NewDecoder(r.Body).Decode(&batch)
		mu.Lock()
		got += len(batch)
		mu.Unlock()
	}))
	defer srv.Close()

	s, err := New(srv.URL, 100, time.Hour, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.AppendEvent(context.Background(), types.Event{ID: "1", Type: "x"})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got != 1 {
		t.Fatalf("expected 1 shipped event, got %d", got)
	}
}
