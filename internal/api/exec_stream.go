package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
	"github.com/google/uuid"
)

// executeStream runs a command with incremental output over SSE. The
// stream always ends with exactly one terminal event: complete on normal
// termination, error on timeout or spawn failure.
func (a *App) executeStream(w http.ResponseWriter, r *http.Request) {
	var req types.ExecRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "command is required"})
		return
	}
	req.StreamOutput = true

	cmdID := "cmd-" + uuid.NewString()
	start := time.Now().UTC()

	if denied := a.precheck(r.Context(), cmdID, req, start); denied != nil {
		writeJSON(w, http.StatusForbidden, denied)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming not supported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	a.emitCommandEvent(r.Context(), "command_started", cmdID, req.Command, nil)

	// Executor callbacks land on several goroutines; SSE frames must not
	// interleave.
	var writeMu sync.Mutex
	emit := func(ev types.StreamEvent) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return writeSSE(w, flusher, ev)
	}

	res := a.exec.Run(req, emit)
	a.finishCommand(r.Context(), cmdID, req, res)

	terminal := types.StreamEvent{
		Type:      "complete",
		Timestamp: time.Now().UTC(),
		Result:    res,
	}
	if res.Error != nil {
		terminal.Type = "error"
	}
	writeMu.Lock()
	_ = writeSSE(w, flusher, terminal)
	writeMu.Unlock()
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev types.StreamEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
