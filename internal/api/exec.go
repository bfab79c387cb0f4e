package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// precheck classifies the command and emits the audit event for the
// decision. The returned response is non-nil when the command is refused.
func (a *App) precheck(ctx context.Context, cmdID string, req types.ExecRequest, start time.Time) *types.ExecResponse {
	pre := a.policies.Engine().CheckCommand(req.Command)

	ev := types.Event{
		ID:        uuid.NewString(),
		Timestamp: start,
		Type:      "command_policy",
		CommandID: cmdID,
		Operation: "command_precheck",
		Policy: &types.PolicyInfo{
			Allowed: pre.Allowed,
			Rule:    pre.Rule,
			Reason:  pre.Reason,
		},
		Fields: map[string]any{"command": req.Command},
	}
	a.Emitter().Emit(ctx, ev)

	if pre.Allowed {
		return nil
	}

	code := "E_COMMAND_BLOCKED"
	if pre.Rule == "not-allowlisted" {
		code = "E_COMMAND_NOT_ALLOWED"
	}
	return &types.ExecResponse{
		CommandID: cmdID,
		Timestamp: start,
		Request:   req,
		Result: types.ExecResult{
			ExitCode:  126,
			StartTime: start,
			EndTime:   time.Now().UTC(),
			Error: &types.ExecError{
				Code:       code,
				Message:    pre.Reason,
				PolicyRule: pre.Rule,
			},
		},
	}
}

func (a *App) execute(w http.ResponseWriter, r *http.Request) {
	var req types.ExecRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "command is required"})
		return
	}

	cmdID := "cmd-" + uuid.NewString()
	start := time.Now().UTC()

	if denied := a.precheck(r.Context(), cmdID, req, start); denied != nil {
		writeJSON(w, http.StatusForbidden, denied)
		return
	}

	a.emitCommandEvent(r.Context(), "command_started", cmdID, req.Command, nil)
	res := a.exec.Run(req, nil)
	a.finishCommand(r.Context(), cmdID, req, res)

	// Exit codes are reported verbatim; a failed command is still a
	// successfully handled request.
	writeJSON(w, http.StatusOK, types.ExecResponse{
		CommandID: cmdID,
		Timestamp: start,
		Request:   req,
		Result:    *res,
	})
}

func (a *App) finishCommand(ctx context.Context, cmdID string, req types.ExecRequest, res *types.ExecResult) {
	_ = a.store.SaveOutput(ctx, cmdID, []byte(res.Stdout), []byte(res.Stderr),
		res.StdoutTotalBytes, res.StderrTotalBytes, res.StdoutTruncated, res.StderrTruncated)

	fields := map[string]any{
		"command":    req.Command,
		"exit_code":  res.ExitCode,
		"elapsed_ms": res.ElapsedMs,
	}
	if res.Error != nil {
		fields["error_code"] = res.Error.Code
	}
	a.emitCommandEvent(ctx, "command_finished", cmdID, req.Command, fields)
}

func (a *App) emitCommandEvent(ctx context.Context, typ, cmdID, command string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{"command": command}
	}
	a.Emitter().Emit(ctx, types.Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		CommandID: cmdID,
		Fields:    fields,
	})
}

func (a *App) getOutputChunk(w http.ResponseWriter, r *http.Request) {
	cmdID := chi.URLParam(r, "id")
	stream := r.URL.Query().Get("stream")
	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	chunk, total, truncated, err := a.store.ReadOutputChunk(r.Context(), cmdID, stream, offset, limit)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"command_id":  cmdID,
		"stream":      stream,
		"offset":      offset,
		"total_bytes": total,
		"truncated":   truncated,
		"data":        string(chunk),
		"has_more":    offset+int64(len(chunk)) < total,
	})
}
