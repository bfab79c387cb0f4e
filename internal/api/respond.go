package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentyard/agentyard/internal/scaffold"
	"github.com/agentyard/agentyard/internal/workspace"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return false
	}
	return true
}

// writeOpError maps kind-tagged operation errors onto HTTP statuses. The
// kind always travels in the body so clients can branch without parsing
// messages.
func writeOpError(w http.ResponseWriter, err error) {
	kind := workspace.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case workspace.KindPathTraversal, workspace.KindInvalidBulk, workspace.KindNotDirectory:
		status = http.StatusBadRequest
	case workspace.KindCritical, workspace.KindSystemDirectory,
		workspace.KindCredential, workspace.KindProtected:
		status = http.StatusForbidden
	case workspace.KindMissing, scaffold.KindUnknownTemplate:
		status = http.StatusNotFound
	case workspace.KindExists, scaffold.KindProjectExists:
		status = http.StatusConflict
	case workspace.KindTooLarge:
		status = http.StatusRequestEntityTooLarge
	}
	var msg string
	var oe *workspace.OpError
	if errors.As(err, &oe) {
		msg = oe.Message
	} else {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg, "kind": kind})
}
