package api

import (
	"net/http"

	"github.com/agentyard/agentyard/internal/workspace"
	"github.com/agentyard/agentyard/pkg/types"
)

// dispatchFiles routes a request body to the single-item operation or its
// bulk lift. Presence of the files array is the only discriminator.
func (a *App) dispatchFiles(w http.ResponseWriter, r *http.Request, op workspace.BulkOp, single func(types.FileRequest) (any, error)) {
	var env types.BulkEnvelope
	if !decodeJSON(w, r, &env) {
		return
	}

	if env.Files != nil {
		res, err := a.ops.Bulk(r.Context(), op, env.Files)
		if err != nil {
			writeOpError(w, err)
			return
		}
		// Partial failure is not a batch failure; a structurally valid
		// batch always reports 200 with per-item accounting.
		writeJSON(w, http.StatusOK, res)
		return
	}

	if env.FilePath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "filePath is required", "kind": workspace.KindInvalidBulk})
		return
	}
	res, err := single(env.FileRequest)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) createFiles(w http.ResponseWriter, r *http.Request) {
	a.dispatchFiles(w, r, workspace.BulkCreate, func(req types.FileRequest) (any, error) {
		return a.ops.Create(r.Context(), req)
	})
}

func (a *App) updateFiles(w http.ResponseWriter, r *http.Request) {
	a.dispatchFiles(w, r, workspace.BulkUpdate, func(req types.FileRequest) (any, error) {
		return a.ops.Update(r.Context(), req)
	})
}

func (a *App) deleteFiles(w http.ResponseWriter, r *http.Request) {
	a.dispatchFiles(w, r, workspace.BulkDelete, func(req types.FileRequest) (any, error) {
		return a.ops.Delete(r.Context(), req)
	})
}

func (a *App) readFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePath string `json:"filePath"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.ops.Read(r.Context(), req.FilePath)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) listFiles(w http.ResponseWriter, r *http.Request) {
	var req types.ListRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.ops.List(r.Context(), req)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) listBackups(w http.ResponseWriter, r *http.Request) {
	list, err := a.backups.List()
	if err != nil {
		writeOpError(w, err)
		return
	}
	if list == nil {
		list = []types.BackupInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "backups": list})
}

func (a *App) restoreBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Force bool   `json:"force"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "name is required"})
		return
	}
	target, err := a.backups.Restore(req.Name, req.Force)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": target})
}
