package api

import (
	"net/http"

	"github.com/agentyard/agentyard/pkg/types"
)

func (a *App) listTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": a.generator.List()})
}

func (a *App) generateTemplate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TemplateID == "" || req.ProjectName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "templateId and projectName are required"})
		return
	}
	res, err := a.generator.Generate(r.Context(), req)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *App) analyzeProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.inspector.Analyze())
}

func (a *App) projectMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.inspector.Meta())
}

func (a *App) branchWorkflow(w http.ResponseWriter, r *http.Request) {
	var req types.BranchWorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Branch == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "branch is required"})
		return
	}
	res, err := a.gitflow.Run(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) systemHealth(w http.ResponseWriter, r *http.Request) {
	engine := a.policies.Engine()
	writeJSON(w, http.StatusOK, types.HealthReport{
		Status:               "ok",
		CriticalFiles:        engine.CriticalFiles(),
		ProtectedDirectories: engine.ProtectedDirectories(),
		BackupCount:          a.backups.Count(),
	})
}
