package api

import (
	"context"
	"net/http"

	"github.com/agentyard/agentyard/internal/backup"
	"github.com/agentyard/agentyard/internal/browser"
	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/events"
	"github.com/agentyard/agentyard/internal/executor"
	"github.com/agentyard/agentyard/internal/gitops"
	"github.com/agentyard/agentyard/internal/policy"
	"github.com/agentyard/agentyard/internal/project"
	"github.com/agentyard/agentyard/internal/scaffold"
	"github.com/agentyard/agentyard/internal/store/composite"
	"github.com/agentyard/agentyard/internal/workspace"
	"github.com/agentyard/agentyard/pkg/types"
	"github.com/go-chi/chi/v5"
)

// App wires the policy engine, workspace operations, executor, browser
// coordinator, and audit stores behind the HTTP surface.
type App struct {
	cfg       *config.Config
	policies  *policy.Manager
	ops       *workspace.Ops
	backups   *backup.Store
	exec      *executor.Executor
	browser   *browser.Coordinator
	generator *scaffold.Generator
	inspector *project.Inspector
	gitflow   *gitops.Workflow

	store  *composite.Store
	broker *events.Broker
}

func NewApp(cfg *config.Config, policies *policy.Manager, ops *workspace.Ops, backups *backup.Store, exec *executor.Executor, br *browser.Coordinator, gen *scaffold.Generator, insp *project.Inspector, gitflow *gitops.Workflow, store *composite.Store, broker *events.Broker) *App {
	return &App{
		cfg:       cfg,
		policies:  policies,
		ops:       ops,
		backups:   backups,
		exec:      exec,
		browser:   br,
		generator: gen,
		inspector: insp,
		gitflow:   gitflow,
		store:     store,
		broker:    broker,
	}
}

// Emitter is the store+broker fan-out handed to components that audit.
func (a *App) Emitter() workspace.Emitter {
	return storeEmitter{store: a.store, broker: a.broker}
}

type storeEmitter struct {
	store  *composite.Store
	broker *events.Broker
}

func (e storeEmitter) Emit(ctx context.Context, ev types.Event) {
	_ = e.store.AppendEvent(ctx, ev)
	e.broker.Publish(ev)
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/files", a.createFiles)
		r.Put("/files", a.updateFiles)
		r.Delete("/files", a.deleteFiles)
		r.Post("/files/read", a.readFile)
		r.Post("/files/list", a.listFiles)

		r.Get("/backups", a.listBackups)
		r.Post("/backups/restore", a.restoreBackup)

		r.Post("/execute", a.execute)
		r.Post("/execute/stream", a.executeStream)
		r.Get("/commands/{id}/output", a.getOutputChunk)

		r.Post("/browser/{op}", a.browserOp)

		r.Get("/templates", a.listTemplates)
		r.Post("/templates/generate", a.generateTemplate)

		r.Post("/project/analyze", a.analyzeProject)
		r.Get("/project/meta", a.projectMeta)
		r.Post("/git/branch-workflow", a.branchWorkflow)

		r.Get("/system/health", a.systemHealth)

		r.Get("/events", a.streamEvents)
		r.Get("/events/ws", a.streamEventsWS)
		r.Get("/events/search", a.searchEvents)
	})

	return r
}
