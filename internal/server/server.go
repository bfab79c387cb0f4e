package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentyard/agentyard/internal/api"
	"github.com/agentyard/agentyard/internal/backup"
	"github.com/agentyard/agentyard/internal/browser"
	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/events"
	"github.com/agentyard/agentyard/internal/executor"
	"github.com/agentyard/agentyard/internal/gitops"
	"github.com/agentyard/agentyard/internal/policy"
	"github.com/agentyard/agentyard/internal/project"
	"github.com/agentyard/agentyard/internal/scaffold"
	storepkg "github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/store/composite"
	"github.com/agentyard/agentyard/internal/store/jsonl"
	"github.com/agentyard/agentyard/internal/store/sqlite"
	"github.com/agentyard/agentyard/internal/store/webhook"
	"github.com/agentyard/agentyard/internal/workspace"
	"github.com/agentyard/agentyard/pkg/types"
)

// Server assembles the control plane and owns its lifecycle.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	ln         net.Listener

	store    *composite.Store
	broker   *events.Broker
	policies *policy.Manager
	browser  *browser.Coordinator

	watchCancel context.CancelFunc
}

type serverEmitter struct {
	store  *composite.Store
	broker *events.Broker
}

func (e serverEmitter) Emit(ctx context.Context, ev types.Event) {
	_ = e.store.AppendEvent(ctx, ev)
	e.broker.Publish(ev)
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	root := cfg.Workspace.Root

	policies, err := policy.NewManager(root, cfg.Policy.File)
	if err != nil {
		return nil, err
	}

	backups, err := backup.New(cfg.BackupPath(), cfg.Workspace.BackupRetention)
	if err != nil {
		return nil, err
	}

	sqlitePath := cfg.Audit.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.BackupPath(), "events.db")
	}
	db, err := sqlite.Open(sqlitePath)
	if err != nil {
		return nil, err
	}

	var sinks []storepkg.EventStore
	if cfg.Audit.JSONL.Path != "" {
		js, err := jsonl.New(cfg.Audit.JSONL.Path, cfg.Audit.JSONL.MaxSizeMB, cfg.Audit.JSONL.MaxBackups)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		sinks = append(sinks, js)
	}
	if cfg.Audit.Webhook.URL != "" {
		wh, err := webhook.New(
			cfg.Audit.Webhook.URL,
			cfg.Audit.Webhook.BatchSize,
			config.Duration(cfg.Audit.Webhook.FlushInterval, 10*time.Second),
			config.Duration(cfg.Audit.Webhook.Timeout, 5*time.Second),
			cfg.Audit.Webhook.Headers,
		)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		sinks = append(sinks, wh)
	}
	store := composite.New(db, db, sinks...)
	broker := events.NewBroker()
	emitter := serverEmitter{store: store, broker: broker}

	maxFileSize, err := config.ParseByteSize(cfg.Workspace.MaxFileSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("parse workspace.max_file_size: %w", err)
	}
	ops := workspace.NewOps(policies, backups, maxFileSize, cfg.Workspace.MaxBulkFiles, emitter)

	maxOutput, err := config.ParseByteSize(cfg.Executor.MaxOutputSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("parse executor.max_output_size: %w", err)
	}
	exec := executor.New(root, executor.Options{
		DefaultTimeout:    config.Duration(cfg.Executor.DefaultTimeout, 30*time.Second),
		LongTimeout:       config.Duration(cfg.Executor.LongTimeout, 5*time.Minute),
		TermGrace:         config.Duration(cfg.Executor.TermGrace, 5*time.Second),
		KeepaliveInterval: config.Duration(cfg.Executor.KeepaliveInterval, 10*time.Second),
		PostCommandDelay:  config.Duration(cfg.Executor.PostCommandDelay, 5*time.Second),
		MaxOutputBytes:    maxOutput,
		EnvAllow:          cfg.Executor.EnvAllow,
		EnvPrefix:         cfg.Executor.EnvPrefix,
	})

	var coordinator *browser.Coordinator
	if cfg.Browser.Enabled {
		driver := browser.NewChromeDriver(cfg.Browser.Headless)
		coordinator = browser.NewCoordinator(driver, cfg.Browser.LocalPort)
	}

	generator, err := scaffold.NewGenerator(ops)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	inspector := project.NewInspector(root)
	gitflow := gitops.New(exec, ops)

	app := api.NewApp(cfg, policies, ops, backups, exec, coordinator, generator, inspector, gitflow, store, broker)

	maxReqBytes, err := config.ParseByteSize(cfg.Server.MaxRequestSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("parse server.max_request_size: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           withRequestBodyLimit(app.Router(), maxReqBytes),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       config.Duration(cfg.Server.ReadTimeout, 30*time.Second),
		WriteTimeout:      config.Duration(cfg.Server.WriteTimeout, 10*time.Minute),
	}

	return &Server{
		cfg:        cfg,
		httpServer: httpServer,
		store:      store,
		broker:     broker,
		policies:   policies,
		browser:    coordinator,
	}, nil
}

func withRequestBodyLimit(next http.Handler, maxBytes int64) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled or SIGTERM/SIGINT arrives, then drains
// connections, closes the audit stores, and shuts the browser down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.ln = ln

	if s.cfg.Policy.HotReload && s.cfg.Policy.File != "" {
		wctx, cancel := context.WithCancel(ctx)
		s.watchCancel = cancel
		go func() {
			if err := s.policies.Watch(wctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("policy watch stopped", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", ln.Addr().String(), "workspace", s.cfg.Workspace.Root)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		s.close()
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	s.close()
	return nil
}

func (s *Server) close() {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			slog.Warn("browser close", "err", err)
		}
	}
	if err := s.store.Close(); err != nil {
		slog.Warn("store close", "err", err)
	}
}

// Addr returns the bound listen address, useful once Run has started.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.httpServer.Addr
}
