package api

import (
	"net/http"

	"github.com/agentyard/agentyard/internal/browser"
	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/pkg/types"
	"github.com/go-chi/chi/v5"
)

func (a *App) browserOp(w http.ResponseWriter, r *http.Request) {
	if a.browser == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "browser support is disabled"})
		return
	}

	var req types.BrowserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	var res *types.BrowserResult
	var err error

	switch op := chi.URLParam(r, "op"); op {
	case "navigate":
		if req.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "url is required"})
			return
		}
		res, err = a.browser.Navigate(ctx, req.URL)
	case "screenshot":
		res, err = a.browser.Screenshot(ctx, browser.ScreenshotOptions{
			FullPage: req.FullPage,
			Selector: req.Selector,
		})
	case "evaluate":
		if req.Script == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "script is required"})
			return
		}
		res, err = a.browser.Evaluate(ctx, req.Script)
	case "click":
		res, err = a.browser.Click(ctx, req.Selector)
	case "type":
		res, err = a.browser.Type(ctx, req.Selector, req.Text)
	case "wait":
		res, err = a.browser.WaitFor(ctx, req.Selector, req.State, config.Duration(req.Timeout, 0))
	case "content":
		res, err = a.browser.Content(ctx, req.Format)
	case "logs":
		res = a.browser.ConsoleLogs(req.Filter, req.Drain)
	case "close":
		err = a.browser.Close()
		res = &types.BrowserResult{}
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown browser operation " + op})
		return
	}

	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "kind": "BrowserError"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
