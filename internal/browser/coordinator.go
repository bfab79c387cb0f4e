package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
)

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateClosed
)

// Coordinator serializes access to one shared browser page and owns the
// console-log ring. Operations implicitly bring the driver up; closing
// returns to the uninitialized state so a later call can start fresh.
type Coordinator struct {
	driver    Driver
	localPort int

	mu    sync.Mutex
	state state
	ring  *ring
}

func NewCoordinator(driver Driver, localPort int) *Coordinator {
	return &Coordinator{
		driver:    driver,
		localPort: localPort,
		ring:      newRing(ringCapacity),
	}
}

// ensureReadyLocked transitions uninitialized (or closed) to ready.
func (c *Coordinator) ensureReadyLocked(ctx context.Context) error {
	if c.state == stateReady {
		return nil
	}
	if err := c.driver.Start(ctx, c.ring.push); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	c.state = stateReady
	slog.Info("browser ready")
	return nil
}

func (c *Coordinator) Navigate(ctx context.Context, rawURL string) (*types.BrowserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}

	url := normalizeURL(rawURL, c.localPort)
	// Each navigation starts a fresh console capture.
	c.ring.clear()
	if err := c.driver.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	slog.Info("navigated", "url", url)
	return &types.BrowserResult{URL: url}, nil
}

func (c *Coordinator) Screenshot(ctx context.Context, opts ScreenshotOptions) (*types.BrowserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}
	shot, err := c.driver.Screenshot(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return &types.BrowserResult{Screenshot: shot}, nil
}

func (c *Coordinator) Evaluate(ctx context.Context, script string) (*types.BrowserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}
	v, err := c.driver.Evaluate(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return &types.BrowserResult{Value: v}, nil
}

func (c *Coordinator) Click(ctx context.Context, selector string) (*types.BrowserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}
	if err := c.driver.Click(ctx, selector); err != nil {
		return nil, fmt.Errorf("click %s: %w", selector, err)
	}
	return &types.BrowserResult{}, nil
}

func (c *Coordinator) Type(ctx context.Context, selector, text string) (*types.BrowserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}
	if err := c.driver.Type(ctx, selector, text); err != nil {
		return nil, fmt.Errorf("type into %s: %w", selector, err)
	}
	return &types.BrowserResult{}, nil
}

func (c *Coordinator) WaitFor(ctx context.Context, selector, state string, timeout time.Duration) (*types.BrowserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := c.driver.WaitFor(ctx, selector, state, timeout); err != nil {
		return nil, fmt.Errorf("wait for %s (%s): %w", selector, state, err)
	}
	return &types.BrowserResult{}, nil
}

func (c *Coordinator) Content(ctx context.Context, format string) (*types.BrowserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}
	s, err := c.driver.Content(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("page content: %w", err)
	}
	return &types.BrowserResult{Content: s}, nil
}

// ConsoleLogs reads (optionally drains) the ring. It never touches the
// driver, so logs stay readable after a driver error.
func (c *Coordinator) ConsoleLogs(filter string, drain bool) *types.BrowserResult {
	return &types.BrowserResult{Logs: c.ring.list(filter, drain)}
}

func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateReady {
		return nil
	}
	c.state = stateClosed
	if err := c.driver.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	slog.Info("browser closed")
	return nil
}
