package browser

import (
	"context"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
)

// ScreenshotOptions selects full page, viewport, or a selector-bounded
// element shot.
type ScreenshotOptions struct {
	FullPage bool
	Selector string
}

// Driver is the external headless-browser capability. The coordinator only
// consumes this interface; the chromedp implementation lives alongside it.
type Driver interface {
	// Start brings up one browser context and one page, and registers the
	// console sink for page logs, page errors, and failed requests.
	Start(ctx context.Context, onConsole func(types.ConsoleEntry)) error

	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, script string) (string, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	WaitFor(ctx context.Context, selector, state string, timeout time.Duration) error
	Content(ctx context.Context, format string) (string, error)

	Close() error
}
