package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromeDriver drives a headless Chrome through the DevTools protocol.
type ChromeDriver struct {
	headless bool

	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	browserCtx    context.Context
}

func NewChromeDriver(headless bool) *ChromeDriver {
	return &ChromeDriver{headless: headless}
}

func (d *ChromeDriver) Start(ctx context.Context, onConsole func(types.ConsoleEntry)) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.headless),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	chromedp.ListenTarget(browserCtx, func(ev any) {
		if onConsole == nil {
			return
		}
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			var parts []string
			for _, arg := range e.Args {
				parts = append(parts, remoteObjectText(arg))
			}
			onConsole(types.ConsoleEntry{
				Type:      string(e.Type),
				Text:      strings.Join(parts, " "),
				Timestamp: time.Now().UTC(),
			})
		case *runtime.EventExceptionThrown:
			entry := types.ConsoleEntry{
				Type:      "error",
				Text:      e.ExceptionDetails.Text,
				Timestamp: time.Now().UTC(),
				Location:  fmt.Sprintf("%s:%d", e.ExceptionDetails.URL, e.ExceptionDetails.LineNumber),
			}
			if exc := e.ExceptionDetails.Exception; exc != nil && exc.Description != "" {
				entry.Text = exc.Description
			}
			onConsole(entry)
		case *network.EventLoadingFailed:
			onConsole(types.ConsoleEntry{
				Type:      "requestfailed",
				Text:      e.ErrorText,
				Timestamp: time.Now().UTC(),
			})
		}
	})

	// Run with no actions launches the browser process and first page.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("launch chrome: %w", err)
	}

	d.cancelAlloc = cancelAlloc
	d.cancelBrowser = cancelBrowser
	d.browserCtx = browserCtx
	return nil
}

func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if len(obj.Value) > 0 {
		var v any
		if err := json.Unmarshal(obj.Value, &v); err == nil {
			return fmt.Sprintf("%v", v)
		}
		return string(obj.Value)
	}
	return obj.Description
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(d.browserCtx, chromedp.Navigate(url))
}

func (d *ChromeDriver) Evaluate(ctx context.Context, script string) (string, error) {
	var raw json.RawMessage
	if err := chromedp.Run(d.browserCtx, chromedp.Evaluate(script, &raw)); err != nil {
		return "", err
	}
	return string(raw), nil
}

func (d *ChromeDriver) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	switch {
	case opts.Selector != "":
		action = chromedp.Screenshot(opts.Selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)
	case opts.FullPage:
		action = chromedp.FullScreenshot(&buf, 90)
	default:
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := chromedp.Run(d.browserCtx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return chromedp.Run(d.browserCtx, chromedp.Click(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Type(ctx context.Context, selector, text string) error {
	return chromedp.Run(d.browserCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (d *ChromeDriver) WaitFor(ctx context.Context, selector, state string, timeout time.Duration) error {
	var action chromedp.Action
	switch state {
	case "attached":
		action = chromedp.WaitReady(selector, chromedp.ByQuery)
	default: // visible
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}
	tctx, cancel := context.WithTimeout(d.browserCtx, timeout)
	defer cancel()
	return chromedp.Run(tctx, action)
}

func (d *ChromeDriver) Content(ctx context.Context, format string) (string, error) {
	var s string
	var action chromedp.Action
	if strings.EqualFold(format, "text") {
		action = chromedp.Text("body", &s, chromedp.ByQuery)
	} else {
		action = chromedp.OuterHTML("html", &s, chromedp.ByQuery)
	}
	if err := chromedp.Run(d.browserCtx, action); err != nil {
		return "", err
	}
	return s, nil
}

func (d *ChromeDriver) Close() error {
	if d.cancelBrowser != nil {
		d.cancelBrowser()
	}
	if d.cancelAlloc != nil {
		d.cancelAlloc()
	}
	d.browserCtx = nil
	d.cancelBrowser = nil
	d.cancelAlloc = nil
	return nil
}
