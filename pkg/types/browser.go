package types

import "time"

// ConsoleEntry is one captured browser console record.
type ConsoleEntry struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
	Stack     string    `json:"stack,omitempty"`
}

type BrowserRequest struct {
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Script   string `json:"script,omitempty"`

	// Screenshot options.
	FullPage bool `json:"fullPage,omitempty"`

	// WaitFor options: visible | attached.
	State   string `json:"state,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// Content options: html | text.
	Format string `json:"format,omitempty"`

	// Log options.
	Filter string `json:"filter,omitempty"`
	Drain  bool   `json:"drain,omitempty"`
}

type BrowserResult struct {
	URL        string         `json:"url,omitempty"`
	Value      string         `json:"value,omitempty"`
	Screenshot []byte         `json:"screenshot,omitempty"`
	Content    string         `json:"content,omitempty"`
	Logs       []ConsoleEntry `json:"logs,omitempty"`
}
