package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserManager owns one lazily-launched headless Chrome instance, shared
// by every browser_use tool call across every agent (the scheduler's
// LaneBrowser lane already serializes access, so one instance is enough).
type BrowserManager struct {
	headless bool

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// BrowserOption configures a BrowserManager at construction.
type BrowserOption func(*BrowserManager)

// WithHeadless toggles headless mode (default true).
func WithHeadless(headless bool) BrowserOption {
	return func(m *BrowserManager) { m.headless = headless }
}

// NewBrowserManager creates a manager that launches Chrome on first use.
func NewBrowserManager(opts ...BrowserOption) *BrowserManager {
	m := &BrowserManager{headless: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *BrowserManager) ensure() (*rod.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil && m.page != nil {
		return m.page, nil
	}

	u, err := launcher.New().Headless(m.headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	m.browser = b
	m.page = page
	return page, nil
}

// Close releases the underlying browser process, if one was launched.
func (m *BrowserManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
		m.page = nil
	}
}

// BrowserTool drives the shared headless browser for simple navigate/click/
// type/read/screenshot sequences, mirroring the agent harness's own
// WebBrowser tool shape so the model's existing browsing habits transfer.
type BrowserTool struct {
	mgr *BrowserManager
}

// NewBrowserTool wraps mgr as an agent-callable tool.
func NewBrowserTool(mgr *BrowserManager) *BrowserTool {
	return &BrowserTool{mgr: mgr}
}

func (t *BrowserTool) Name() string { return "browser_use" }

func (t *BrowserTool) Description() string {
	return "Controls a headless browser: navigate to a URL, click an element, type text, read visible text, or take a screenshot."
}

func (t *BrowserTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"navigate", "click", "type", "read_text", "screenshot"},
				"description": "What to do with the browser.",
			},
			"url":      map[string]interface{}{"type": "string", "description": "URL for the navigate action."},
			"selector": map[string]interface{}{"type": "string", "description": "CSS selector for click/type."},
			"text":     map[string]interface{}{"type": "string", "description": "Text to type for the type action."},
		},
		"required": []string{"action"},
	}
}

func (t *BrowserTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)

	page, err := t.mgr.ensure()
	if err != nil {
		return &Result{ForLLM: "browser unavailable: " + err.Error(), IsError: true, Err: err}
	}

	switch action {
	case "navigate":
		url, _ := args["url"].(string)
		if url == "" {
			return &Result{ForLLM: "url is required for navigate", IsError: true}
		}
		if err := page.Navigate(url); err != nil {
			return &Result{ForLLM: "navigate failed: " + err.Error(), IsError: true, Err: err}
		}
		page.WaitLoad()
		return &Result{ForLLM: "navigated to " + url}

	case "click":
		selector, _ := args["selector"].(string)
		el, err := page.Element(selector)
		if err != nil {
			return &Result{ForLLM: "element not found: " + selector, IsError: true, Err: err}
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return &Result{ForLLM: "click failed: " + err.Error(), IsError: true, Err: err}
		}
		return &Result{ForLLM: "clicked " + selector}

	case "type":
		selector, _ := args["selector"].(string)
		text, _ := args["text"].(string)
		el, err := page.Element(selector)
		if err != nil {
			return &Result{ForLLM: "element not found: " + selector, IsError: true, Err: err}
		}
		if err := el.Input(text); err != nil {
			return &Result{ForLLM: "type failed: " + err.Error(), IsError: true, Err: err}
		}
		return &Result{ForLLM: "typed into " + selector}

	case "read_text":
		body, err := page.Element("body")
		if err != nil {
			return &Result{ForLLM: "page has no body", IsError: true, Err: err}
		}
		text, err := body.Text()
		if err != nil {
			return &Result{ForLLM: "read failed: " + err.Error(), IsError: true, Err: err}
		}
		if len(text) > 20000 {
			text = text[:20000] + "\n...(truncated)"
		}
		return &Result{ForLLM: text}

	case "screenshot":
		data, err := page.Screenshot(false, nil)
		if err != nil {
			return &Result{ForLLM: "screenshot failed: " + err.Error(), IsError: true, Err: err}
		}
		return &Result{ForLLM: fmt.Sprintf("captured screenshot (%d bytes)", len(data))}

	default:
		return &Result{ForLLM: "unknown action: " + action, IsError: true}
	}
}
