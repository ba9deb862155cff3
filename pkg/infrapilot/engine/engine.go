// Package engine implements the reasoning-engine client: a thread/run API
// in the OpenAI Assistants v2 format. Each chat owns one thread (its
// conversation handle); a turn appends a message, starts a run, and waits
// for the run to reach a terminal status before reading the reply.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for the two bounded waits, checked with errors.Is.
var (
	// ErrRunTimeout means a run did not reach a terminal status within the
	// configured ceiling. The caller substitutes a timeout notice for the
	// reply rather than failing the turn.
	ErrRunTimeout = errors.New("engine run timed out")

	// ErrIdleTimeout means a previously active run on the thread never
	// cleared within the ceiling. This aborts the turn.
	ErrIdleTimeout = errors.New("engine thread did not become idle")
)

// ---------- Client ----------

// Config holds engine client configuration.
type Config struct {
	// BaseURL is the API endpoint. Defaults to the OpenAI API.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests. Loaded from env/keyring, not YAML.
	APIKey string `yaml:"-"`

	// AssistantID identifies the pre-provisioned assistant runs execute
	// against.
	AssistantID string `yaml:"assistant_id"`

	// RunTimeout bounds both the wait-for-idle and the run-completion
	// polls. Zero means 60s.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// PollInterval is the delay between status checks. Zero means 2s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxMessageLen is the per-message submission limit in characters.
	// Longer content is split into sequential sub-messages. Zero means
	// 256000.
	MaxMessageLen int `yaml:"max_message_len"`
}

// Client talks to the thread/run API.
type Client struct {
	baseURL     string
	apiKey      string
	assistantID string

	runTimeout    time.Duration
	pollInterval  time.Duration
	maxMessageLen int

	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an engine client from config.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 60 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxLen := cfg.MaxMessageLen
	if maxLen <= 0 {
		maxLen = 256000
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        cfg.APIKey,
		assistantID:   cfg.AssistantID,
		runTimeout:    runTimeout,
		pollInterval:  pollInterval,
		maxMessageLen: maxLen,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger.With("component", "engine"),
	}
}

// ---------- Wire Types (Assistants v2) ----------

type apiThread struct {
	ID string `json:"id"`
}

type apiRun struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiRunList struct {
	Data []apiRun `json:"data"`
}

type apiMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

type apiMessageList struct {
	Data []apiMessage `json:"data"`
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ---------- Threads ----------

// CreateThread allocates a fresh conversation handle.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var thread apiThread
	if err := c.call(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	c.logger.Info("thread created", "thread_id", thread.ID)
	return thread.ID, nil
}

// AddMessage appends a user message to the thread. Content above the
// submission limit is split into sequential sub-messages, in order, before
// any run is started.
func (c *Client) AddMessage(ctx context.Context, threadID, content string) error {
	for _, part := range splitSubmission(content, c.maxMessageLen) {
		body := map[string]any{
			"role":    "user",
			"content": part,
		}
		var msg apiMessage
		if err := c.call(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, &msg); err != nil {
			return fmt.Errorf("adding message: %w", err)
		}
	}
	return nil
}

// ---------- Runs ----------

// CreateRun starts a run of the configured assistant on the thread.
func (c *Client) CreateRun(ctx context.Context, threadID string) (string, error) {
	body := map[string]any{
		"assistant_id": c.assistantID,
	}
	var run apiRun
	if err := c.call(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	c.logger.Debug("run created", "thread_id", threadID, "run_id", run.ID)
	return run.ID, nil
}

// WaitForRun blocks until the run reaches a terminal status or the timeout
// ceiling elapses. A run that completes returns nil; a run that ends in any
// other terminal status returns a descriptive error; the ceiling returns
// ErrRunTimeout.
func (c *Client) WaitForRun(ctx context.Context, threadID, runID string) error {
	deadline := time.Now().Add(c.runTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var run apiRun
		if err := c.call(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
			return fmt.Errorf("polling run: %w", err)
		}

		switch run.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired", "incomplete":
			return fmt.Errorf("run %s ended with status %q", runID, run.Status)
		}

		if time.Now().After(deadline) {
			c.logger.Warn("run timed out", "thread_id", threadID, "run_id", runID, "status", run.Status)
			return ErrRunTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitIdle blocks until no run is active on the thread, so a new submission
// cannot interleave with one still in flight. Exceeding the ceiling returns
// ErrIdleTimeout, which is fatal for the turn.
func (c *Client) WaitIdle(ctx context.Context, threadID string) error {
	deadline := time.Now().Add(c.runTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var list apiRunList
		path := "/threads/" + threadID + "/runs?" + url.Values{"limit": {"5"}}.Encode()
		if err := c.call(ctx, http.MethodGet, path, nil, &list); err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		active := false
		for _, run := range list.Data {
			switch run.Status {
			case "queued", "in_progress", "requires_action", "cancelling":
				active = true
			}
		}
		if !active {
			return nil
		}

		if time.Now().After(deadline) {
			c.logger.Warn("thread never became idle", "thread_id", threadID)
			return ErrIdleTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ---------- Messages ----------

// LatestAssistantReply fetches the most recent assistant-authored message in
// the thread and concatenates its text segments in order.
func (c *Client) LatestAssistantReply(ctx context.Context, threadID string) (string, error) {
	path := "/threads/" + threadID + "/messages?" + url.Values{
		"order": {"desc"},
		"limit": {"20"},
	}.Encode()

	var list apiMessageList
	if err := c.call(ctx, http.MethodGet, path, nil, &list); err != nil {
		return "", fmt.Errorf("listing messages: %w", err)
	}

	for _, msg := range list.Data {
		if msg.Role != "assistant" {
			continue
		}
		var sb strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text.Value)
			}
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("no assistant message in thread %s", threadID)
}

// ---------- Transport ----------

// call performs one API request and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("API key not configured. Run 'infrapilot config set-key' or set INFRAPILOT_API_KEY")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != nil {
			return fmt.Errorf("API returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// splitSubmission splits content into rune-safe pieces of at most limit
// characters. Boundaries are positional, not semantic.
func splitSubmission(content string, limit int) []string {
	runes := []rune(content)
	if len(runes) <= limit {
		return []string{content}
	}
	parts := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
