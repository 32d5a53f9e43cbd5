package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"honeytrap/internal/schema"
)

// ClientConfig holds configuration for the LLM gateway client. Any endpoint
// speaking the OpenAI-compatible chat-completions protocol works.
type ClientConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
}

// DefaultClientConfig returns the default gateway client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:     "http://localhost:11434/v1",
		Model:       "gpt-4o-mini",
		Timeout:     30 * time.Second,
		MaxTokens:   1024,
		Temperature: 0.8,
	}
}

// Client implements Classifier, Responder, Advisor and Extractor over one
// chat-completions endpoint, prompted per role.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a new LLM gateway client.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gateway: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// chat performs one completion round trip and returns the raw reply text.
func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("gateway: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway: endpoint returned %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", fmt.Errorf("gateway: decode response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("gateway: %s: %s", cr.Error.Type, cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("gateway: empty completion")
	}

	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// Classify implements Classifier.
func (c *Client) Classify(ctx context.Context, msg schema.Message, history []schema.Message) (*schema.Verdict, error) {
	user := fmt.Sprintf("CONVERSATION HISTORY:\n%s\n\nCURRENT MESSAGE TO ANALYZE:\nSender: %s\nText: %s\n\nRespond with the JSON object only.",
		formatHistory(history), msg.Sender, msg.Text)

	raw, err := c.chat(ctx, classificationPrompt, user)
	if err != nil {
		return nil, err
	}

	var verdict schema.Verdict
	if err := decodeJSONBlock(raw, &verdict); err != nil {
		return nil, fmt.Errorf("gateway: classification verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("gateway: confidence out of range: %v", verdict.Confidence)
	}
	return &verdict, nil
}

// Reply implements Responder.
func (c *Client) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SCAM TYPE DETECTED: %s\n", orUnknown(req.ScamType))
	fmt.Fprintf(&b, "PERSONA GUIDANCE: %s\n", personaGuidance(req.ScamType))
	fmt.Fprintf(&b, "CONVERSATION STAGE: %s\n%s\n", req.Stage, stageInstructions(req.Stage))
	fmt.Fprintf(&b, "CHANNEL: %s, LANGUAGE: %s, LOCALE: %s\n",
		metaOr(req.Metadata, "channel", "SMS"),
		metaOr(req.Metadata, "language", "English"),
		metaOr(req.Metadata, "locale", "IN"))

	if len(req.RecentReplies) > 0 {
		b.WriteString("\nYOUR RECENT REPLIES (do NOT repeat any of these):\n")
		for _, r := range req.RecentReplies {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	fmt.Fprintf(&b, "\nCONVERSATION HISTORY:\n%s\n", formatHistory(req.History))
	fmt.Fprintf(&b, "\nSCAMMER'S LATEST MESSAGE: %q\n", req.Message.Text)
	b.WriteString("\nRespond with the reply text only. No quotes, no labels.")

	raw, err := c.chat(ctx, decoyPrompt, b.String())
	if err != nil {
		return "", err
	}

	return cleanReply(raw), nil
}

// Advise implements Advisor.
func (c *Client) Advise(ctx context.Context, history []schema.Message, messageCount int, intelSummary string) (*schema.Continuation, error) {
	user := fmt.Sprintf("INTELLIGENCE EXTRACTED SO FAR: %s\n\nCONVERSATION (%d messages exchanged):\n%s\n\nRespond with the JSON object only.",
		orUnknown(intelSummary), messageCount, formatHistory(history))

	raw, err := c.chat(ctx, continuationPrompt, user)
	if err != nil {
		return nil, err
	}

	var dec schema.Continuation
	if err := decodeJSONBlock(raw, &dec); err != nil {
		return nil, fmt.Errorf("gateway: continuation decision: %w", err)
	}
	return &dec, nil
}

// Extract implements Extractor.
func (c *Client) Extract(ctx context.Context, history []schema.Message, metadata map[string]string) (*schema.Intelligence, error) {
	user := fmt.Sprintf("DETECTED SCAM TYPE: %s\nCHANNEL: %s\nMESSAGE COUNT: %d\n\nCOMPLETE CONVERSATION:\n%s\n\nRespond with the JSON object only.",
		metaOr(metadata, "scamType", "unknown"),
		metaOr(metadata, "channel", "unknown"),
		len(history), formatHistory(history))

	raw, err := c.chat(ctx, extractionPrompt, user)
	if err != nil {
		return nil, err
	}

	intel := schema.EmptyIntelligence()
	if err := decodeJSONBlock(raw, intel); err != nil {
		return nil, fmt.Errorf("gateway: intelligence record: %w", err)
	}
	intel.ExtractedAt = time.Now().UTC()
	return intel, nil
}

// formatHistory renders a transcript for prompting.
func formatHistory(history []schema.Message) string {
	if len(history) == 0 {
		return "No previous conversation."
	}

	var b strings.Builder
	for _, msg := range history {
		who := "Scammer"
		if msg.Sender == schema.SenderHoneypot {
			who = "You (Honeypot)"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, msg.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// cleanReply strips quoting and role prefixes that models occasionally add.
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, `'`} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[1 : len(s)-1]
		}
	}
	for _, prefix := range []string{"honeypot:", "victim:", "response:", "reply:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}

func metaOr(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return fallback
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
