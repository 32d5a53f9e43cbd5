// Package api provides the HTTP client the TUI uses to talk to the
// honeytrap backend.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client handles API communication with the honeytrap backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Stats mirrors the backend's GET /api/stats response, augmented with
// health info so the dashboard needs a single fetch.
type Stats struct {
	ActiveSessions     int     `json:"activeSessions"`
	TurnsTotal         uint64  `json:"turnsTotal"`
	TurnsFailed        uint64  `json:"turnsFailed"`
	ScamTurns          uint64  `json:"scamTurns"`
	ReportsDelivered   uint64  `json:"reportsDelivered"`
	TrackedIdentifiers int     `json:"trackedIdentifiers"`
	UptimeSeconds      int     `json:"uptimeSeconds"`
	TurnsPerMinute     float64 `json:"turnsPerMinute"`

	Healthy      bool
	Uptime       string
	StatusReason string
}

// SessionSummary mirrors one entry of GET /api/sessions.
type SessionSummary struct {
	SessionID      string    `json:"sessionId"`
	State          string    `json:"state"`
	MessageCount   int       `json:"messageCount"`
	ScamDetected   bool      `json:"scamDetected"`
	ScamConfidence float64   `json:"scamConfidence"`
	ScamType       string    `json:"scamType"`
	AgentActivated bool      `json:"agentActivated"`
	Reported       bool      `json:"reported"`
	LastActivity   time.Time `json:"lastActivity"`
	HasIntel       bool      `json:"hasIntelligence"`
}

// SessionsResponse is the GET /api/sessions body.
type SessionsResponse struct {
	Count    int              `json:"count"`
	Sessions []SessionSummary `json:"sessions"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	UptimeSeconds  int    `json:"uptime_seconds"`
}

// NewClient creates a new API client. apiKey may be empty when the
// backend runs without auth.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetHealth fetches health status.
func (c *Client) GetHealth() (*HealthResponse, error) {
	var health HealthResponse
	if err := c.get("/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetStats fetches combined stats for the dashboard.
func (c *Client) GetStats() (*Stats, error) {
	stats := &Stats{
		Healthy:      false,
		StatusReason: "Unable to connect to backend",
	}

	health, err := c.GetHealth()
	if err != nil {
		stats.StatusReason = err.Error()
		return stats, nil
	}
	stats.Healthy = health.Status == "healthy"
	stats.ActiveSessions = health.ActiveSessions
	stats.UptimeSeconds = health.UptimeSeconds

	var aggregate Stats
	if err := c.get("/api/stats", &aggregate); err == nil {
		stats.ActiveSessions = aggregate.ActiveSessions
		stats.TurnsTotal = aggregate.TurnsTotal
		stats.TurnsFailed = aggregate.TurnsFailed
		stats.ScamTurns = aggregate.ScamTurns
		stats.ReportsDelivered = aggregate.ReportsDelivered
		stats.TrackedIdentifiers = aggregate.TrackedIdentifiers
		stats.UptimeSeconds = aggregate.UptimeSeconds
		stats.TurnsPerMinute = aggregate.TurnsPerMinute
	}

	stats.Uptime = formatUptime(stats.UptimeSeconds)
	if stats.Healthy {
		stats.StatusReason = "All systems operational"
	}
	return stats, nil
}

// GetSessions fetches the most recently active sessions.
func (c *Client) GetSessions(limit int) (*SessionsResponse, error) {
	var resp SessionsResponse
	if err := c.get(fmt.Sprintf("/api/sessions?limit=%d", limit), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func formatUptime(seconds int) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
