// Package report builds final session reports and delivers them to the
// external intake endpoint.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"honeytrap/internal/schema"
)

// Payload is the wire format delivered to the intake endpoint.
type Payload struct {
	SessionID              string               `json:"sessionId"`
	ScamDetected           bool                 `json:"scamDetected"`
	ScamType               string               `json:"scamType,omitempty"`
	Confidence             float64              `json:"confidence"`
	TotalMessagesExchanged int                  `json:"totalMessagesExchanged"`
	ExtractedIntelligence  IntelligenceSummary  `json:"extractedIntelligence"`
	AgentNotes             string               `json:"agentNotes"`
	SessionDuration        string               `json:"sessionDuration,omitempty"`
	ReportedAt             time.Time            `json:"reportedAt"`
	Full                   *schema.Intelligence `json:"fullIntelligence,omitempty"`
}

// IntelligenceSummary is the flat indicator view intake systems consume.
type IntelligenceSummary struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Config configures report delivery.
type Config struct {
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	IncludeFull bool          `yaml:"include_full"`
}

// DefaultConfig returns delivery defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
		Timeout:     10 * time.Second,
		IncludeFull: true,
	}
}

// Sink receives a successfully delivered payload. Used to fan reports out
// to secondary consumers after the primary delivery succeeds.
type Sink interface {
	Publish(ctx context.Context, p *Payload) error
}

// Dispatcher posts session reports with fixed-delay retries. A fully failed
// dispatch returns an error and the caller leaves the session unreported so
// a later turn revisits delivery.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a report dispatcher. Extra sinks are optional.
func NewDispatcher(cfg Config, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sinks:  sinks,
		logger: logger.With("component", "report"),
	}
}

// Report builds the payload and delivers it. Implements engagement.Reporter.
func (d *Dispatcher) Report(ctx context.Context, sess *schema.Session) error {
	payload := d.BuildPayload(sess)

	if d.cfg.Endpoint == "" {
		// No intake configured: log the report and treat it as delivered
		// so sessions still finalize in development setups.
		d.logger.Info("no intake endpoint configured, report logged only",
			"session_id", sess.ID, "scam_type", sess.ScamType)
		d.fanOut(ctx, payload)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.deliver(ctx, payload)
		if err == nil {
			d.logger.Info("report delivered",
				"session_id", sess.ID, "attempt", attempt)
			d.fanOut(ctx, payload)
			return nil
		}
		lastErr = err
		d.logger.Warn("report delivery attempt failed",
			"session_id", sess.ID,
			"attempt", attempt,
			"max_attempts", d.cfg.MaxAttempts,
			"error", err)
		if attempt < d.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.RetryDelay):
			}
		}
	}
	return fmt.Errorf("report: delivery failed after %d attempts: %w", d.cfg.MaxAttempts, lastErr)
}

func (d *Dispatcher) deliver(ctx context.Context, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("report: marshal payload: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("report: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", d.cfg.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("report: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report: intake returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) fanOut(ctx context.Context, payload *Payload) {
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, payload); err != nil {
			d.logger.Warn("report sink publish failed",
				"session_id", payload.SessionID, "error", err)
		}
	}
}

// BuildPayload assembles the intake payload from a finalized session.
func (d *Dispatcher) BuildPayload(sess *schema.Session) *Payload {
	intel := sess.Intelligence
	if intel == nil {
		intel = schema.EmptyIntelligence()
	}

	p := &Payload{
		SessionID:              sess.ID,
		ScamDetected:           sess.ScamDetected,
		ScamType:               sess.ScamType,
		Confidence:             sess.ScamConfidence,
		TotalMessagesExchanged: sess.MessageCount,
		ExtractedIntelligence: IntelligenceSummary{
			BankAccounts:       orEmpty(intel.Financial.BankAccounts),
			UPIIDs:             orEmpty(intel.Financial.UPIIDs),
			PhishingLinks:      orEmpty(intel.DigitalAssets.PhishingLinks),
			PhoneNumbers:       orEmpty(intel.Contact.PhoneNumbers),
			SuspiciousKeywords: orEmpty(intel.SuspiciousKeywords),
		},
		AgentNotes:      GenerateAgentNotes(sess, intel),
		SessionDuration: sess.UpdatedAt.Sub(sess.CreatedAt).Round(time.Second).String(),
		ReportedAt:      time.Now().UTC(),
	}
	if d.cfg.IncludeFull {
		p.Full = intel
	}
	return p
}

// GenerateAgentNotes summarizes the engagement as pipe-joined observations.
func GenerateAgentNotes(sess *schema.Session, intel *schema.Intelligence) string {
	var notes []string

	if sess.ScamType != "" && sess.ScamType != "unknown" {
		notes = append(notes, fmt.Sprintf("Identified scam type: %s (confidence %.0f%%)",
			sess.ScamType, sess.ScamConfidence*100))
	}
	if len(sess.Indicators) > 0 {
		notes = append(notes, "Indicators observed: "+strings.Join(sess.Indicators, ", "))
	}
	if n := len(intel.Financial.BankAccounts); n > 0 {
		notes = append(notes, fmt.Sprintf("Extracted %d bank account(s)", n))
	}
	if n := len(intel.Financial.UPIIDs); n > 0 {
		notes = append(notes, fmt.Sprintf("Extracted %d UPI ID(s)", n))
	}
	if n := len(intel.Contact.PhoneNumbers); n > 0 {
		notes = append(notes, fmt.Sprintf("Extracted %d phone number(s)", n))
	}
	if n := len(intel.DigitalAssets.PhishingLinks); n > 0 {
		notes = append(notes, fmt.Sprintf("Captured %d phishing link(s)", n))
	}
	if intel.Behavioral.SophisticationLevel != "" && intel.Behavioral.SophisticationLevel != "unknown" {
		notes = append(notes, "Sophistication: "+intel.Behavioral.SophisticationLevel)
	}
	if intel.Summary != "" {
		notes = append(notes, intel.Summary)
	}
	notes = append(notes, fmt.Sprintf("Engaged for %d messages", sess.MessageCount))

	return strings.Join(notes, " | ")
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
