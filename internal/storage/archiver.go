package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"honeytrap/internal/schema"
)

// ArchiverConfig holds configuration for the session archiver.
type ArchiverConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultArchiverConfig returns the default archiver configuration.
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Second,
	}
}

// Archiver buffers finalized sessions and writes them to ClickHouse in
// batches. A flush writes the session row, its transcript and, when
// present, the extracted intelligence.
type Archiver struct {
	client *ClickHouseClient
	config ArchiverConfig

	buffer []*schema.Session
	mu     sync.Mutex

	flushTimer *time.Timer
	closed     bool

	totalWritten uint64
	totalFailed  uint64
	batchCount   uint64
}

// NewArchiver creates an Archiver and starts its flush timer.
func NewArchiver(client *ClickHouseClient, cfg ArchiverConfig) *Archiver {
	a := &Archiver{
		client: client,
		config: cfg,
		buffer: make([]*schema.Session, 0, cfg.BatchSize),
	}
	a.flushTimer = time.AfterFunc(cfg.FlushInterval, a.timerFlush)
	return a
}

// Archive queues a finalized session for archival.
func (a *Archiver) Archive(sess *schema.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	a.buffer = append(a.buffer, sess)
	if len(a.buffer) >= a.config.BatchSize {
		return a.flushLocked()
	}
	return nil
}

func (a *Archiver) timerFlush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	if len(a.buffer) > 0 {
		if err := a.flushLocked(); err != nil {
			slog.Error("archive flush failed", "error", err)
		}
	}
	a.flushTimer.Reset(a.config.FlushInterval)
}

// flushLocked flushes the buffer. Caller must hold the lock.
func (a *Archiver) flushLocked() error {
	if len(a.buffer) == 0 {
		return nil
	}

	sessions := a.buffer
	a.buffer = make([]*schema.Session, 0, a.config.BatchSize)

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(a.config.RetryDelay * time.Duration(attempt))
		}

		if err := a.insertBatch(sessions); err != nil {
			lastErr = err
			slog.Warn("archive batch insert failed, retrying",
				"attempt", attempt+1,
				"max_retries", a.config.MaxRetries,
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&a.totalWritten, uint64(len(sessions)))
		atomic.AddUint64(&a.batchCount, 1)
		return nil
	}

	atomic.AddUint64(&a.totalFailed, uint64(len(sessions)))
	return fmt.Errorf("%w: after %d retries: %v", ErrBatchInsertFailed, a.config.MaxRetries, lastErr)
}

func (a *Archiver) insertBatch(sessions []*schema.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.insertSessions(ctx, sessions); err != nil {
		return err
	}
	if err := a.insertMessages(ctx, sessions); err != nil {
		return err
	}
	if err := a.insertIntelligence(ctx, sessions); err != nil {
		return err
	}

	slog.Debug("archive batch inserted", "sessions", len(sessions))
	return nil
}

func (a *Archiver) insertSessions(ctx context.Context, sessions []*schema.Session) error {
	batch, err := a.client.PrepareBatch(ctx, `
		INSERT INTO sessions (
			session_id, created_at, updated_at, message_count,
			scam_detected, scam_confidence, scam_type, indicators,
			agent_activated, state, reported, reported_at, metadata
		)
	`)
	if err != nil {
		return NewStorageError("PrepareBatch", "sessions", err)
	}

	for _, sess := range sessions {
		metadata, _ := json.Marshal(sess.Metadata)
		err := batch.Append(
			sess.ID,
			sess.CreatedAt,
			sess.UpdatedAt,
			uint32(sess.MessageCount),
			boolToUInt8(sess.ScamDetected),
			sess.ScamConfidence,
			sess.ScamType,
			sess.Indicators,
			boolToUInt8(sess.AgentActivated),
			string(sess.State()),
			boolToUInt8(sess.Reported),
			sess.ReportedAt,
			string(metadata),
		)
		if err != nil {
			return NewStorageError("Append", "sessions", err)
		}
	}
	if err := batch.Send(); err != nil {
		return NewStorageError("Send", "sessions", err)
	}
	return nil
}

func (a *Archiver) insertMessages(ctx context.Context, sessions []*schema.Session) error {
	batch, err := a.client.PrepareBatch(ctx, `
		INSERT INTO messages (session_id, seq, sender, text, timestamp)
	`)
	if err != nil {
		return NewStorageError("PrepareBatch", "messages", err)
	}

	for _, sess := range sessions {
		for i, msg := range sess.Messages {
			err := batch.Append(
				sess.ID,
				uint32(i),
				string(msg.Sender),
				msg.Text,
				time.UnixMilli(msg.Timestamp),
			)
			if err != nil {
				return NewStorageError("Append", "messages", err)
			}
		}
	}
	if err := batch.Send(); err != nil {
		return NewStorageError("Send", "messages", err)
	}
	return nil
}

func (a *Archiver) insertIntelligence(ctx context.Context, sessions []*schema.Session) error {
	withIntel := sessions[:0:0]
	for _, sess := range sessions {
		if sess.Intelligence != nil {
			withIntel = append(withIntel, sess)
		}
	}
	if len(withIntel) == 0 {
		return nil
	}

	batch, err := a.client.PrepareBatch(ctx, `
		INSERT INTO intelligence (
			session_id, extracted_at, scam_type,
			bank_accounts, upi_ids, crypto_addresses,
			phone_numbers, email_addresses, phishing_links,
			suspicious_keywords, threat_level, risk_score, summary, raw
		)
	`)
	if err != nil {
		return NewStorageError("PrepareBatch", "intelligence", err)
	}

	for _, sess := range withIntel {
		intel := sess.Intelligence
		raw, _ := json.Marshal(intel)
		err := batch.Append(
			sess.ID,
			intel.ExtractedAt,
			sess.ScamType,
			intel.Financial.BankAccounts,
			intel.Financial.UPIIDs,
			intel.Financial.CryptoAddresses,
			intel.Contact.PhoneNumbers,
			intel.Contact.EmailAddresses,
			intel.DigitalAssets.PhishingLinks,
			intel.SuspiciousKeywords,
			intel.Risk.ThreatLevel,
			uint8(clampRiskScore(intel.Risk.RiskScore)),
			intel.Summary,
			string(raw),
		)
		if err != nil {
			return NewStorageError("Append", "intelligence", err)
		}
	}
	if err := batch.Send(); err != nil {
		return NewStorageError("Send", "intelligence", err)
	}
	return nil
}

// Flush forces a flush of the current buffer.
func (a *Archiver) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

// Close stops the timer and flushes remaining sessions.
func (a *Archiver) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.flushTimer.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

// Metrics returns archiver statistics.
func (a *Archiver) Metrics() ArchiverMetrics {
	a.mu.Lock()
	pending := len(a.buffer)
	a.mu.Unlock()

	return ArchiverMetrics{
		Written: atomic.LoadUint64(&a.totalWritten),
		Failed:  atomic.LoadUint64(&a.totalFailed),
		Batches: atomic.LoadUint64(&a.batchCount),
		Pending: pending,
	}
}

// ArchiverMetrics holds archiver statistics.
type ArchiverMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
	Pending int    `json:"pending"`
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func clampRiskScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
