// Package session provides the in-memory session store for the honeypot.
// Sessions are mutated exclusively through store operations so the
// monotonicity invariants of the schema hold under concurrent turns.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"honeytrap/internal/schema"
)

// ErrNotFound is returned by read-only queries for a session id that was
// never seen. Distinct from an existing session with no messages.
var ErrNotFound = errors.New("session: not found")

// Config holds session store settings.
type Config struct {
	MaxIdleAge    time.Duration `yaml:"max_idle_age"`   // sessions idle longer than this are evicted
	SweepInterval time.Duration `yaml:"sweep_interval"` // how often the eviction sweep runs
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		MaxIdleAge:    24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// Store is a process-lifetime mapping from session id to session state.
// A single mutex serializes mutations; turns for the same session are
// expected to arrive one at a time, but nothing breaks if they don't.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*schema.Session

	cfg       Config
	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewStore creates a session store and starts the idle-eviction sweep.
func NewStore(cfg Config) *Store {
	if cfg.MaxIdleAge <= 0 {
		cfg.MaxIdleAge = DefaultConfig().MaxIdleAge
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	s := &Store{
		sessions:  make(map[string]*schema.Session),
		cfg:       cfg,
		stopSweep: make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// Close stops the eviction sweep.
func (s *Store) Close() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.EvictIdle(s.cfg.MaxIdleAge)
		}
	}
}

// GetOrCreate returns the session for id, creating it with defaults if it
// does not exist. Never fails.
func (s *Store) GetOrCreate(id string) *schema.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.getOrCreateLocked(id))
}

func (s *Store) getOrCreateLocked(id string) *schema.Session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}

	now := time.Now().UTC()
	sess := &schema.Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []schema.Message{},
		Metadata:  map[string]string{},
	}
	s.sessions[id] = sess

	slog.Info("session created", "session_id", id)
	return sess
}

// AppendMessage appends a message to the session's history, incrementing the
// message counter. The session is created if it does not exist.
func (s *Store) AppendMessage(id string, msg schema.Message) error {
	if msg.Text == "" {
		return fmt.Errorf("session: empty message text")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.Messages = append(sess.Messages, msg)
	sess.MessageCount++
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// SyncHistory bulk-imports a prior conversation. It applies only when the
// session has no messages yet and the history is non-empty; otherwise it is
// a no-op, so retried requests cannot duplicate the import.
func (s *Store) SyncHistory(id string, history []schema.Message) bool {
	if len(history) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	if len(sess.Messages) > 0 {
		return false
	}

	sess.Messages = append(sess.Messages, history...)
	sess.MessageCount = len(history)
	sess.UpdatedAt = time.Now().UTC()
	return true
}

// UpdateDetection applies a classification verdict under the monotonic
// confidence rule: detection state only strengthens, never weakens, and
// ScamType moves only together with a new confidence maximum. Returns true
// when this call activated the decoy agent.
func (s *Store) UpdateDetection(id string, verdict schema.Verdict) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.UpdatedAt = time.Now().UTC()

	if !verdict.IsScam || verdict.Confidence <= sess.ScamConfidence {
		return false
	}

	sess.ScamDetected = true
	sess.ScamConfidence = verdict.Confidence
	sess.ScamType = verdict.ScamType
	sess.Indicators = unionStrings(sess.Indicators, verdict.Indicators)

	if sess.AgentActivated {
		return false
	}
	sess.AgentActivated = true
	slog.Info("decoy agent activated",
		"session_id", id,
		"scam_type", sess.ScamType,
		"confidence", sess.ScamConfidence,
	)
	return true
}

// MergeMetadata shallow-merges metadata into the session. Existing keys are
// overwritten, absent keys retained.
func (s *Store) MergeMetadata(id string, md map[string]string) {
	if len(md) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	for k, v := range md {
		sess.Metadata[k] = v
	}
	sess.UpdatedAt = time.Now().UTC()
}

// StoreIntelligence attaches an extracted intelligence record to the
// session. Re-extraction is permitted; last write wins.
func (s *Store) StoreIntelligence(id string, intel *schema.Intelligence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.Intelligence = intel
	sess.UpdatedAt = time.Now().UTC()
}

// MarkReported marks the session terminal after confirmed report delivery.
// Returns false for unknown sessions and for sessions already reported.
func (s *Store) MarkReported(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Reported {
		return false
	}

	now := time.Now().UTC()
	sess.Reported = true
	sess.ReportedAt = &now
	sess.UpdatedAt = now
	return true
}

// Get returns a snapshot of the session, or ErrNotFound.
func (s *Store) Get(id string) (*schema.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(sess), nil
}

// History returns the session's full message history, or ErrNotFound.
func (s *Store) History(id string) ([]schema.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	history := make([]schema.Message, len(sess.Messages))
	copy(history, sess.Messages)
	return history, nil
}

// Stats summarizes a session for operator queries.
type Stats struct {
	SessionID      string        `json:"sessionId"`
	State          schema.State  `json:"state"`
	MessageCount   int           `json:"messageCount"`
	ScamDetected   bool          `json:"scamDetected"`
	ScamConfidence float64       `json:"scamConfidence"`
	ScamType       string        `json:"scamType,omitempty"`
	AgentActivated bool          `json:"agentActivated"`
	Reported       bool          `json:"reported"`
	Duration       time.Duration `json:"durationMs"`
	LastActivity   time.Time     `json:"lastActivity"`
	HasIntel       bool          `json:"hasIntelligence"`
	IntelSummary   string        `json:"intelligenceSummary,omitempty"`
}

func statsLocked(sess *schema.Session) *Stats {
	st := &Stats{
		SessionID:      sess.ID,
		State:          sess.State(),
		MessageCount:   sess.MessageCount,
		ScamDetected:   sess.ScamDetected,
		ScamConfidence: sess.ScamConfidence,
		ScamType:       sess.ScamType,
		AgentActivated: sess.AgentActivated,
		Reported:       sess.Reported,
		Duration:       time.Since(sess.CreatedAt),
		LastActivity:   sess.UpdatedAt,
		HasIntel:       sess.Intelligence != nil,
	}
	if sess.Intelligence != nil {
		st.IntelSummary = sess.Intelligence.Summary
	}
	return st
}

// Stats returns per-session statistics, or ErrNotFound.
func (s *Store) Stats(id string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	return statsLocked(sess), nil
}

// List returns summaries for up to limit sessions ordered by most recent
// activity. A non-positive limit returns all sessions.
func (s *Store) List(limit int) []*Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Stats, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, statsLocked(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle removes every session whose UpdatedAt is older than maxAge.
// Returns the number of sessions evicted.
func (s *Store) EvictIdle(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	evicted := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		slog.Info("idle sessions evicted", "count", evicted, "max_age", maxAge)
	}
	return evicted
}

// snapshot copies a session so callers cannot mutate stored state directly.
func snapshot(sess *schema.Session) *schema.Session {
	cp := *sess

	cp.Messages = make([]schema.Message, len(sess.Messages))
	copy(cp.Messages, sess.Messages)

	cp.Indicators = make([]string, len(sess.Indicators))
	copy(cp.Indicators, sess.Indicators)

	cp.Metadata = make(map[string]string, len(sess.Metadata))
	for k, v := range sess.Metadata {
		cp.Metadata[k] = v
	}

	if sess.ReportedAt != nil {
		t := *sess.ReportedAt
		cp.ReportedAt = &t
	}
	return &cp
}

// unionStrings merges b into a, preserving order of first appearance.
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lists := range [][]string{a, b} {
		for _, v := range lists {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
