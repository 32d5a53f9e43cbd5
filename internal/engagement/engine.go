package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"honeytrap/internal/gateway"
	"honeytrap/internal/schema"
	"honeytrap/internal/session"
)

// IntelService extracts structured intelligence from a conversation. It
// never fails hard: an implementation returns an empty-but-valid record
// when extraction cannot complete.
type IntelService interface {
	Extract(ctx context.Context, history []schema.Message, metadata map[string]string) *schema.Intelligence
}

// Reporter delivers a finalized session report to external consumers.
// Delivery failure leaves the session unreported so a later turn retries.
type Reporter interface {
	Report(ctx context.Context, sess *schema.Session) error
}

// Config carries engagement policy knobs.
type Config struct {
	// MinEngagementMessages is the floor of exchanged messages before a
	// detected scam session may be finalized.
	MinEngagementMessages int `yaml:"min_engagement_messages"`
	// HardMessageCap forces finalization regardless of advisor output.
	HardMessageCap int `yaml:"hard_message_cap"`
	// SimilarityThreshold is the score at or above which two replies
	// count as near duplicates.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// RecentReplyWindow is how many prior decoy replies the
	// non-repetition check considers.
	RecentReplyWindow int `yaml:"recent_reply_window"`
}

// DefaultConfig returns the production engagement policy.
func DefaultConfig() Config {
	return Config{
		MinEngagementMessages: 4,
		HardMessageCap:        15,
		SimilarityThreshold:   0.6,
		RecentReplyWindow:     5,
	}
}

// Validate checks policy bounds.
func (c Config) Validate() error {
	if c.MinEngagementMessages < 1 {
		return fmt.Errorf("engagement: min_engagement_messages must be >= 1, got %d", c.MinEngagementMessages)
	}
	if c.HardMessageCap < c.MinEngagementMessages {
		return fmt.Errorf("engagement: hard_message_cap %d below min_engagement_messages %d", c.HardMessageCap, c.MinEngagementMessages)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("engagement: similarity_threshold must be in (0, 1], got %f", c.SimilarityThreshold)
	}
	if c.RecentReplyWindow < 1 {
		return fmt.Errorf("engagement: recent_reply_window must be >= 1, got %d", c.RecentReplyWindow)
	}
	return nil
}

// TurnResult is what a processed inbound message produces.
type TurnResult struct {
	SessionID    string
	Reply        string
	ScamDetected bool
	Confidence   float64
	ScamType     string
	State        schema.State
	Reported     bool
}

// Engine runs the conversational engagement loop: classify, respond,
// decide whether to keep the scammer talking or extract and report.
type Engine struct {
	cfg        Config
	store      *session.Store
	classifier gateway.Classifier
	responder  gateway.Responder
	advisor    gateway.Advisor
	intel      IntelService
	reporter   Reporter
	similarity SimilarityFunc
	fallback   *FallbackSelector
	logger     *slog.Logger

	// OnTurn is invoked after every processed turn, OnReported after a
	// session is successfully finalized. Both optional.
	OnTurn     func(res *TurnResult)
	OnReported func(sess *schema.Session)
}

// NewEngine wires the engagement loop. All collaborators are required
// except the hooks.
func NewEngine(cfg Config, store *session.Store, classifier gateway.Classifier, responder gateway.Responder, advisor gateway.Advisor, intel IntelService, reporter Reporter, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	sim := JaccardWords
	return &Engine{
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		responder:  responder,
		advisor:    advisor,
		intel:      intel,
		reporter:   reporter,
		similarity: sim,
		fallback:   NewFallbackSelector(sim, cfg.SimilarityThreshold),
		logger:     logger.With("component", "engagement"),
	}, nil
}

// SetSimilarity swaps the near-duplicate scoring function. Intended for
// tuning and tests; call before serving traffic.
func (e *Engine) SetSimilarity(fn SimilarityFunc) {
	e.similarity = fn
	e.fallback = NewFallbackSelector(fn, e.cfg.SimilarityThreshold)
}

// HandleTurn processes one inbound scammer message and returns the decoy
// reply. Upstream failures degrade the turn but never abort it: the caller
// always gets a reply.
func (e *Engine) HandleTurn(ctx context.Context, req *schema.TurnRequest, arrival time.Time) (*TurnResult, error) {
	e.store.GetOrCreate(req.SessionID)

	if len(req.ConversationHistory) > 0 {
		history := make([]schema.Message, 0, len(req.ConversationHistory))
		for _, in := range req.ConversationHistory {
			history = append(history, schema.Normalize(in, arrival))
		}
		if e.store.SyncHistory(req.SessionID, history) {
			e.logger.Info("history synced",
				"session_id", req.SessionID,
				"messages", len(history))
		}
	}

	inbound := schema.Normalize(req.Message, arrival)
	priorHistory, _ := e.store.History(req.SessionID)
	if err := e.store.AppendMessage(req.SessionID, inbound); err != nil {
		return nil, fmt.Errorf("engagement: append inbound: %w", err)
	}
	if len(req.Metadata) > 0 {
		e.store.MergeMetadata(req.SessionID, req.Metadata)
	}

	verdict := e.classify(ctx, inbound, priorHistory)
	e.store.UpdateDetection(req.SessionID, *verdict)

	sess, err := e.store.Get(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("engagement: load session: %w", err)
	}

	reply := e.generateReply(ctx, sess, inbound)
	if err := e.store.AppendMessage(req.SessionID, schema.Message{
		Sender:    schema.SenderHoneypot,
		Text:      reply,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return nil, fmt.Errorf("engagement: append reply: %w", err)
	}

	sess, err = e.store.Get(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("engagement: reload session: %w", err)
	}

	reported := false
	if sess.ScamDetected && sess.MessageCount >= e.cfg.MinEngagementMessages && !sess.Reported {
		reported = e.maybeFinalize(ctx, sess)
	}

	sess, _ = e.store.Get(req.SessionID)
	res := &TurnResult{
		SessionID:    req.SessionID,
		Reply:        reply,
		ScamDetected: sess.ScamDetected,
		Confidence:   sess.ScamConfidence,
		ScamType:     sess.ScamType,
		State:        sess.State(),
		Reported:     reported,
	}
	if e.OnTurn != nil {
		e.OnTurn(res)
	}
	return res, nil
}

// ForceReport finalizes a session immediately, bypassing the stop-condition
// policy. Used by the operator API.
func (e *Engine) ForceReport(ctx context.Context, sessionID string) (*schema.Session, error) {
	sess, err := e.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Reported {
		return sess, nil
	}
	if !e.finalize(ctx, sess) {
		return nil, fmt.Errorf("engagement: report delivery failed for session %s", sessionID)
	}
	return e.store.Get(sessionID)
}

func (e *Engine) classify(ctx context.Context, msg schema.Message, history []schema.Message) *schema.Verdict {
	verdict, err := e.classifier.Classify(ctx, msg, history)
	if err != nil {
		e.logger.Warn("classification failed, using conservative verdict", "error", err)
		return &schema.Verdict{
			IsScam:     false,
			Confidence: 0,
			ScamType:   "unknown",
			Indicators: []string{"detection_error"},
			Reasoning:  "classifier unavailable",
		}
	}
	return verdict
}

func (e *Engine) generateReply(ctx context.Context, sess *schema.Session, inbound schema.Message) string {
	stage := StageFor(sess.MessageCount)
	recent := e.recentReplies(sess)

	prior := sess.Messages
	if n := len(prior); n > 0 && prior[n-1].Timestamp == inbound.Timestamp && prior[n-1].Text == inbound.Text {
		prior = prior[:n-1]
	}

	reply, err := e.responder.Reply(ctx, gateway.ReplyRequest{
		Message:       inbound,
		History:       prior,
		ScamType:      sess.ScamType,
		Stage:         stage,
		Metadata:      sess.Metadata,
		RecentReplies: recent,
	})
	if err != nil {
		e.logger.Warn("reply generation failed, using fallback",
			"session_id", sess.ID, "stage", stage, "error", err)
		return e.fallback.Select(stage, recent)
	}
	if reply == "" || e.nearDuplicate(reply, recent) {
		e.logger.Info("generated reply rejected as near duplicate",
			"session_id", sess.ID, "stage", stage)
		return e.fallback.Select(stage, recent)
	}
	return reply
}

func (e *Engine) nearDuplicate(reply string, recent []string) bool {
	for _, prev := range recent {
		if e.similarity(reply, prev) >= e.cfg.SimilarityThreshold {
			return true
		}
	}
	return false
}

// recentReplies returns the last N decoy replies, newest last.
func (e *Engine) recentReplies(sess *schema.Session) []string {
	var replies []string
	for _, msg := range sess.Messages {
		if msg.Sender == schema.SenderHoneypot {
			replies = append(replies, msg.Text)
		}
	}
	if len(replies) > e.cfg.RecentReplyWindow {
		replies = replies[len(replies)-e.cfg.RecentReplyWindow:]
	}
	return replies
}

// maybeFinalize consults the advisor and finalizes the session when a stop
// condition holds. Returns whether the session was reported this turn.
func (e *Engine) maybeFinalize(ctx context.Context, sess *schema.Session) bool {
	cont := e.advise(ctx, sess)
	stop := cont.SuggestedAction == schema.ActionExtractAndReport ||
		sess.MessageCount >= e.cfg.HardMessageCap ||
		!cont.ShouldContinue
	if !stop {
		return false
	}
	e.logger.Info("stop condition met",
		"session_id", sess.ID,
		"message_count", sess.MessageCount,
		"suggested_action", cont.SuggestedAction,
		"reason", cont.Reason)
	return e.finalize(ctx, sess)
}

func (e *Engine) advise(ctx context.Context, sess *schema.Session) *schema.Continuation {
	summary := ""
	if sess.Intelligence != nil {
		summary = sess.Intelligence.Summary
	}
	cont, err := e.advisor.Advise(ctx, sess.Messages, sess.MessageCount, summary)
	if err != nil {
		e.logger.Warn("continuation advice failed, applying cap policy",
			"session_id", sess.ID, "error", err)
		capped := sess.MessageCount >= e.cfg.HardMessageCap
		action := schema.ActionContinueNormal
		if capped {
			action = schema.ActionExtractAndReport
		}
		return &schema.Continuation{
			ShouldContinue:  !capped,
			SuggestedAction: action,
			Reason:          "advisor unavailable",
		}
	}
	return cont
}

// finalize extracts intelligence over the full history and delivers the
// report. Extraction runs on every attempt so a retried delivery carries
// identifiers from messages exchanged after an earlier failure. Extraction
// never fails; delivery failure leaves the session unreported for a later
// retry.
func (e *Engine) finalize(ctx context.Context, sess *schema.Session) bool {
	intel := e.intel.Extract(ctx, sess.Messages, sess.Metadata)
	e.store.StoreIntelligence(sess.ID, intel)
	sess.Intelligence = intel

	if err := e.reporter.Report(ctx, sess); err != nil {
		e.logger.Error("report delivery failed, will retry on next turn",
			"session_id", sess.ID, "error", err)
		return false
	}
	if !e.store.MarkReported(sess.ID) {
		return false
	}
	e.logger.Info("session reported",
		"session_id", sess.ID,
		"scam_type", sess.ScamType,
		"message_count", sess.MessageCount)
	if e.OnReported != nil {
		if final, err := e.store.Get(sess.ID); err == nil {
			e.OnReported(final)
		}
	}
	return true
}
