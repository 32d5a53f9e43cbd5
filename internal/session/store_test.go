package session

import (
	"errors"
	"testing"
	"time"

	"honeytrap/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(Config{MaxIdleAge: time.Hour, SweepInterval: time.Hour})
	t.Cleanup(s.Close)
	return s
}

func msg(sender schema.Sender, text string) schema.Message {
	return schema.Message{Sender: sender, Text: text, Timestamp: time.Now().UnixMilli()}
}

func TestGetOrCreate(t *testing.T) {
	s := newTestStore(t)

	sess := s.GetOrCreate("sess-1")
	if sess.ID != "sess-1" {
		t.Errorf("ID = %q, want sess-1", sess.ID)
	}
	if sess.State() != schema.StateDormant {
		t.Errorf("State = %q, want dormant", sess.State())
	}
	if sess.Messages == nil || sess.Metadata == nil {
		t.Error("Messages and Metadata should be initialized")
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}

	// Same id returns the same session, not a new one.
	s.GetOrCreate("sess-1")
	if s.Count() != 1 {
		t.Errorf("Count after repeat = %d, want 1", s.Count())
	}
}

func TestAppendMessage(t *testing.T) {
	s := newTestStore(t)

	if err := s.AppendMessage("sess-1", msg(schema.SenderScammer, "hello")); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.AppendMessage("sess-1", msg(schema.SenderHoneypot, "who is this?")); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	sess, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", sess.MessageCount)
	}
	if len(sess.Messages) != 2 {
		t.Errorf("len(Messages) = %d, want 2", len(sess.Messages))
	}
}

func TestAppendMessageRejectsEmptyText(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendMessage("sess-1", schema.Message{Sender: schema.SenderScammer}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestSyncHistory(t *testing.T) {
	s := newTestStore(t)

	history := []schema.Message{
		msg(schema.SenderScammer, "your account is blocked"),
		msg(schema.SenderHoneypot, "which account beta?"),
	}

	if !s.SyncHistory("sess-1", history) {
		t.Fatal("first SyncHistory should apply")
	}

	// A retried request must not duplicate the import.
	if s.SyncHistory("sess-1", history) {
		t.Error("second SyncHistory should be a no-op")
	}

	sess, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", sess.MessageCount)
	}
}

func TestSyncHistoryEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if s.SyncHistory("sess-1", nil) {
		t.Error("empty history should not apply")
	}
}

func TestUpdateDetectionMonotonic(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate("sess-1")

	tests := []struct {
		name           string
		verdict        schema.Verdict
		wantActivated  bool
		wantConfidence float64
		wantType       string
	}{
		{
			name:           "first scam verdict activates",
			verdict:        schema.Verdict{IsScam: true, Confidence: 0.7, ScamType: "digital_arrest"},
			wantActivated:  true,
			wantConfidence: 0.7,
			wantType:       "digital_arrest",
		},
		{
			name:           "higher confidence updates type",
			verdict:        schema.Verdict{IsScam: true, Confidence: 0.9, ScamType: "kyc_fraud"},
			wantActivated:  false,
			wantConfidence: 0.9,
			wantType:       "kyc_fraud",
		},
		{
			name:           "lower confidence ignored",
			verdict:        schema.Verdict{IsScam: true, Confidence: 0.5, ScamType: "lottery"},
			wantActivated:  false,
			wantConfidence: 0.9,
			wantType:       "kyc_fraud",
		},
		{
			name:           "non-scam verdict never weakens",
			verdict:        schema.Verdict{IsScam: false, Confidence: 0.99},
			wantActivated:  false,
			wantConfidence: 0.9,
			wantType:       "kyc_fraud",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activated := s.UpdateDetection("sess-1", tt.verdict)
			if activated != tt.wantActivated {
				t.Errorf("activated = %v, want %v", activated, tt.wantActivated)
			}

			sess, _ := s.Get("sess-1")
			if sess.ScamConfidence != tt.wantConfidence {
				t.Errorf("ScamConfidence = %v, want %v", sess.ScamConfidence, tt.wantConfidence)
			}
			if sess.ScamType != tt.wantType {
				t.Errorf("ScamType = %q, want %q", sess.ScamType, tt.wantType)
			}
		})
	}
}

func TestUpdateDetectionMergesIndicators(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate("sess-1")

	s.UpdateDetection("sess-1", schema.Verdict{IsScam: true, Confidence: 0.6, Indicators: []string{"urgency", "otp_request"}})
	s.UpdateDetection("sess-1", schema.Verdict{IsScam: true, Confidence: 0.8, Indicators: []string{"otp_request", "threat"}})

	sess, _ := s.Get("sess-1")
	want := []string{"urgency", "otp_request", "threat"}
	if len(sess.Indicators) != len(want) {
		t.Fatalf("Indicators = %v, want %v", sess.Indicators, want)
	}
	for i, ind := range want {
		if sess.Indicators[i] != ind {
			t.Errorf("Indicators[%d] = %q, want %q", i, sess.Indicators[i], ind)
		}
	}
}

func TestMergeMetadata(t *testing.T) {
	s := newTestStore(t)
	s.MergeMetadata("sess-1", map[string]string{"channel": "sms", "locale": "en-IN"})
	s.MergeMetadata("sess-1", map[string]string{"channel": "whatsapp"})

	sess, _ := s.Get("sess-1")
	if sess.Metadata["channel"] != "whatsapp" {
		t.Errorf("channel = %q, want whatsapp", sess.Metadata["channel"])
	}
	if sess.Metadata["locale"] != "en-IN" {
		t.Errorf("locale = %q, want en-IN", sess.Metadata["locale"])
	}
}

func TestMarkReported(t *testing.T) {
	s := newTestStore(t)

	if s.MarkReported("unknown") {
		t.Error("unknown session should not be markable")
	}

	s.GetOrCreate("sess-1")
	if !s.MarkReported("sess-1") {
		t.Error("first MarkReported should succeed")
	}
	if s.MarkReported("sess-1") {
		t.Error("second MarkReported should be a no-op")
	}

	sess, _ := s.Get("sess-1")
	if !sess.Reported || sess.ReportedAt == nil {
		t.Error("Reported flag and timestamp should be set")
	}
	if sess.State() != schema.StateReported {
		t.Errorf("State = %q, want reported", sess.State())
	}
}

func TestStoreIntelligence(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate("sess-1")

	intel := schema.EmptyIntelligence()
	intel.Summary = "first pass"
	s.StoreIntelligence("sess-1", intel)

	sess, _ := s.Get("sess-1")
	if sess.State() != schema.StateExtracting {
		t.Errorf("State = %q, want extracting", sess.State())
	}

	// Re-extraction overwrites.
	intel2 := schema.EmptyIntelligence()
	intel2.Summary = "second pass"
	s.StoreIntelligence("sess-1", intel2)

	sess, _ = s.Get("sess-1")
	if sess.Intelligence.Summary != "second pass" {
		t.Errorf("Summary = %q, want second pass", sess.Intelligence.Summary)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	if _, err := s.History("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("History err = %v, want ErrNotFound", err)
	}
	if _, err := s.Stats("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stats err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage("sess-1", msg(schema.SenderScammer, "hello"))
	s.MergeMetadata("sess-1", map[string]string{"channel": "sms"})

	snap, _ := s.Get("sess-1")
	snap.Messages[0].Text = "mutated"
	snap.Metadata["channel"] = "mutated"

	fresh, _ := s.Get("sess-1")
	if fresh.Messages[0].Text != "hello" {
		t.Error("snapshot mutation leaked into stored messages")
	}
	if fresh.Metadata["channel"] != "sms" {
		t.Error("snapshot mutation leaked into stored metadata")
	}
}

func TestEvictIdle(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate("old")
	time.Sleep(20 * time.Millisecond)
	s.GetOrCreate("fresh")

	evicted := s.EvictIdle(10 * time.Millisecond)
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, err := s.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Error("old session should be gone")
	}
	if _, err := s.Get("fresh"); err != nil {
		t.Error("fresh session should survive")
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	s.GetOrCreate("a")
	time.Sleep(5 * time.Millisecond)
	s.GetOrCreate("b")
	time.Sleep(5 * time.Millisecond)
	s.AppendMessage("a", msg(schema.SenderScammer, "back again"))

	list := s.List(0)
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].SessionID != "a" {
		t.Errorf("most recent = %q, want a", list[0].SessionID)
	}

	limited := s.List(1)
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage("sess-1", msg(schema.SenderScammer, "pay now"))
	s.UpdateDetection("sess-1", schema.Verdict{IsScam: true, Confidence: 0.8, ScamType: "upi_fraud"})

	st, err := s.Stats("sess-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !st.ScamDetected || st.ScamConfidence != 0.8 || st.ScamType != "upi_fraud" {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", st.MessageCount)
	}
	if st.State != schema.StateActive {
		t.Errorf("State = %q, want active", st.State)
	}
}
