package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"honeytrap/internal/schema"
)

func testSession() *schema.Session {
	intel := schema.EmptyIntelligence()
	intel.Financial.UPIIDs = []string{"fraud@ybl"}
	intel.Contact.PhoneNumbers = []string{"9876543210"}
	intel.SuspiciousKeywords = []string{"otp", "digital arrest"}
	intel.Summary = "digital arrest coercion script"

	now := time.Now().UTC()
	return &schema.Session{
		ID:             "sess-1",
		CreatedAt:      now.Add(-10 * time.Minute),
		UpdatedAt:      now,
		MessageCount:   12,
		ScamDetected:   true,
		ScamConfidence: 0.92,
		ScamType:       "digital_arrest",
		Indicators:     []string{"threat", "urgency"},
		AgentActivated: true,
		Intelligence:   intel,
	}
}

func TestReportDelivers(t *testing.T) {
	var received Payload
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{
		Endpoint:    srv.URL,
		APIKey:      "secret",
		MaxAttempts: 1,
		Timeout:     5 * time.Second,
		IncludeFull: true,
	}, nil)

	if err := d.Report(context.Background(), testSession()); err != nil {
		t.Fatalf("Report: %v", err)
	}

	if gotKey != "secret" {
		t.Errorf("X-API-Key = %q, want secret", gotKey)
	}
	if received.SessionID != "sess-1" || !received.ScamDetected {
		t.Errorf("payload = %+v", received)
	}
	if received.ExtractedIntelligence.UPIIDs[0] != "fraud@ybl" {
		t.Errorf("UPIIDs = %v", received.ExtractedIntelligence.UPIIDs)
	}
	if received.Full == nil {
		t.Error("full intelligence missing with IncludeFull set")
	}
}

func TestReportRetriesThenFails(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{
		Endpoint:    srv.URL,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Timeout:     time.Second,
	}, nil)

	err := d.Report(context.Background(), testSession())
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestReportRecoversMidRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{
		Endpoint:    srv.URL,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Timeout:     time.Second,
	}, nil)

	if err := d.Report(context.Background(), testSession()); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

type recordingSink struct {
	published int32
}

func (s *recordingSink) Publish(_ context.Context, _ *Payload) error {
	atomic.AddInt32(&s.published, 1)
	return nil
}

func TestReportNoEndpointLogsAndFansOut(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{}, nil, sink)

	if err := d.Report(context.Background(), testSession()); err != nil {
		t.Fatalf("Report without endpoint should succeed: %v", err)
	}
	if atomic.LoadInt32(&sink.published) != 1 {
		t.Error("sink should receive the payload even without an intake endpoint")
	}
}

func TestFanOutOnlyAfterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	d := NewDispatcher(Config{
		Endpoint:    srv.URL,
		MaxAttempts: 1,
		Timeout:     time.Second,
	}, nil, sink)

	d.Report(context.Background(), testSession())
	if atomic.LoadInt32(&sink.published) != 0 {
		t.Error("sink must not receive payloads for failed deliveries")
	}
}

func TestBuildPayloadNilIntelligence(t *testing.T) {
	sess := testSession()
	sess.Intelligence = nil

	d := NewDispatcher(DefaultConfig(), nil)
	p := d.BuildPayload(sess)

	if p.ExtractedIntelligence.BankAccounts == nil {
		t.Error("summary lists must be non-nil")
	}
	if len(p.ExtractedIntelligence.UPIIDs) != 0 {
		t.Errorf("UPIIDs = %v, want empty", p.ExtractedIntelligence.UPIIDs)
	}
	if p.TotalMessagesExchanged != 12 {
		t.Errorf("TotalMessagesExchanged = %d, want 12", p.TotalMessagesExchanged)
	}
}

func TestGenerateAgentNotes(t *testing.T) {
	sess := testSession()
	notes := GenerateAgentNotes(sess, sess.Intelligence)

	for _, want := range []string{
		"digital_arrest",
		"92%",
		"threat, urgency",
		"1 UPI ID(s)",
		"1 phone number(s)",
		"Engaged for 12 messages",
	} {
		if !strings.Contains(notes, want) {
			t.Errorf("notes missing %q: %s", want, notes)
		}
	}
}

func TestGenerateAgentNotesMinimalSession(t *testing.T) {
	sess := &schema.Session{ID: "s", MessageCount: 2, ScamType: "unknown"}
	notes := GenerateAgentNotes(sess, schema.EmptyIntelligence())

	if !strings.Contains(notes, "Engaged for 2 messages") {
		t.Errorf("notes = %q", notes)
	}
	if strings.Contains(notes, "unknown") {
		t.Error("unknown scam type should not be reported in notes")
	}
}
