package intel

import (
	"context"
	"errors"
	"testing"

	"honeytrap/internal/schema"
)

type stubExtractor struct {
	intel *schema.Intelligence
	err   error
}

func (s *stubExtractor) Extract(_ context.Context, _ []schema.Message, _ map[string]string) (*schema.Intelligence, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.intel, nil
}

func TestServiceExtractMergesHarvested(t *testing.T) {
	model := schema.EmptyIntelligence()
	model.Financial.UPIIDs = []string{"model-found@paytm"}
	model.Behavioral.TacticsUsed = []string{"urgency"}
	model.Summary = "digital arrest script"

	svc := NewService(&stubExtractor{intel: model}, nil, nil)

	history := []schema.Message{
		{Sender: schema.SenderScammer, Text: "pay fine to fraud@ybl or call 9876543210", Timestamp: 1},
	}
	intel := svc.Extract(context.Background(), history, nil)

	if intel.Summary != "digital arrest script" {
		t.Errorf("Summary = %q, model output lost", intel.Summary)
	}

	gotUPI := make(map[string]bool)
	for _, id := range intel.Financial.UPIIDs {
		gotUPI[id] = true
	}
	if !gotUPI["model-found@paytm"] || !gotUPI["fraud@ybl"] {
		t.Errorf("UPIIDs = %v, want union of model and harvested", intel.Financial.UPIIDs)
	}
	if len(intel.Contact.PhoneNumbers) != 1 || intel.Contact.PhoneNumbers[0] != "9876543210" {
		t.Errorf("PhoneNumbers = %v, harvested phone lost", intel.Contact.PhoneNumbers)
	}
}

func TestServiceExtractModelFailure(t *testing.T) {
	svc := NewService(&stubExtractor{err: errors.New("model down")}, nil, nil)

	history := []schema.Message{
		{Sender: schema.SenderScammer, Text: "send otp to unblock, account 123456789012", Timestamp: 1},
	}
	intel := svc.Extract(context.Background(), history, nil)

	if intel == nil {
		t.Fatal("Extract must never return nil")
	}
	if intel.ExtractedAt.IsZero() {
		t.Error("ExtractedAt should be stamped on degraded extraction")
	}
	if len(intel.Financial.BankAccounts) != 1 {
		t.Errorf("BankAccounts = %v, harvested indicators lost on model failure", intel.Financial.BankAccounts)
	}
	found := false
	for _, kw := range intel.SuspiciousKeywords {
		if kw == "otp" {
			found = true
		}
	}
	if !found {
		t.Errorf("SuspiciousKeywords = %v, want otp", intel.SuspiciousKeywords)
	}
}

func TestServiceExtractTracksIdentifiers(t *testing.T) {
	registry := NewMemoryRegistry()
	svc := NewService(&stubExtractor{err: errors.New("model down")}, registry, nil)

	history := []schema.Message{
		{Sender: schema.SenderScammer, Text: "pay fraud@ybl, help desk 9876543210, form at https://fake.example/form", Timestamp: 1},
	}
	svc.Extract(context.Background(), history, nil)

	ctx := context.Background()
	if e, _ := registry.Lookup(ctx, Identifier{Type: IdentifierUPI, Value: "fraud@ybl"}); e == nil {
		t.Error("UPI not tracked")
	}
	if e, _ := registry.Lookup(ctx, Identifier{Type: IdentifierPhone, Value: "9876543210"}); e == nil {
		t.Error("phone not tracked")
	}
	if e, _ := registry.Lookup(ctx, Identifier{Type: IdentifierURL, Value: "https://fake.example/form"}); e == nil {
		t.Error("URL not tracked")
	}

	// A second session with the same UPI bumps the sighting count.
	svc.Extract(context.Background(), history, nil)
	e, _ := registry.Lookup(ctx, Identifier{Type: IdentifierUPI, Value: "fraud@ybl"})
	if e.SessionCount != 2 {
		t.Errorf("SessionCount = %d, want 2", e.SessionCount)
	}
}

func TestServiceExtractNilRegistry(t *testing.T) {
	svc := NewService(&stubExtractor{intel: schema.EmptyIntelligence()}, nil, nil)
	// Must not panic without a registry.
	if intel := svc.Extract(context.Background(), nil, nil); intel == nil {
		t.Fatal("Extract returned nil")
	}
}
