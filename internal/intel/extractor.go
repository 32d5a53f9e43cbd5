// Package intel turns honeypot conversations into structured, reportable
// intelligence and tracks scammer identifiers across sessions.
package intel

import (
	"context"
	"log/slog"
	"time"

	"honeytrap/internal/gateway"
	"honeytrap/internal/logging"
	"honeytrap/internal/schema"
)

// Service combines model-driven extraction with pattern harvesting. The
// harvested indicators are unioned into the model output so a hallucinating
// or unavailable model never loses hard evidence from the transcript.
type Service struct {
	extractor gateway.Extractor
	harvester *Harvester
	registry  Registry
	logger    *slog.Logger
}

// NewService creates an extraction service. registry may be nil when
// cross-session tracking is disabled.
func NewService(extractor gateway.Extractor, registry Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractor: extractor,
		harvester: &Harvester{},
		registry:  registry,
		logger:    logger.With("component", "intel"),
	}
}

// Extract produces an intelligence record for the conversation. Never
// returns nil: model failure degrades to harvested indicators only.
func (s *Service) Extract(ctx context.Context, history []schema.Message, metadata map[string]string) *schema.Intelligence {
	harvested := s.harvester.Harvest(history)

	intel, err := s.extractor.Extract(ctx, history, metadata)
	if err != nil {
		s.logger.Warn("model extraction failed, using harvested indicators only", "error", err)
		intel = harvested
		intel.ExtractedAt = time.Now().UTC()
	} else {
		merge(intel, harvested)
	}

	if s.registry != nil {
		s.track(ctx, intel)
	}
	return intel
}

// merge unions harvested indicators into the model output.
func merge(dst, harvested *schema.Intelligence) {
	dst.Financial.BankAccounts = union(dst.Financial.BankAccounts, harvested.Financial.BankAccounts)
	dst.Financial.UPIIDs = union(dst.Financial.UPIIDs, harvested.Financial.UPIIDs)
	dst.Financial.CryptoAddresses = union(dst.Financial.CryptoAddresses, harvested.Financial.CryptoAddresses)
	dst.Contact.PhoneNumbers = union(dst.Contact.PhoneNumbers, harvested.Contact.PhoneNumbers)
	dst.Contact.EmailAddresses = union(dst.Contact.EmailAddresses, harvested.Contact.EmailAddresses)
	dst.DigitalAssets.PhishingLinks = union(dst.DigitalAssets.PhishingLinks, harvested.DigitalAssets.PhishingLinks)
	dst.SuspiciousKeywords = union(dst.SuspiciousKeywords, harvested.SuspiciousKeywords)
}

func union(a, b []string) []string {
	return dedupe(append(append([]string{}, a...), b...))
}

// track registers every identifier from the record against the scammer
// registry. Registry failures are logged and ignored.
func (s *Service) track(ctx context.Context, intel *schema.Intelligence) {
	identifiers := make([]Identifier, 0, 8)
	for _, v := range intel.Contact.PhoneNumbers {
		identifiers = append(identifiers, Identifier{Type: IdentifierPhone, Value: v})
	}
	for _, v := range intel.Financial.UPIIDs {
		identifiers = append(identifiers, Identifier{Type: IdentifierUPI, Value: v})
	}
	for _, v := range intel.Financial.BankAccounts {
		identifiers = append(identifiers, Identifier{Type: IdentifierBankAccount, Value: v})
	}
	for _, v := range intel.Contact.EmailAddresses {
		identifiers = append(identifiers, Identifier{Type: IdentifierEmail, Value: v})
	}
	for _, v := range intel.DigitalAssets.PhishingLinks {
		identifiers = append(identifiers, Identifier{Type: IdentifierURL, Value: v})
	}

	for _, id := range identifiers {
		if err := s.registry.Record(ctx, id); err != nil {
			s.logger.Warn("scammer registry update failed",
				"type", string(id.Type), "error", err)
			continue
		}
		s.logger.Debug("identifier recorded",
			"type", string(id.Type),
			"value", logging.MaskIdentifier(id.Value))
	}
}
