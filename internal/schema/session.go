// Package schema defines the canonical session and intelligence types for
// the honeypot. All inbound turns are normalized to these structures before
// any state is mutated.
package schema

import (
	"time"
)

// Sender tags who authored a message within a conversation.
type Sender string

const (
	// SenderScammer is the counterpart on the other end of the conversation.
	SenderScammer Sender = "scammer"
	// SenderHoneypot is the decoy persona. The wire value is "user" because
	// upstream channels label the honeypot side as the user of the device.
	SenderHoneypot Sender = "user"
)

// IsValid checks if the sender is a known value.
func (s Sender) IsValid() bool {
	switch s {
	case SenderScammer, SenderHoneypot:
		return true
	}
	return false
}

// Message is one turn of a conversation. Messages are immutable once stored.
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch millis
}

// Session is one tracked conversation with a single counterpart, keyed by an
// opaque externally supplied id.
//
// Field invariants, enforced by the session store:
//   - Messages is append-only; entries are never mutated or removed.
//   - ScamConfidence retains the maximum confidence observed; ScamType moves
//     only together with it.
//   - AgentActivated implies ScamDetected and is set exactly once.
//   - Reported is set exactly once, on confirmed delivery.
type Session struct {
	ID             string            `json:"sessionId"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Messages       []Message         `json:"messages"`
	MessageCount   int               `json:"messageCount"`
	ScamDetected   bool              `json:"scamDetected"`
	ScamConfidence float64           `json:"scamConfidence"`
	ScamType       string            `json:"scamType,omitempty"`
	Indicators     []string          `json:"indicators,omitempty"`
	AgentActivated bool              `json:"agentActivated"`
	Intelligence   *Intelligence     `json:"extractedIntelligence,omitempty"`
	Reported       bool              `json:"reported"`
	ReportedAt     *time.Time        `json:"reportedAt,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// State is the explicit engagement state, derived deterministically from the
// stored flags rather than persisted separately.
type State string

const (
	StateDormant    State = "dormant"    // no scam flagged yet
	StateActive     State = "active"     // scam detected, engaging
	StateExtracting State = "extracting" // intelligence pulled, delivery pending
	StateReported   State = "reported"   // terminal
)

// State derives the engagement state from the session's flags.
func (s *Session) State() State {
	switch {
	case s.Reported:
		return StateReported
	case s.Intelligence != nil:
		return StateExtracting
	case s.ScamDetected:
		return StateActive
	default:
		return StateDormant
	}
}

// Verdict is the structured result of a classification call.
type Verdict struct {
	IsScam     bool     `json:"isScam"`
	Confidence float64  `json:"confidence"`
	ScamType   string   `json:"scamType"`
	Indicators []string `json:"indicators"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Continuation is the structured result of a continuation-decision call.
type Continuation struct {
	ShouldContinue  bool   `json:"shouldContinue"`
	SuggestedAction string `json:"suggestedAction"`
	Reason          string `json:"reason,omitempty"`
}

// Continuation suggested actions understood by the engagement engine.
const (
	ActionContinueNormal   = "continue_normal"
	ActionExtractAndReport = "extract_and_report"
)

// Intelligence is the structured record extracted from a full transcript.
// Every list is non-nil after construction so callers can store and report a
// null-intelligence record without special-casing.
type Intelligence struct {
	Financial          FinancialIntel      `json:"financialIntel"`
	Contact            ContactIntel        `json:"contactIntel"`
	DigitalAssets      DigitalAssetIntel   `json:"digitalAssets"`
	Organizational     OrganizationalIntel `json:"organizationalIntel"`
	Behavioral         BehavioralIntel     `json:"behavioralIntel"`
	Risk               RiskAssessment      `json:"riskAssessment"`
	Recommendations    []string            `json:"actionableRecommendations"`
	SuspiciousKeywords []string            `json:"suspiciousKeywords"`
	Summary            string              `json:"summary"`
	ExtractedAt        time.Time           `json:"extractedAt"`
}

// FinancialIntel holds financial identifiers demanded or disclosed.
type FinancialIntel struct {
	BankAccounts    []string `json:"bankAccounts"`
	UPIIDs          []string `json:"upiIds"`
	CryptoAddresses []string `json:"cryptoAddresses"`
	PaymentApps     []string `json:"paymentApps"`
	AmountsDemanded []string `json:"amountsDemanded"`
}

// ContactIntel holds contact identifiers of the counterpart.
type ContactIntel struct {
	PhoneNumbers   []string `json:"phoneNumbers"`
	EmailAddresses []string `json:"emailAddresses"`
	SocialMedia    []string `json:"socialMedia"`
}

// DigitalAssetIntel holds links and apps pushed by the counterpart.
type DigitalAssetIntel struct {
	PhishingLinks []string `json:"phishingLinks"`
	MaliciousApps []string `json:"maliciousApps"`
	FakeWebsites  []string `json:"fakeWebsites"`
}

// OrganizationalIntel holds claimed organizations and identities.
type OrganizationalIntel struct {
	FakeCompanies     []string `json:"fakeCompanies"`
	FakeDepartments   []string `json:"fakeDepartments"`
	ScammerIdentities []string `json:"scammerIdentities"`
}

// BehavioralIntel holds behavioral signals observed in the transcript.
type BehavioralIntel struct {
	TacticsUsed         []string `json:"tacticsUsed"`
	ScriptPatterns      []string `json:"scriptPatterns"`
	SophisticationLevel string   `json:"sophisticationLevel"`
}

// RiskAssessment summarizes the assessed threat.
type RiskAssessment struct {
	ThreatLevel string `json:"threatLevel"`
	RiskScore   int    `json:"riskScore"`
}

// EmptyIntelligence returns a structurally valid record with every list
// empty and every categorical field "unknown". Used when extraction fails.
func EmptyIntelligence() *Intelligence {
	return &Intelligence{
		Financial: FinancialIntel{
			BankAccounts:    []string{},
			UPIIDs:          []string{},
			CryptoAddresses: []string{},
			PaymentApps:     []string{},
			AmountsDemanded: []string{},
		},
		Contact: ContactIntel{
			PhoneNumbers:   []string{},
			EmailAddresses: []string{},
			SocialMedia:    []string{},
		},
		DigitalAssets: DigitalAssetIntel{
			PhishingLinks: []string{},
			MaliciousApps: []string{},
			FakeWebsites:  []string{},
		},
		Organizational: OrganizationalIntel{
			FakeCompanies:     []string{},
			FakeDepartments:   []string{},
			ScammerIdentities: []string{},
		},
		Behavioral: BehavioralIntel{
			TacticsUsed:         []string{},
			ScriptPatterns:      []string{},
			SophisticationLevel: "unknown",
		},
		Risk: RiskAssessment{
			ThreatLevel: "unknown",
		},
		Recommendations:    []string{},
		SuspiciousKeywords: []string{},
		Summary:            "",
		ExtractedAt:        time.Now().UTC(),
	}
}

// SchemaVersionCurrent is the current version of the session schema.
const SchemaVersionCurrent = "1.0.0"
