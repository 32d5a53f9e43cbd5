package intel

import (
	"regexp"
	"strings"

	"honeytrap/internal/schema"
)

// Harvester pulls indicators out of raw conversation text with pattern
// matching. It backstops the model extractor: anything it finds is merged
// in even when the model misses it or fails entirely.
type Harvester struct{}

var (
	upiRegex   = regexp.MustCompile(`\b[a-zA-Z0-9._-]{2,64}@(?:ok(?:axis|hdfcbank|icici|sbi)|ybl|paytm|upi|apl|axl|ibl|oksbi|fbl|jupiteraxis|airtel)\b`)
	phoneRegex = regexp.MustCompile(`(?:\+91[\s-]?)?[6-9]\d{4}[\s-]?\d{5}\b`)
	urlRegex   = regexp.MustCompile(`https?://[^\s<>"')]+`)
	emailRegex = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	// Account numbers as quoted by scammers: 9 to 18 digits, optionally
	// space or dash grouped. Shorter runs collide with OTPs and amounts.
	accountRegex = regexp.MustCompile(`\b\d{9,18}\b`)
	cryptoRegex  = regexp.MustCompile(`\b(?:0x[a-fA-F0-9]{40}|[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{39,59})\b`)
)

// suspiciousKeywords are phrases that mark coercion and urgency tactics.
// Matched case-insensitively against the whole transcript.
var suspiciousKeywords = []string{
	"kyc", "otp", "urgent", "blocked", "suspended", "verify immediately",
	"digital arrest", "police", "cbi", "customs", "arrest warrant",
	"lottery", "prize", "winner", "processing fee", "refund",
	"anydesk", "teamviewer", "screen share", "remote access",
	"gift card", "bitcoin", "crypto", "investment", "guaranteed returns",
	"last warning", "legal action", "court notice", "pay now",
}

// Harvest scans scammer-sent messages and returns the indicators found.
// Honeypot replies are skipped so our own decoy text never pollutes the
// extracted record.
func (h *Harvester) Harvest(messages []schema.Message) *schema.Intelligence {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Sender != schema.SenderScammer {
			continue
		}
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}
	text := sb.String()

	intel := schema.EmptyIntelligence()
	intel.Contact.PhoneNumbers = dedupe(h.phones(text))
	intel.Contact.EmailAddresses = dedupe(h.emails(text))
	intel.Financial.UPIIDs = dedupe(upiRegex.FindAllString(text, -1))
	intel.Financial.BankAccounts = dedupe(h.accounts(text))
	intel.Financial.CryptoAddresses = dedupe(cryptoRegex.FindAllString(text, -1))
	intel.DigitalAssets.PhishingLinks = dedupe(urlRegex.FindAllString(text, -1))
	intel.SuspiciousKeywords = h.keywords(text)
	return intel
}

func (h *Harvester) phones(text string) []string {
	raw := phoneRegex.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, normalizePhone(p))
	}
	return out
}

func (h *Harvester) emails(text string) []string {
	raw := emailRegex.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		// UPI handles match the email shape; keep them out of contacts.
		if upiRegex.MatchString(e) {
			continue
		}
		out = append(out, strings.ToLower(e))
	}
	return out
}

func (h *Harvester) accounts(text string) []string {
	raw := accountRegex.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		// A 10-digit run starting 6-9 is a phone number, not an account.
		if len(a) == 10 && a[0] >= '6' && a[0] <= '9' {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (h *Harvester) keywords(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	if found == nil {
		found = []string{}
	}
	return found
}

func normalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		digits = digits[2:]
	}
	return digits
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
