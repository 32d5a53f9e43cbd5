// Package logging provides masking helpers so that credentials and
// extracted scammer identifiers never land in log output verbatim.
package logging

import "strings"

// MaskedValue replaces values that must not appear in logs at all.
const MaskedValue = "[REDACTED]"

// sensitiveFields lists config and header names whose values are always
// fully masked.
var sensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"x-api-key":     true,
	"authorization": true,
	"bearer":        true,
	"credentials":   true,
}

// IsSensitiveField reports whether a field name carries a credential.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	if sensitiveFields[lower] {
		return true
	}
	for s := range sensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// MaskAPIKey masks an API key, keeping only the first and last four
// characters for correlation in logs.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return MaskedValue
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// MaskIdentifier partially masks an extracted identifier such as a phone
// number, UPI ID or bank account. Enough of the value survives to spot
// repeat sightings in logs without reproducing the identifier itself.
func MaskIdentifier(value string) string {
	if value == "" {
		return ""
	}
	if at := strings.Index(value, "@"); at > 0 {
		return maskCore(value[:at]) + value[at:]
	}
	return maskCore(value)
}

func maskCore(s string) string {
	if len(s) <= 5 {
		return MaskedValue
	}
	return s[:2] + "***" + s[len(s)-2:]
}

// SafeLogValue returns a log-safe rendering of a value based on its field
// name. Credential-bearing fields are fully masked, everything else passes
// through unchanged.
func SafeLogValue(name string, value any) any {
	if value == nil {
		return nil
	}
	if !IsSensitiveField(name) {
		return value
	}
	switch v := value.(type) {
	case []string:
		masked := make([]string, len(v))
		for i := range v {
			masked[i] = MaskedValue
		}
		return masked
	default:
		return MaskedValue
	}
}
