package logging

import (
	"reflect"
	"testing"
)

func TestIsSensitiveField(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"api_key", true},
		{"API_KEY", true},
		{"X-Api-Key", true},
		{"report_api_key", true},
		{"redis_password", true},
		{"Authorization", true},
		{"endpoint", false},
		{"session_count", false},
		{"scam_type", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveField(tt.name); got != tt.want {
			t.Errorf("IsSensitiveField(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", MaskedValue},
		{"12345678", MaskedValue},
		{"sk-abcdef1234567890", "sk-a****7890"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.in); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskIdentifier(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"phone", "9876543210", "98***10"},
		{"upi keeps provider", "fraudster@ybl", "fr***er@ybl"},
		{"short upi local part", "ab@paytm", MaskedValue + "@paytm"},
		{"bank account", "123456789012", "12***12"},
		{"short value fully masked", "12345", MaskedValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskIdentifier(tt.in); got != tt.want {
				t.Errorf("MaskIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSafeLogValue(t *testing.T) {
	if got := SafeLogValue("api_key", "secret-value"); got != MaskedValue {
		t.Errorf("SafeLogValue(api_key) = %v, want masked", got)
	}
	if got := SafeLogValue("scam_type", "digital_arrest"); got != "digital_arrest" {
		t.Errorf("SafeLogValue(scam_type) = %v, want passthrough", got)
	}
	if got := SafeLogValue("endpoint", nil); got != nil {
		t.Errorf("SafeLogValue(nil) = %v, want nil", got)
	}

	masked := SafeLogValue("credentials", []string{"a", "b"})
	want := []string{MaskedValue, MaskedValue}
	if !reflect.DeepEqual(masked, want) {
		t.Errorf("SafeLogValue(slice) = %v, want %v", masked, want)
	}
}
