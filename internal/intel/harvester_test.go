package intel

import (
	"testing"

	"honeytrap/internal/schema"
)

func scammerMsg(text string) schema.Message {
	return schema.Message{Sender: schema.SenderScammer, Text: text, Timestamp: 1}
}

func honeypotMsg(text string) schema.Message {
	return schema.Message{Sender: schema.SenderHoneypot, Text: text, Timestamp: 1}
}

func TestHarvestUPI(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest([]schema.Message{
		scammerMsg("send the fee to refunds.desk@ybl immediately"),
		scammerMsg("or use backup scammer01@paytm"),
	})

	want := []string{"refunds.desk@ybl", "scammer01@paytm"}
	if len(intel.Financial.UPIIDs) != 2 {
		t.Fatalf("UPIIDs = %v, want %v", intel.Financial.UPIIDs, want)
	}
	for i, id := range want {
		if intel.Financial.UPIIDs[i] != id {
			t.Errorf("UPIIDs[%d] = %q, want %q", i, intel.Financial.UPIIDs[i], id)
		}
	}
}

func TestHarvestUPIExcludedFromEmails(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest([]schema.Message{
		scammerMsg("pay to fraud@ybl or email support@fake-bank.com"),
	})

	if len(intel.Contact.EmailAddresses) != 1 || intel.Contact.EmailAddresses[0] != "support@fake-bank.com" {
		t.Errorf("EmailAddresses = %v, want only support@fake-bank.com", intel.Contact.EmailAddresses)
	}
	if len(intel.Financial.UPIIDs) != 1 || intel.Financial.UPIIDs[0] != "fraud@ybl" {
		t.Errorf("UPIIDs = %v, want only fraud@ybl", intel.Financial.UPIIDs)
	}
}

func TestHarvestPhones(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain ten digits", "call me on 9876543210", []string{"9876543210"}},
		{"with country code", "call +91 98765 43210 now", []string{"9876543210"}},
		{"dashed", "number is 98765-43210", []string{"9876543210"}},
		{"landline-shaped ignored", "office 022 2345", nil},
	}

	h := &Harvester{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intel := h.Harvest([]schema.Message{scammerMsg(tt.text)})
			if len(intel.Contact.PhoneNumbers) != len(tt.want) {
				t.Fatalf("PhoneNumbers = %v, want %v", intel.Contact.PhoneNumbers, tt.want)
			}
			for i, p := range tt.want {
				if intel.Contact.PhoneNumbers[i] != p {
					t.Errorf("PhoneNumbers[%d] = %q, want %q", i, intel.Contact.PhoneNumbers[i], p)
				}
			}
		})
	}
}

func TestHarvestAccountsExcludePhoneShaped(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest([]schema.Message{
		scammerMsg("transfer to account 123456789012 or call 9876543210"),
	})

	if len(intel.Financial.BankAccounts) != 1 || intel.Financial.BankAccounts[0] != "123456789012" {
		t.Errorf("BankAccounts = %v, want only 123456789012", intel.Financial.BankAccounts)
	}
	if len(intel.Contact.PhoneNumbers) != 1 || intel.Contact.PhoneNumbers[0] != "9876543210" {
		t.Errorf("PhoneNumbers = %v, want only 9876543210", intel.Contact.PhoneNumbers)
	}
}

func TestHarvestLinksAndCrypto(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest([]schema.Message{
		scammerMsg("verify at https://kyc-update.fake-sbi.in/verify?id=1"),
		scammerMsg("or pay btc to 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"),
	})

	if len(intel.DigitalAssets.PhishingLinks) != 1 {
		t.Errorf("PhishingLinks = %v, want 1 link", intel.DigitalAssets.PhishingLinks)
	}
	if len(intel.Financial.CryptoAddresses) != 1 {
		t.Errorf("CryptoAddresses = %v, want 1 address", intel.Financial.CryptoAddresses)
	}
}

func TestHarvestKeywords(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest([]schema.Message{
		scammerMsg("This is CBI. Digital arrest warrant issued. Share OTP now."),
	})

	got := make(map[string]bool, len(intel.SuspiciousKeywords))
	for _, kw := range intel.SuspiciousKeywords {
		got[kw] = true
	}
	for _, want := range []string{"otp", "digital arrest", "cbi"} {
		if !got[want] {
			t.Errorf("keyword %q not found in %v", want, intel.SuspiciousKeywords)
		}
	}
}

func TestHarvestSkipsHoneypotMessages(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest([]schema.Message{
		honeypotMsg("my number is 9876543210 and my upi is grandma@oksbi"),
		scammerMsg("ok noted"),
	})

	if len(intel.Contact.PhoneNumbers) != 0 {
		t.Errorf("decoy phone leaked into record: %v", intel.Contact.PhoneNumbers)
	}
	if len(intel.Financial.UPIIDs) != 0 {
		t.Errorf("decoy UPI leaked into record: %v", intel.Financial.UPIIDs)
	}
}

func TestHarvestDeduplicates(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest([]schema.Message{
		scammerMsg("pay to fraud@ybl"),
		scammerMsg("I said pay to fraud@ybl"),
	})

	if len(intel.Financial.UPIIDs) != 1 {
		t.Errorf("UPIIDs = %v, want deduplicated single entry", intel.Financial.UPIIDs)
	}
}

func TestHarvestEmptyTranscript(t *testing.T) {
	h := &Harvester{}

	intel := h.Harvest(nil)
	if intel == nil {
		t.Fatal("Harvest must never return nil")
	}
	if intel.Contact.PhoneNumbers == nil || intel.SuspiciousKeywords == nil {
		t.Error("empty record lists must be non-nil")
	}
}
