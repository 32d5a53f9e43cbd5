package engagement

import "testing"

func TestJaccardWords(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello beta how are you", "hello beta how are you", 1},
		{"disjoint", "send money now", "hello there friend", 0},
		{"both empty", "", "", 1},
		{"one empty", "hello", "", 0},
		{"case insensitive", "HELLO Beta", "hello beta", 1},
		{"punctuation stripped", "hello, beta!", "hello beta", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JaccardWords(tt.a, tt.b); got != tt.want {
				t.Errorf("JaccardWords(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestJaccardWordsPartialOverlap(t *testing.T) {
	// {please, send, otp} vs {please, send, money}: 2 shared of 4 total.
	got := JaccardWords("please send otp", "please send money")
	if got != 0.5 {
		t.Errorf("partial overlap = %v, want 0.5", got)
	}
}

func TestJaccardWordsThresholdBehavior(t *testing.T) {
	a := "Arey beta, who is speaking? I am not understanding properly."
	b := "Wait, I am going to bank. Give me branch address, I will meet you there."
	if sim := JaccardWords(a, b); sim >= 0.6 {
		t.Errorf("unrelated replies scored %v, should be below 0.6", sim)
	}

	c := "Arey beta, who is speaking? I am not understanding."
	if sim := JaccardWords(a, c); sim < 0.6 {
		t.Errorf("near-identical replies scored %v, should be at or above 0.6", sim)
	}
}
