package engagement

// Conversation stage labels. Stage boundaries are policy constants keyed on
// the number of messages exchanged so far, not derived from content.
const (
	StageInitialContact    = "initial_contact"
	StageBuildingConfusion = "building_confusion"
	StageShowingConcern    = "showing_concern"
	StageTryingToComply    = "trying_to_comply"
	StageGettingSuspicious = "getting_suspicious"
	StageDeepEngagement    = "deep_engagement"
)

// StageFor maps a message count to a conversation stage.
func StageFor(messageCount int) string {
	switch {
	case messageCount <= 1:
		return StageInitialContact
	case messageCount <= 3:
		return StageBuildingConfusion
	case messageCount <= 6:
		return StageShowingConcern
	case messageCount <= 10:
		return StageTryingToComply
	case messageCount <= 15:
		return StageGettingSuspicious
	default:
		return StageDeepEngagement
	}
}

// fallbackPools are the canned decoy replies used when reply generation
// fails or produces a near-duplicate. Grouped by conversation phase; the
// non-repetition contract is enforced in exactly one place: Select.
var fallbackPools = map[string][]string{
	"early": {
		"Arey beta, who is speaking? I am not understanding properly.",
		"Kya bol rahe ho? My phone is not clear, please repeat.",
		"What? Which account? I have many accounts...",
		"Please wait, my glasses are not here. What you said?",
		"Hello? Yes yes, I am listening. What is the matter?",
		"Accha accha, but first tell me your name please.",
	},
	"middle": {
		"Oh my god, my money! Please help me beta. What should I do?",
		"Wait wait, let me call my son first. He handles all this.",
		"Arey, I am very worried now. Which bank you are from? Tell me name.",
		"Please send me in writing. I cannot remember all this.",
		"Beta, what is your phone number? I want to call you back on landline.",
		"My UPI is not working. Can you give your UPI? I will send from my son's phone.",
	},
	"late": {
		"Still not working beta. Network problem maybe. Give me your number, I will call.",
		"I typed OTP but it showing error. Let me try again... what was it?",
		"My daughter is asking who is calling. What should I tell her?",
		"Send me link again, previous one not opening. Very slow net.",
		"Wait, I am going to bank. Give me branch address, I will meet you there.",
		"You are from which department? Give me your employee ID I will note down.",
	},
}

// poolFor maps a stage label to its fallback pool phase.
func poolFor(stage string) []string {
	switch stage {
	case StageInitialContact, StageBuildingConfusion:
		return fallbackPools["early"]
	case StageShowingConcern, StageTryingToComply:
		return fallbackPools["middle"]
	default:
		return fallbackPools["late"]
	}
}

// FallbackSelector picks canned replies while enforcing the non-repetition
// policy against recently used replies.
type FallbackSelector struct {
	similarity SimilarityFunc
	threshold  float64
}

// NewFallbackSelector creates a selector using the given similarity function
// and duplicate threshold.
func NewFallbackSelector(similarity SimilarityFunc, threshold float64) *FallbackSelector {
	return &FallbackSelector{similarity: similarity, threshold: threshold}
}

// Select returns the first stage-appropriate reply that is not a near
// duplicate of any excluded reply. Deterministic: pool order decides ties.
// If every candidate is excluded, the least recently used entry wins so the
// conversation always gets some reply.
func (f *FallbackSelector) Select(stage string, exclude []string) string {
	pool := poolFor(stage)
	for _, candidate := range pool {
		if !f.nearDuplicate(candidate, exclude) {
			return candidate
		}
	}
	return pool[0]
}

func (f *FallbackSelector) nearDuplicate(candidate string, exclude []string) bool {
	for _, prev := range exclude {
		if f.similarity(candidate, prev) >= f.threshold {
			return true
		}
	}
	return false
}
