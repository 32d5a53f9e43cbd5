// Package gateway defines the external language-model capabilities the
// honeypot consumes: classification, decoy reply generation, continuation
// decisions, and intelligence extraction. The core never reasons over text
// itself; it only decides when to call these and what to do with the result.
package gateway

import (
	"context"

	"honeytrap/internal/schema"
)

// Classifier produces a structured scam verdict for one inbound message
// given the conversation so far (excluding that message).
type Classifier interface {
	Classify(ctx context.Context, msg schema.Message, history []schema.Message) (*schema.Verdict, error)
}

// ReplyRequest carries everything a Responder needs for one decoy reply.
type ReplyRequest struct {
	Message       schema.Message
	History       []schema.Message // prior history, excluding Message
	ScamType      string
	Stage         string // conversation stage label, owned by the caller
	Metadata      map[string]string
	RecentReplies []string // replies the result must not duplicate
}

// Responder generates a single free-text decoy reply.
type Responder interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// Advisor decides whether engagement should continue.
type Advisor interface {
	Advise(ctx context.Context, history []schema.Message, messageCount int, intelSummary string) (*schema.Continuation, error)
}

// Extractor converts a full transcript into a structured intelligence record.
type Extractor interface {
	Extract(ctx context.Context, history []schema.Message, metadata map[string]string) (*schema.Intelligence, error)
}
