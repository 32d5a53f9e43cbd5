package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TurnRequest is the inbound turn payload accepted by the honeypot endpoint.
type TurnRequest struct {
	SessionID           string            `json:"sessionId" validate:"required,max=256"`
	Message             MessageInput      `json:"message"`
	ConversationHistory []MessageInput    `json:"conversationHistory,omitempty" validate:"max=1000,dive"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// MessageInput is the wire format of a single message. Sender and Timestamp
// are optional and defaulted during normalization.
type MessageInput struct {
	Sender    string `json:"sender,omitempty" validate:"max=64"`
	Text      string `json:"text" validate:"required,max=65536"`
	Timestamp int64  `json:"timestamp,omitempty" validate:"min=0"`
}

// Validator validates inbound turn requests before any state mutation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a request validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate checks a turn request against the schema. It does not mutate the
// request; rejected requests must leave no trace in the session store.
func (v *Validator) Validate(req *TurnRequest) error {
	if err := v.validate.Struct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if req.Message.Text == "" {
		return fmt.Errorf("message.text is required")
	}
	return nil
}

// Normalize applies wire defaults: missing sender becomes the counterpart
// tag, missing timestamps become the arrival time.
func Normalize(in MessageInput, arrival time.Time) Message {
	sender := Sender(in.Sender)
	if !sender.IsValid() {
		sender = SenderScammer
	}
	ts := in.Timestamp
	if ts == 0 {
		ts = arrival.UnixMilli()
	}
	return Message{
		Sender:    sender,
		Text:      in.Text,
		Timestamp: ts,
	}
}
