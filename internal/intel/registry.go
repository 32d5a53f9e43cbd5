package intel

import (
	"context"
	"strings"
	"sync"
	"time"
)

// IdentifierType categorizes scammer identifiers.
type IdentifierType string

const (
	IdentifierPhone       IdentifierType = "phone"
	IdentifierUPI         IdentifierType = "upi"
	IdentifierBankAccount IdentifierType = "bank_account"
	IdentifierEmail       IdentifierType = "email"
	IdentifierURL         IdentifierType = "url"
)

// Identifier is a single scammer-linked value.
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

// Entry is the registry record for one identifier.
type Entry struct {
	Identifier   Identifier `json:"identifier"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	SessionCount int        `json:"session_count"`
}

// Registry tracks scammer identifiers across sessions.
type Registry interface {
	// Record registers a sighting, creating the entry on first sight.
	Record(ctx context.Context, id Identifier) error
	// Lookup returns the entry for an identifier, or nil when unseen.
	Lookup(ctx context.Context, id Identifier) (*Entry, error)
	// Count returns the number of distinct identifiers tracked.
	Count(ctx context.Context) (int, error)
}

// normalizeKey builds the canonical registry key for an identifier.
func normalizeKey(id Identifier) string {
	return string(id.Type) + ":" + strings.ToLower(strings.TrimSpace(id.Value))
}

// MemoryRegistry is the in-process Registry. Used standalone in single-node
// deployments and as the fallback when Redis is not configured.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]*Entry)}
}

func (r *MemoryRegistry) Record(_ context.Context, id Identifier) error {
	key := normalizeKey(id)
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.LastSeen = now
		e.SessionCount++
		return nil
	}
	r.entries[key] = &Entry{
		Identifier:   id,
		FirstSeen:    now,
		LastSeen:     now,
		SessionCount: 1,
	}
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, id Identifier) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalizeKey(id)]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryRegistry) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}
