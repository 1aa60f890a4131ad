package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mahaj/dakiya/pkg/db"
)

// Conversation is one entry in a party's recent-conversations index.
type Conversation struct {
	PartyID      string    `json:"party_id"`
	OtherPartyID string    `json:"other_party_id"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Conversations reads and maintains the per-party conversation index. The
// index is derived from the message event stream by the indexer; it is a
// convenience view, not part of the delivery pipeline.
type Conversations struct {
	db *db.Session
}

func NewConversations(session *db.Session) *Conversations {
	return &Conversations{db: session}
}

// Recent lists the counterparts partyID has exchanged messages with, most
// recently active first.
func (c *Conversations) Recent(ctx context.Context, partyID string) ([]Conversation, error) {
	iter := c.db.Query(
		`SELECT party_id, other_party_id, last_updated FROM user_conversations WHERE party_id = ?`,
		partyID,
	).WithContext(ctx).Iter()

	var conversations []Conversation
	var entry Conversation
	for iter.Scan(&entry.PartyID, &entry.OtherPartyID, &entry.LastUpdated) {
		conversations = append(conversations, entry)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastUpdated.After(conversations[j].LastUpdated)
	})
	return conversations, nil
}

// Touch records activity between two parties at the given instant, one
// index row per direction.
func (c *Conversations) Touch(ctx context.Context, a, b string, at time.Time) error {
	const q = `INSERT INTO user_conversations (party_id, other_party_id, last_updated) VALUES (?, ?, ?)`
	if err := c.db.Query(q, a, b, at).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := c.db.Query(q, b, a, at).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
