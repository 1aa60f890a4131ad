// Package ledger is the append-only message store, keyed by conversation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahaj/dakiya/pkg/db"
	"github.com/mahaj/dakiya/pkg/model"
	"github.com/mahaj/dakiya/pkg/snowflake"
)

var ErrPersistence = errors.New("message persistence failure")

// Ledger assigns message identity and appends to ScyllaDB. The snowflake
// id is the clustering column, so the order appends are acknowledged is
// the order queries return, independent of wall-clock skew between
// concurrent senders.
type Ledger struct {
	db  *db.Session
	ids *snowflake.Node
}

func New(session *db.Session, ids *snowflake.Node) *Ledger {
	return &Ledger{db: session, ids: ids}
}

// Append assigns id and createdAt if unset, stores the message, and
// returns it with identity fields populated. Once Append returns nil, an
// immediate Query for the same conversation includes the message.
func (l *Ledger) Append(ctx context.Context, msg model.Message) (*model.Message, error) {
	if msg.Empty() {
		return nil, fmt.Errorf("%w: message has neither text nor attachment", ErrPersistence)
	}
	if msg.ID == 0 {
		msg.ID = l.ids.Generate()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = snowflake.Time(msg.ID)
	}

	var attURL, attMime string
	if msg.Attachment != nil {
		attURL = msg.Attachment.URL
		attMime = msg.Attachment.MimeType
	}

	err := l.db.Query(
		`INSERT INTO messages (conversation_key, id, sender_id, receiver_id, body, attachment_url, attachment_mime, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(msg.Conversation()), msg.ID, msg.SenderID, msg.ReceiverID,
		msg.Text, attURL, attMime, msg.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &msg, nil
}

// Query returns every message for the conversation, ascending by id.
// No pagination; large histories are the caller's concern.
func (l *Ledger) Query(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	iter := l.db.Query(
		`SELECT id, sender_id, receiver_id, body, attachment_url, attachment_mime, created_at
		 FROM messages WHERE conversation_key = ?`,
		string(key),
	).WithContext(ctx).Iter()

	var (
		messages                                []model.Message
		id                                      int64
		sender, receiver, body, attURL, attMime string
		createdAt                               time.Time
	)
	for iter.Scan(&id, &sender, &receiver, &body, &attURL, &attMime, &createdAt) {
		msg := model.Message{
			ID:         id,
			SenderID:   sender,
			ReceiverID: receiver,
			Text:       body,
			CreatedAt:  createdAt,
		}
		if attURL != "" {
			msg.Attachment = &model.Attachment{URL: attURL, MimeType: attMime}
		}
		messages = append(messages, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return messages, nil
}
