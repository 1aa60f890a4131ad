package model

import "time"

type AttachmentKind string

const (
	KindImage    AttachmentKind = "image"
	KindDocument AttachmentKind = "document"
)

// Attachment is a durably stored binary referenced from a message. The URL
// is permanent once the store has acknowledged the upload.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Message is immutable after creation. ID and CreatedAt are assigned by the
// ledger on append.
type Message struct {
	ID         int64       `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Empty reports whether the message carries neither text nor an attachment.
// Such a message is invalid and must never reach the ledger.
func (m *Message) Empty() bool {
	return m.Text == "" && m.Attachment == nil
}

// ConversationKey identifies all messages between two parties regardless of
// who sent which. Canonical form is "dm:<low>:<high>" with the party IDs
// ordered lexically.
type ConversationKey string

func KeyFor(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey("dm:" + a + ":" + b)
}

func (m *Message) Conversation() ConversationKey {
	return KeyFor(m.SenderID, m.ReceiverID)
}
