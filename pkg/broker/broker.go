// Package broker orchestrates a send: validate, ingest the attachment,
// persist, then best-effort push to the receiver's live connection.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mahaj/dakiya/pkg/ingest"
	"github.com/mahaj/dakiya/pkg/model"
	"github.com/mahaj/dakiya/pkg/presence"
)

// ErrEmptyMessage rejects a send carrying neither text nor an attachment.
var ErrEmptyMessage = errors.New("message needs text or an attachment")

// EventNewMessage is the event name pushed to a live receiver.
const EventNewMessage = "newMessage"

const publishTimeout = 5 * time.Second

type Ingestor interface {
	Ingest(ctx context.Context, upload ingest.Upload) (*model.Attachment, error)
}

type Ledger interface {
	Append(ctx context.Context, msg model.Message) (*model.Message, error)
	Query(ctx context.Context, key model.ConversationKey) ([]model.Message, error)
}

type Presence interface {
	Lookup(partyID string) (presence.Conn, bool)
}

// Publisher is the post-persist event tap feeding the indexer. Optional
// and best-effort: a publish failure never fails a send.
type Publisher interface {
	Publish(ctx context.Context, msg *model.Message) error
}

type Broker struct {
	ingestor Ingestor
	ledger   Ledger
	presence Presence
	events   Publisher
	log      *slog.Logger
}

func New(ingestor Ingestor, ledger Ledger, reg Presence, events Publisher, log *slog.Logger) *Broker {
	return &Broker{ingestor: ingestor, ledger: ledger, presence: reg, events: events, log: log}
}

type SendRequest struct {
	SenderID   string
	ReceiverID string
	Text       string
	Upload     *ingest.Upload
}

type pushEvent struct {
	Event   string         `json:"event"`
	Payload *model.Message `json:"payload"`
}

// Send runs the fallible pipeline (validate, ingest, append) and then the
// non-propagating notification step. Any failure before the append aborts
// the whole send; once the ledger has acknowledged, the send is reported
// successful regardless of push outcome.
func (b *Broker) Send(ctx context.Context, r SendRequest) (*model.Message, error) {
	msg := model.Message{
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Text:       strings.TrimSpace(r.Text),
	}
	if msg.Text == "" && r.Upload == nil {
		return nil, ErrEmptyMessage
	}

	// Attachment durability is established before message durability, so
	// no persisted message can reference a blob that was never stored.
	if r.Upload != nil {
		att, err := b.ingestor.Ingest(ctx, *r.Upload)
		if err != nil {
			return nil, err
		}
		msg.Attachment = att
	}

	persisted, err := b.ledger.Append(ctx, msg)
	if err != nil {
		// The attachment may already be durable at this point. Orphaned
		// blobs are a cleanup concern outside this pipeline; retrying
		// the whole send is cheap.
		return nil, err
	}

	b.notify(persisted)
	b.publish(persisted)
	return persisted, nil
}

// History returns the full conversation between two parties, oldest first.
func (b *Broker) History(ctx context.Context, partyA, partyB string) ([]model.Message, error) {
	return b.ledger.Query(ctx, model.KeyFor(partyA, partyB))
}

// notify pushes the persisted message to the receiver's live connection,
// if any. Push failure is logged and swallowed: the message is already
// durable and the receiver will see it on the next history fetch.
func (b *Broker) notify(msg *model.Message) {
	conn, ok := b.presence.Lookup(msg.ReceiverID)
	if !ok {
		return
	}
	payload, err := json.Marshal(pushEvent{Event: EventNewMessage, Payload: msg})
	if err != nil {
		b.log.Error("marshaling push event", "error", err)
		return
	}
	if err := conn.Send(payload); err != nil {
		b.log.Warn("push to live connection failed", "receiver", msg.ReceiverID, "error", err)
	}
}

// publish hands the persisted message to the event stream without holding
// up the send response: like notify, it is fire-and-forget with only
// logging as a side effect.
func (b *Broker) publish(msg *model.Message) {
	if b.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := b.events.Publish(ctx, msg); err != nil {
			b.log.Warn("publishing message event", "id", msg.ID, "error", err)
		}
	}()
}
