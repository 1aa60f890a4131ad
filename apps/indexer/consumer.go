package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/dakiya/pkg/ledger"
	"github.com/mahaj/dakiya/pkg/model"
)

// Consumer tails the message event stream and keeps the per-party
// conversation index current. The index is derived state: replaying the
// stream rebuilds it.
type Consumer struct {
	reader        *kafka.Reader
	conversations *ledger.Conversations
	log           *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, conversations *ledger.Conversations, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, conversations: conversations, log: log}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("reading message event, retrying in 1s", "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var msg model.Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.log.Warn("unmarshaling message event", "error", err)
			continue
		}

		if err := c.conversations.Touch(ctx, msg.SenderID, msg.ReceiverID, msg.CreatedAt); err != nil {
			c.log.Error("updating conversation index", "id", msg.ID, "error", err)
			continue
		}
		c.log.Debug("conversation index updated", "id", msg.ID, "conversation", msg.Conversation())
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
