package broker

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/dakiya/pkg/model"
)

// KafkaPublisher emits persisted messages onto the event stream consumed
// by the conversation indexer. Messages are keyed by conversation so a
// single conversation stays on one partition, in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg *model.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Conversation()),
		Value: value,
		Time:  msg.CreatedAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
