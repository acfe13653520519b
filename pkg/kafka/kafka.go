package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrDisabled = errors.New("kafka disabled")

type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// Publisher writes pre-serialized messages. The topic travels with each
// message so one writer serves every outbox topic.
type Publisher struct {
	w *kafka.Writer
}

func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewPublisher returns nil when no brokers are configured; a nil Publisher
// answers ErrDisabled.
func NewPublisher(brokersCSV string) *Publisher {
	brokers := ParseBrokers(brokersCSV)
	if len(brokers) == 0 {
		return nil
	}
	return &Publisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

func (p *Publisher) Publish(ctx context.Context, msgs ...Message) error {
	if p == nil {
		return ErrDisabled
	}
	out := make([]kafka.Message, 0, len(msgs))
	now := time.Now().UTC()
	for _, m := range msgs {
		out = append(out, kafka.Message{Topic: m.Topic, Key: []byte(m.Key), Value: m.Payload, Time: now})
	}
	return p.w.WriteMessages(ctx, out...)
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.w.Close()
}
