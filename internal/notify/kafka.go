package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"tradealert/internal/config"
	"tradealert/internal/signal"
)

// messageWriter is the part of *kafka.Writer the handler uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes the webhook envelope to a topic, keyed by ticker so a
// ticker's signals stay on one partition.
type Kafka struct {
	brokers []string
	topic   string
	timeout time.Duration
	w       messageWriter
}

func NewKafka(cfg config.KafkaConfig) *Kafka {
	k := &Kafka{
		brokers: cfg.Brokers.Compact(),
		topic:   strings.TrimSpace(cfg.Topic),
		timeout: parseTimeout(cfg.Timeout),
	}
	if k.IsConfigured() {
		k.w = &kafka.Writer{
			Addr:                   kafka.TCP(k.brokers...),
			Topic:                  k.topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			MaxAttempts:            1,
			WriteTimeout:           k.timeout,
			BatchSize:              1,
			AllowAutoTopicCreation: true,
		}
	}
	return k
}

func (k *Kafka) Name() string       { return NameKafka }
func (k *Kafka) IsConfigured() bool { return len(k.brokers) > 0 && k.topic != "" }

func (k *Kafka) Send(ctx context.Context, s signal.TradeSignal) error {
	if !k.IsConfigured() || k.w == nil {
		return ErrNotConfigured
	}
	v, err := json.Marshal(NewEnvelope(s))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(s.Ticker),
		Value: v,
		Time:  s.GeneratedAt,
		Headers: []kafka.Header{
			{Key: "alert_type", Value: []byte(AlertTypeTradeSignal)},
			{Key: "signal_id", Value: []byte(s.ID)},
		},
	})
}

func (k *Kafka) Close() error {
	if k.w == nil {
		return nil
	}
	return k.w.Close()
}
