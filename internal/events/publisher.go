package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/Merilairon/colruyt-scraper/config"
	"github.com/Merilairon/colruyt-scraper/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "events").Logger()

// MessageWriter is the slice of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds the writer for the price change topic.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// changeEvent is the wire form of one published price change.
type changeEvent struct {
	EventID   string             `json:"eventId"`
	EmittedAt time.Time          `json:"emittedAt"`
	Change    models.PriceChange `json:"change"`
}

// Publisher emits persisted price changes as one message per change,
// keyed by product id so per-product ordering holds across partitions.
type Publisher struct {
	writer MessageWriter
	now    func() time.Time
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer, now: time.Now}
}

func (p *Publisher) PublishChanges(ctx context.Context, changes []models.PriceChange) error {
	if len(changes) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(changes))
	for _, change := range changes {
		event := changeEvent{
			EventID:   uuid.NewString(),
			EmittedAt: p.now().UTC(),
			Change:    change,
		}
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encoding change event for %s: %w", change.ProductID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(change.ProductID),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d change events: %w", len(msgs), err)
	}
	logger.Info().Int("events", len(msgs)).Msg("price change events published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
