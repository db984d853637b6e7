package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Merilairon/colruyt-scraper/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	writeErr error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishChangesEmitsOneMessagePerChange(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisher(writer)
	pub.now = func() time.Time { return time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC) }

	changes := []models.PriceChange{
		{ProductID: "A", PriceChangeType: models.PriceChangeBasic, PriceChange: -1.00, OldPrice: 10, NewPrice: 9},
		{ProductID: "B", PriceChangeType: models.PriceChangeQuantity, PriceChange: 0.50, OldPrice: 2, NewPrice: 2.50},
	}

	if err := pub.PublishChanges(context.Background(), changes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(writer.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(writer.messages))
	}

	seenIDs := map[string]bool{}
	for i, msg := range writer.messages {
		if string(msg.Key) != changes[i].ProductID {
			t.Errorf("expected message keyed by product id %q, got %q", changes[i].ProductID, msg.Key)
		}
		var event changeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			t.Fatalf("message %d does not decode: %v", i, err)
		}
		if event.EventID == "" {
			t.Error("expected a generated event id")
		}
		if seenIDs[event.EventID] {
			t.Errorf("event id %s reused", event.EventID)
		}
		seenIDs[event.EventID] = true
		if !event.EmittedAt.Equal(time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected emission time %s", event.EmittedAt)
		}
		if event.Change.ProductID != changes[i].ProductID {
			t.Errorf("expected change payload for %q, got %q", changes[i].ProductID, event.Change.ProductID)
		}
	}
}

func TestPublishChangesSkipsEmptyBatch(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisher(writer)

	if err := pub.PublishChanges(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.messages) != 0 {
		t.Errorf("expected no messages for an empty batch, got %d", len(writer.messages))
	}
}

func TestPublishChangesSurfacesWriteErrors(t *testing.T) {
	boom := errors.New("broker unavailable")
	pub := NewPublisher(&fakeWriter{writeErr: boom})

	err := pub.PublishChanges(context.Background(), []models.PriceChange{{ProductID: "A"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error to surface, got %v", err)
	}
}

func TestCloseClosesWriter(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisher(writer)

	if err := pub.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !writer.closed {
		t.Error("expected underlying writer closed")
	}
}
