package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// BookEventsChannel is the broker channel book lifecycle events go to.
const BookEventsChannel = "book-events"

const (
	eventBookCreated = "book.created"
	eventBookUpdated = "book.updated"
	eventBookDeleted = "book.deleted"
)

// Publisher sends messages to a broker channel. *mq.MQ satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// BookEvent is the payload published after a successful book write.
type BookEvent struct {
	Type       string    `json:"type"`
	BookID     int       `json:"book_id"`
	ActorID    int       `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// publishEvent emits a book lifecycle event. Publishing is fire and
// forget: failures are logged and never affect the request outcome. A
// nil publisher disables events.
func (s *BookService) publishEvent(ctx context.Context, eventType string, bookID, actorID int) {
	if s.publisher == nil {
		return
	}

	event := BookEvent{
		Type:       eventType,
		BookID:     bookID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode book event", "type", eventType, "error", err)
		return
	}

	attrs := map[string]string{
		"type":    eventType,
		"book_id": strconv.Itoa(bookID),
	}
	if _, err := s.publisher.Publish(ctx, BookEventsChannel, data, attrs); err != nil {
		s.logger.WarnContext(ctx, "failed to publish book event", "type", eventType, "book_id", bookID, "error", err)
	}
}
