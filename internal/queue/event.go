// Package queue defines the borrow lifecycle notifications exchanged over
// RabbitMQ, the publisher used by the lifecycle engine and the consumer
// that appends them to the borrow log.
package queue

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// BorrowQueueName is the durable queue carrying lifecycle notifications.
const BorrowQueueName = "borrow.events"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BorrowEventType names a committed lifecycle change.
type BorrowEventType string

const (
	EventBorrowCreated  BorrowEventType = "borrow.created"
	EventBorrowReturned BorrowEventType = "borrow.returned"
	EventBorrowDeleted  BorrowEventType = "borrow.deleted"
)

// BorrowEvent is published after a lifecycle operation commits.  It is a
// notification only; the database stays the source of truth.
type BorrowEvent struct {
	Type          BorrowEventType `json:"type"`
	TransactionID uint64          `json:"transaction_id"`
	BookID        uint64          `json:"book_id"`
	BorrowerID    uint64          `json:"borrower_id,omitempty"`
	ReturnDate    *time.Time      `json:"return_date,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Encode returns the JSON body of the event.
func (e BorrowEvent) Encode() ([]byte, error) { return json.Marshal(e) }

// DecodeBorrowEvent parses a message body.  Unknown event types are
// rejected so that the consumer can dead-letter them.
func DecodeBorrowEvent(body []byte) (BorrowEvent, error) {
	var ev BorrowEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return BorrowEvent{}, fmt.Errorf("unmarshal: %w", err)
	}
	switch ev.Type {
	case EventBorrowCreated, EventBorrowReturned, EventBorrowDeleted:
	default:
		return BorrowEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.TransactionID == 0 {
		return BorrowEvent{}, fmt.Errorf("event %s without transaction_id", ev.Type)
	}
	return ev, nil
}

// LogLine renders the event as one line of the borrow log.
func (e BorrowEvent) LogLine() string {
	due := "-"
	if e.ReturnDate != nil {
		due = e.ReturnDate.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s] %s | transaction_id=%d | book_id=%d | borrower_id=%d | return_date=%s\n",
		e.OccurredAt.UTC().Format(time.RFC3339), e.Type, e.TransactionID, e.BookID, e.BorrowerID, due)
}
