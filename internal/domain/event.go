package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAccountCreated       EventType = "account.created"
	EventAccountStatusChanged EventType = "account.status_changed"
	EventTransactionCompleted EventType = "transaction.completed"
)

type EventStatus string

const (
	EventPending   EventStatus = "PENDING"
	EventDelivered EventStatus = "DELIVERED"
	EventFailed    EventStatus = "FAILED"
)

// Event is an outbox row. It is appended inside the same atomic unit as the
// mutation it describes; delivery happens out-of-band and can never undo a
// committed transaction.
type Event struct {
	ID            uuid.UUID
	Type          EventType
	AggregateID   uuid.UUID
	CorrelationID string
	Payload       []byte // JSON
	Canonical     string // RFC 8785 (JCS) form of Payload
	Status        EventStatus
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
}
