package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies bin events published downstream
type EventType string

const (
	EventReadingRecorded EventType = "reading_recorded"
	EventAlertSent       EventType = "alert_sent"
	EventAlertFailed     EventType = "alert_failed"
)

// BinEvent wraps something that happened to a bin for the event stream
type BinEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Bin        BinName   `json:"bin"`
	Level      int       `json:"level"`
	Manual     bool      `json:"manual,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewBinEvent creates an event with a fresh ID
func NewBinEvent(eventType EventType, bin BinName, level int, at time.Time) *BinEvent {
	return &BinEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Bin:        bin,
		Level:      level,
		OccurredAt: at.UTC(),
	}
}

// PartitionKey keeps events of one bin ordered
func (e *BinEvent) PartitionKey() string {
	return string(e.Bin)
}
