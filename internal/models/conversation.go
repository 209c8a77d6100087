package models

import "time"

// Mode selects the assistant's answering style.
type Mode string

const (
	ModeStudy      Mode = "study"
	ModeDevotional Mode = "devotional"
	ModePrayer     Mode = "prayer"
)

// Conversation groups an ordered sequence of messages. Exactly one
// conversation is current at a time.
type Conversation struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Mode        Mode      `json:"mode"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
