package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSafety marks a locally generated safety-resource notice that
	// replaces a rejected assistant reply.
	RoleSafety Role = "safety"
)

// Citation points at a passage the assistant quoted.
type Citation struct {
	Reference   string `json:"reference"`
	Translation string `json:"translation,omitempty"`
}

// Attachment is a file the user attached to a message.
type Attachment struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
}

// Message is a single transcript entry.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	IsStreaming    bool         `json:"is_streaming"`
	Citations      []Citation   `json:"citations,omitempty"`
	FollowUps      []string     `json:"follow_ups,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Clone returns a deep copy so a caller can mutate its view of the
// transcript without touching the shared one.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Citations != nil {
		cp.Citations = append([]Citation(nil), m.Citations...)
	}
	if m.FollowUps != nil {
		cp.FollowUps = append([]string(nil), m.FollowUps...)
	}
	if m.Attachments != nil {
		cp.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return &cp
}
