package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"versechat/internal/models"
)

// ErrNoCurrentConversation is returned when no conversation is marked current.
var ErrNoCurrentConversation = errors.New("no current conversation")

// Service persists conversations and messages. It is the single source of
// truth for the transcript; every mutation emits a change notification so
// other execution contexts can resync.
type Service struct {
	db       *sql.DB
	notifier *Notifier
}

// NewService builds a new store service. notifier may be nil.
func NewService(db *sql.DB, notifier *Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// CreateConversation inserts a conversation and makes it current.
func (s *Service) CreateConversation(ctx context.Context, title string, mode models.Mode, translation string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New Conversation"
	}
	if mode == "" {
		mode = models.ModeStudy
	}
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET is_current = 0 WHERE is_current = 1`); err != nil {
		return nil, fmt.Errorf("clear current conversation: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (title, mode, translation, is_current, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
		title, mode, translation, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create conversation: %w", err)
	}
	s.publish(Change{ConversationID: id, Kind: ChangeConversation})
	return &models.Conversation{ID: id, Title: title, Mode: mode, Translation: translation, CreatedAt: now, UpdatedAt: now}, nil
}

// CurrentConversation returns the conversation marked current.
func (s *Service) CurrentConversation(ctx context.Context) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, mode, translation, created_at, updated_at FROM conversations WHERE is_current = 1`,
	).Scan(&c.ID, &c.Title, &c.Mode, &c.Translation, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoCurrentConversation
		}
		return nil, fmt.Errorf("current conversation: %w", err)
	}
	return &c, nil
}

// Conversation returns one conversation by id.
func (s *Service) Conversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, mode, translation, created_at, updated_at FROM conversations WHERE id = ?`,
		conversationID,
	).Scan(&c.ID, &c.Title, &c.Mode, &c.Translation, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// SwitchConversation marks another conversation current.
func (s *Service) SwitchConversation(ctx context.Context, conversationID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET is_current = 1 WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("switch conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("switch rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET is_current = 0 WHERE is_current = 1 AND id != ?`, conversationID); err != nil {
		return fmt.Errorf("clear previous current: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit switch: %w", err)
	}
	s.publish(Change{ConversationID: conversationID, Kind: ChangeConversation})
	return nil
}

// DeleteConversation removes a conversation and all its messages.
func (s *Service) DeleteConversation(ctx context.Context, conversationID int64) error {
	if conversationID <= 0 {
		return errors.New("invalid conversation id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete conversation: %w", err)
	}
	s.publish(Change{ConversationID: conversationID, Kind: ChangeConversation})
	return nil
}

// Messages returns the conversation's transcript in order.
func (s *Service) Messages(ctx context.Context, conversationID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, is_streaming, citations, follow_ups, attachments, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AddMessage stores a new message and touches the conversation.
func (s *Service) AddMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if msg == nil {
		return nil, errors.New("message cannot be nil")
	}
	if msg.ConversationID <= 0 {
		return nil, errors.New("conversation_id is required")
	}
	now := time.Now().UTC()
	citations, followUps, attachments, err := marshalExtras(msg)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, is_streaming, citations, follow_ups, attachments, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.Role, msg.Content, msg.IsStreaming, citations, followUps, attachments, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, msg.ConversationID); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	stored := msg.Clone()
	stored.ID = id
	stored.CreatedAt = now
	s.publish(Change{ConversationID: msg.ConversationID, Kind: ChangeMessages})
	return stored, nil
}

// UpdateMessage replaces a stored message's mutable fields.
func (s *Service) UpdateMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID <= 0 {
		return errors.New("message id is required")
	}
	citations, followUps, attachments, err := marshalExtras(msg)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, is_streaming = ?, citations = ?, follow_ups = ?, attachments = ? WHERE id = ? AND conversation_id = ?`,
		msg.Content, msg.IsStreaming, citations, followUps, attachments, msg.ID, msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	s.publish(Change{ConversationID: msg.ConversationID, Kind: ChangeMessages})
	return nil
}

// RemoveLastMessage deletes the conversation's last message, but only when
// it still carries the expected id. A stale cleanup racing a background
// completion therefore cannot clobber the completed message.
func (s *Service) RemoveLastMessage(ctx context.Context, conversationID, expectedID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ? AND conversation_id = ?
		 AND id = (SELECT MAX(id) FROM messages WHERE conversation_id = ?)`,
		expectedID, conversationID, conversationID,
	)
	if err != nil {
		return fmt.Errorf("remove last message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	s.publish(Change{ConversationID: conversationID, Kind: ChangeMessages})
	return nil
}

func (s *Service) publish(change Change) {
	if s.notifier != nil {
		s.notifier.Publish(change)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	m := new(models.Message)
	var citations, followUps, attachments sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.IsStreaming, &citations, &followUps, &attachments, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if citations.Valid && citations.String != "" {
		if err := json.Unmarshal([]byte(citations.String), &m.Citations); err != nil {
			return nil, fmt.Errorf("decode citations: %w", err)
		}
	}
	if followUps.Valid && followUps.String != "" {
		if err := json.Unmarshal([]byte(followUps.String), &m.FollowUps); err != nil {
			return nil, fmt.Errorf("decode follow_ups: %w", err)
		}
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return m, nil
}

func marshalExtras(msg *models.Message) (citations, followUps, attachments string, err error) {
	if len(msg.Citations) > 0 {
		data, err := json.Marshal(msg.Citations)
		if err != nil {
			return "", "", "", fmt.Errorf("encode citations: %w", err)
		}
		citations = string(data)
	}
	if len(msg.FollowUps) > 0 {
		data, err := json.Marshal(msg.FollowUps)
		if err != nil {
			return "", "", "", fmt.Errorf("encode follow_ups: %w", err)
		}
		followUps = string(data)
	}
	if len(msg.Attachments) > 0 {
		data, err := json.Marshal(msg.Attachments)
		if err != nil {
			return "", "", "", fmt.Errorf("encode attachments: %w", err)
		}
		attachments = string(data)
	}
	return citations, followUps, attachments, nil
}
