package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"versechat/internal/config"
	"versechat/internal/models"
	"versechat/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestConversationLifecycle(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)
	ctx := context.Background()

	if _, err := svc.CurrentConversation(ctx); !errors.Is(err, ErrNoCurrentConversation) {
		t.Fatalf("expected ErrNoCurrentConversation, got %v", err)
	}

	first, err := svc.CreateConversation(ctx, "Morning Study", models.ModeStudy, "ESV")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if first.ID <= 0 || first.Title != "Morning Study" {
		t.Fatalf("unexpected conversation: %#v", first)
	}

	second, err := svc.CreateConversation(ctx, "", models.ModeDevotional, "NIV")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if second.Title != "New Conversation" {
		t.Fatalf("blank title not defaulted: %q", second.Title)
	}

	// creating a conversation makes it current and demotes the previous one
	current, err := svc.CurrentConversation(ctx)
	if err != nil {
		t.Fatalf("CurrentConversation: %v", err)
	}
	if current.ID != second.ID {
		t.Fatalf("current = %d, want %d", current.ID, second.ID)
	}

	if err := svc.SwitchConversation(ctx, first.ID); err != nil {
		t.Fatalf("SwitchConversation: %v", err)
	}
	current, err = svc.CurrentConversation(ctx)
	if err != nil {
		t.Fatalf("CurrentConversation after switch: %v", err)
	}
	if current.ID != first.ID {
		t.Fatalf("current = %d, want %d", current.ID, first.ID)
	}

	if err := svc.SwitchConversation(ctx, 9999); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("switch to missing conversation: %v", err)
	}

	if err := svc.DeleteConversation(ctx, second.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := svc.Conversation(ctx, second.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("deleted conversation still readable: %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "Study", models.ModeStudy, "ESV")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	user, err := svc.AddMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        "What does John 3:16 mean?",
		Attachments:    []models.Attachment{{Name: "notes.pdf", Path: "/tmp/notes.pdf", MimeType: "application/pdf"}},
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	placeholder, err := svc.AddMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		IsStreaming:    true,
	})
	if err != nil {
		t.Fatalf("AddMessage placeholder: %v", err)
	}
	if placeholder.ID <= user.ID {
		t.Fatalf("ids not monotonic: %d then %d", user.ID, placeholder.ID)
	}

	done := placeholder.Clone()
	done.Content = "It speaks of God's love."
	done.IsStreaming = false
	done.Citations = []models.Citation{{Reference: "John 3:16", Translation: "ESV"}}
	done.FollowUps = []string{"Who is the Son?", "What is eternal life?"}
	if err := svc.UpdateMessage(ctx, done); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}

	messages, err := svc.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Attachments[0].Name != "notes.pdf" {
		t.Fatalf("attachment lost: %#v", messages[0].Attachments)
	}
	got := messages[1]
	if got.Content != "It speaks of God's love." || got.IsStreaming {
		t.Fatalf("update not persisted: %#v", got)
	}
	if len(got.Citations) != 1 || got.Citations[0].Reference != "John 3:16" {
		t.Fatalf("citations lost: %#v", got.Citations)
	}
	if len(got.FollowUps) != 2 {
		t.Fatalf("follow-ups lost: %#v", got.FollowUps)
	}

	missing := done.Clone()
	missing.ID = 9999
	if err := svc.UpdateMessage(ctx, missing); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("update of missing message: %v", err)
	}
}

func TestRemoveLastMessageGuard(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "Study", models.ModeStudy, "ESV")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	first, err := svc.AddMessage(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: "one"})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	second, err := svc.AddMessage(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleAssistant, Content: "two"})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	// a stale id must never delete: neither an older message nor one that
	// is no longer last
	if err := svc.RemoveLastMessage(ctx, conv.ID, first.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("stale remove: %v", err)
	}
	messages, err := svc.Messages(ctx, conv.ID)
	if err != nil || len(messages) != 2 {
		t.Fatalf("stale remove mutated the transcript: %d messages, err=%v", len(messages), err)
	}

	if err := svc.RemoveLastMessage(ctx, conv.ID, second.ID); err != nil {
		t.Fatalf("RemoveLastMessage: %v", err)
	}
	messages, err = svc.Messages(ctx, conv.ID)
	if err != nil || len(messages) != 1 || messages[0].ID != first.ID {
		t.Fatalf("remove did not drop the last message: %#v err=%v", messages, err)
	}

	if err := svc.RemoveLastMessage(ctx, conv.ID, second.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("double remove: %v", err)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "Study", models.ModeStudy, "ESV")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := svc.AddMessage(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: "one"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := svc.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	messages, err := svc.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("messages survived conversation delete: %d", len(messages))
	}

	if err := svc.DeleteConversation(ctx, conv.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("double delete: %v", err)
	}
}
