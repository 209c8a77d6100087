package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"versechat/internal/redis"
)

const (
	processingTTL = 10 * time.Minute
	completedTTL  = 24 * time.Hour
)

// Service records generation progress in redis so a client that left mid
// generation can discover, on relaunch, that its answer finished. All
// methods are best-effort; a lost marker only costs a notification.
type Service struct {
	client *redis.Client

	mu      sync.Mutex
	current int64
}

func NewService(client *redis.Client) *Service {
	return &Service{client: client}
}

// StartProcessing marks a conversation as generating.
func (s *Service) StartProcessing(conversationID int64) {
	if s == nil || s.client == nil {
		return
	}
	s.mu.Lock()
	s.current = conversationID
	s.mu.Unlock()
	ctx := context.Background()
	if err := s.client.Set(ctx, processingKey(conversationID), time.Now().UTC().Format(time.RFC3339), processingTTL); err != nil {
		log.Printf("mark processing for conversation %d: %v", conversationID, err)
	}
}

// CompleteProcessing clears the processing marker and leaves a completion
// summary behind for a relaunching client.
func (s *Service) CompleteProcessing(conversationID int64, summary string) {
	if s == nil || s.client == nil {
		return
	}
	s.mu.Lock()
	if s.current == conversationID {
		s.current = 0
	}
	s.mu.Unlock()
	ctx := context.Background()
	if err := s.client.Del(ctx, processingKey(conversationID)); err != nil {
		log.Printf("clear processing for conversation %d: %v", conversationID, err)
	}
	if summary == "" {
		return
	}
	if err := s.client.Set(ctx, completedKey(conversationID), summary, completedTTL); err != nil {
		log.Printf("store completion summary for conversation %d: %v", conversationID, err)
	}
}

// CancelProcessing clears the marker for the conversation most recently
// started. Cancellation leaves no completion summary.
func (s *Service) CancelProcessing() {
	if s == nil || s.client == nil {
		return
	}
	s.mu.Lock()
	conversationID := s.current
	s.current = 0
	s.mu.Unlock()
	if conversationID == 0 {
		return
	}
	if err := s.client.Del(context.Background(), processingKey(conversationID)); err != nil {
		log.Printf("clear processing for conversation %d: %v", conversationID, err)
	}
}

// CompletedSummary returns the completion summary left for a conversation,
// if one exists.
func (s *Service) CompletedSummary(ctx context.Context, conversationID int64) (string, bool) {
	if s == nil || s.client == nil {
		return "", false
	}
	val, err := s.client.Get(ctx, completedKey(conversationID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("read completion summary for conversation %d: %v", conversationID, err)
		}
		return "", false
	}
	return val, true
}

func processingKey(conversationID int64) string {
	return fmt.Sprintf("notify:processing:%d", conversationID)
}

func completedKey(conversationID int64) string {
	return fmt.Sprintf("notify:completed:%d", conversationID)
}
