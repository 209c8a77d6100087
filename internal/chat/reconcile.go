package chat

import (
	"context"
	"fmt"

	"versechat/internal/models"
)

// Reconcile pulls the persisted transcript and merges it over the local
// one. The store is authoritative: it may have been mutated by another
// execution context, typically a background completion that landed while
// the screen was away. Called when the screen regains visibility and on
// every store change notification; applying it twice with no intervening
// store change is a no-op.
func (c *Controller) Reconcile(ctx context.Context) error {
	persisted, err := c.store.Messages(ctx, c.conversation.ID)
	if err != nil {
		return fmt.Errorf("reconcile transcript: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !needsReplace(c.transcript, persisted) {
		return nil
	}
	c.transcript = persisted
	if c.req == nil {
		// the background context finished the generation for us
		if c.state == StateSending || c.state == StateStreaming || c.state == StateRetrying {
			c.state = StateFinalized
		}
	}
	c.notifyLocked()
	debugLog("transcript replaced from store: %d persisted messages", len(persisted))
	return nil
}

// needsReplace decides whether the persisted transcript supersedes the
// local one. Storage is strictly additive, so a longer persisted
// transcript always wins; with equal lengths only fine-grained drift on
// the shared last message forces a replace, which keeps redundant UI
// churn out of the common case.
func needsReplace(local, persisted []*models.Message) bool {
	if len(persisted) > len(local) {
		return true
	}
	if len(persisted) == 0 || len(local) == 0 {
		return false
	}
	lastLocal := local[len(local)-1]
	lastPersisted := persisted[len(persisted)-1]
	if lastLocal.ID != lastPersisted.ID {
		return false
	}
	// generation completed while backgrounded
	if lastLocal.IsStreaming && !lastPersisted.IsStreaming {
		return true
	}
	// follow-ups arrived out-of-band
	if len(lastPersisted.FollowUps) > 0 && len(lastLocal.FollowUps) == 0 {
		return true
	}
	return false
}
