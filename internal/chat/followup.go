package chat

import (
	"context"
	"time"
)

const followUpTimeout = 30 * time.Second

// spawnFollowUps enriches a finalized message with suggested next
// questions. It runs on its own cancellable task and never delays
// finalization; if the message or the conversation is gone by the time
// the suggestions arrive, the update is a silent no-op.
func (c *Controller) spawnFollowUps(messageID int64, content, question string) {
	if c.suggester == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.lifeCtx, followUpTimeout)
	go func() {
		defer cancel()
		followUps, err := c.suggester.SuggestFollowUps(ctx, content, question, c.conversation.Mode)
		if err != nil {
			debugLog("follow-up generation for message %d failed: %v", messageID, err)
			return
		}
		if len(followUps) == 0 {
			return
		}

		c.mu.Lock()
		msg := c.findMessageLocked(messageID)
		// only a finalized message with no follow-ups yet may be enriched,
		// exactly once
		if msg == nil || msg.IsStreaming || len(msg.FollowUps) > 0 {
			c.mu.Unlock()
			return
		}
		msg.FollowUps = append([]string(nil), followUps...)
		clone := msg.Clone()
		c.notifyLocked()
		c.mu.Unlock()

		if err := c.store.UpdateMessage(ctx, clone); err != nil {
			debugLog("persist follow-ups for message %d: %v", messageID, err)
		}
	}()
}
