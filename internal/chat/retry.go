package chat

import (
	"fmt"
	"time"

	"versechat/internal/transport"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// streamWithRetry runs the transport call, retrying transient failures up
// to the attempt budget. Each retry discards the partial buffer so the UI
// shows a visibly reset streaming message.
func (c *Controller) streamWithRetry(rc *requestContext) (*transport.Answer, error) {
	req := transport.Request{
		ConversationID: c.conversation.ID,
		Kind:           rc.kind,
		Prompt:         rc.prompt,
		History:        rc.history,
		Mode:           c.conversation.Mode,
		Translation:    c.conversation.Translation,
		Attachments:    rc.attachments,
	}

	for {
		answer, err := c.transport.Stream(rc.ctx, req, func(full string) error {
			return c.applyToken(rc, full)
		})
		if err == nil {
			return answer, nil
		}
		if rc.ctx.Err() != nil {
			return nil, err
		}
		kind := transport.KindOf(err)
		if kind != transport.KindNetwork {
			return nil, err
		}

		c.mu.Lock()
		if c.req != rc {
			c.mu.Unlock()
			return nil, err
		}
		if rc.attempt >= rc.maxAttempts {
			c.mu.Unlock()
			return nil, err
		}
		rc.attempt++
		rc.buffer = ""
		if msg := c.findMessageLocked(rc.messageID); msg != nil {
			msg.Content = rc.baseContent
		}
		c.retry = RetryState{
			IsRetrying:  true,
			Attempt:     rc.attempt,
			MaxAttempts: rc.maxAttempts,
			StatusText:  fmt.Sprintf("Connection interrupted, retrying (%d/%d)…", rc.attempt, rc.maxAttempts),
		}
		c.state = StateRetrying
		c.notifyLocked()
		c.mu.Unlock()
		debugLog("retrying message %d, attempt %d/%d: %v", rc.messageID, rc.attempt, rc.maxAttempts, err)

		select {
		case <-rc.ctx.Done():
			return nil, err
		case <-time.After(retryBackoff(rc.attempt)):
		}
	}
}

func retryBackoff(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}
