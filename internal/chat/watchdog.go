package chat

import (
	"context"
	"time"
)

// armWatchdogLocked starts the single watchdog timer for a request.
// Callers hold c.mu. The watchdog is disarmed on every terminal
// transition and re-armed only by a new request (or its continuation).
func (c *Controller) armWatchdogLocked(rc *requestContext) {
	rc.watchdog = time.AfterFunc(c.cfg.RequestTimeout, func() {
		c.timeoutRequest(rc)
	})
}

// timeoutRequest forces the failure path for a request that never reached
// a terminal state within the budget. Cleanup is identical to an ordinary
// terminal transport failure.
func (c *Controller) timeoutRequest(rc *requestContext) {
	c.mu.Lock()
	if c.req != rc {
		c.mu.Unlock()
		return
	}
	rc.cancel()
	c.req = nil
	c.retry = RetryState{}
	c.state = StateFailed
	c.failure = &Failure{Kind: FailureTimedOut, Message: "Request timed out. Please try again."}
	removed := c.removeMessageLocked(rc.messageID)
	c.notifyLocked()
	c.mu.Unlock()

	if removed {
		if err := c.store.RemoveLastMessage(context.Background(), c.conversation.ID, rc.messageID); err != nil {
			debugLog("remove timed-out placeholder %d: %v", rc.messageID, err)
		}
	}
	if c.notify != nil {
		c.notify.CancelProcessing()
	}
	debugLog("watchdog expired for message %d after %s", rc.messageID, time.Since(rc.startedAt))
}
