package chat

import (
	"versechat/internal/models"
)

// State is the controller's request lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateSending    State = "sending"
	StateStreaming  State = "streaming"
	StateRetrying   State = "retrying"
	StateFinalizing State = "finalizing"
	StateFinalized  State = "finalized"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// RetryState is observational only; it mirrors what the retry policy is
// doing so the UI can show attempt progress.
type RetryState struct {
	IsRetrying  bool   `json:"is_retrying"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	StatusText  string `json:"status_text"`
}

// Snapshot is an immutable view of the controller handed to subscribers.
// The UI reacts to snapshots instead of binding to controller internals;
// a Sending -> Streaming edge marks first-token receipt exactly once.
type Snapshot struct {
	State       State             `json:"state"`
	Messages    []*models.Message `json:"messages"`
	IsLoading   bool              `json:"is_loading"`
	IsStreaming bool              `json:"is_streaming"`
	Retry       RetryState        `json:"retry"`
	Failure     *Failure          `json:"failure,omitempty"`
}

// snapshotLocked builds a Snapshot; callers hold c.mu.
func (c *Controller) snapshotLocked() Snapshot {
	messages := make([]*models.Message, 0, len(c.transcript))
	for _, m := range c.transcript {
		messages = append(messages, m.Clone())
	}
	return Snapshot{
		State:       c.state,
		Messages:    messages,
		IsLoading:   c.state == StateSending,
		IsStreaming: c.state == StateStreaming || c.state == StateRetrying,
		Retry:       c.retry,
		Failure:     c.failure,
	}
}

// Snapshot returns the current view of the conversation.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers for snapshot updates. The channel holds only the
// latest snapshot; slow consumers see the freshest state, not a backlog.
// The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// notifyLocked pushes the latest snapshot to all subscribers, replacing
// any undelivered one. Callers hold c.mu.
func (c *Controller) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
