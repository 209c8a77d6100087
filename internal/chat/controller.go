package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"versechat/internal/models"
	"versechat/internal/transport"
)

// Store is the persisted transcript authority consumed by the controller.
type Store interface {
	Messages(ctx context.Context, conversationID int64) ([]*models.Message, error)
	AddMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	UpdateMessage(ctx context.Context, msg *models.Message) error
	RemoveLastMessage(ctx context.Context, conversationID, expectedID int64) error
}

// Quota gates sends against the user's plan.
type Quota interface {
	CanSendMessage(ctx context.Context) (bool, error)
	RecordUsage(ctx context.Context) error
}

// Notifications lets a relaunching client discover that a generation
// finished while the screen was away.
type Notifications interface {
	StartProcessing(conversationID int64)
	CompleteProcessing(conversationID int64, summary string)
	CancelProcessing()
}

// Config tunes the controller.
type Config struct {
	MaxAttempts    int
	RequestTimeout time.Duration
}

// Deps carries the controller's collaborators; everything is injected.
type Deps struct {
	Transport transport.Transport
	Suggester transport.Suggester
	Store     Store
	Quota     Quota
	Notify    Notifications
	Config    Config
}

// requestContext tracks the single in-flight request. At most one exists
// per controller at any time.
type requestContext struct {
	kind      transport.Kind
	prompt    string
	messageID int64

	attempt     int
	maxAttempts int
	startedAt   time.Time

	// baseContent holds the truncated answer a continuation appends to;
	// buffer holds this attempt's accumulated tokens.
	baseContent string
	buffer      string

	history     []*models.Message
	attachments []models.Attachment

	ctx      context.Context
	cancel   context.CancelFunc
	watchdog *time.Timer
}

// composed joins the continuation base with this attempt's content.
func (rc *requestContext) composed(content string) string {
	if rc.kind == transport.KindContinuation && rc.baseContent != "" {
		if content == "" {
			return rc.baseContent
		}
		return rc.baseContent + " " + content
	}
	return content
}

type continuationState struct {
	attemptsUsed int
	maxAttempts  int
}

// Controller owns one conversation's request lifecycle. All state
// transitions happen under c.mu; the transport stream and the follow-up
// coordinator are the only work that runs outside it.
type Controller struct {
	transport transport.Transport
	suggester transport.Suggester
	store     Store
	quota     Quota
	notify    Notifications
	cfg       Config

	conversation *models.Conversation

	// lifeCtx bounds background work (follow-up generation); Close cancels it.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu           sync.Mutex
	transcript   []*models.Message
	state        State
	retry        RetryState
	failure      *Failure
	req          *requestContext
	continuation continuationState
	subs         map[int]chan Snapshot
	nextSub      int
	closed       bool
}

// New builds a controller for the conversation and loads its transcript.
func New(ctx context.Context, deps Deps, conversation *models.Conversation) (*Controller, error) {
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if conversation == nil || conversation.ID <= 0 {
		return nil, errors.New("conversation is required")
	}
	if deps.Config.MaxAttempts <= 0 {
		deps.Config.MaxAttempts = 5
	}
	if deps.Config.RequestTimeout <= 0 {
		deps.Config.RequestTimeout = 60 * time.Second
	}

	transcript, err := deps.Store.Messages(ctx, conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &Controller{
		transport:    deps.Transport,
		suggester:    deps.Suggester,
		store:        deps.Store,
		quota:        deps.Quota,
		notify:       deps.Notify,
		cfg:          deps.Config,
		conversation: conversation,
		lifeCtx:      lifeCtx,
		lifeCancel:   lifeCancel,
		transcript:   transcript,
		state:        StateIdle,
		subs:         make(map[int]chan Snapshot),
	}, nil
}

// Send starts a new request. It is rejected while another request is
// active and when the usage gate says the daily budget is spent.
func (c *Controller) Send(ctx context.Context, text string, kind transport.Kind, attachments []models.Attachment) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("message text is required")
	}
	if kind == "" {
		kind = transport.KindNormal
	}
	if kind == transport.KindContinuation {
		return errors.New("continuation requests are issued internally")
	}

	if c.quota != nil {
		ok, err := c.quota.CanSendMessage(ctx)
		if err != nil {
			// metering must not take the assistant down
			debugLog("quota check failed, allowing send: %v", err)
			ok = true
		}
		if !ok {
			c.mu.Lock()
			c.failure = &Failure{Kind: FailureUsageLimit, Message: "You've reached today's message limit. Upgrade to keep the conversation going."}
			c.notifyLocked()
			c.mu.Unlock()
			return ErrUsageLimitReached
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("controller is closed")
	}
	if c.req != nil {
		c.mu.Unlock()
		return ErrRequestInFlight
	}
	c.mu.Unlock()

	userMsg, err := c.store.AddMessage(ctx, &models.Message{
		ConversationID: c.conversation.ID,
		Role:           models.RoleUser,
		Content:        text,
		Attachments:    attachments,
	})
	if err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	placeholder, err := c.store.AddMessage(ctx, &models.Message{
		ConversationID: c.conversation.ID,
		Role:           models.RoleAssistant,
		IsStreaming:    true,
	})
	if err != nil {
		return fmt.Errorf("persist streaming placeholder: %w", err)
	}

	c.mu.Lock()
	if c.req != nil {
		// lost a race while persisting; roll the placeholder back
		c.mu.Unlock()
		if rmErr := c.store.RemoveLastMessage(context.Background(), c.conversation.ID, placeholder.ID); rmErr != nil {
			debugLog("roll back raced placeholder %d: %v", placeholder.ID, rmErr)
		}
		return ErrRequestInFlight
	}

	history := make([]*models.Message, 0, len(c.transcript))
	for _, m := range c.transcript {
		history = append(history, m.Clone())
	}
	c.transcript = append(c.transcript, userMsg, placeholder)

	reqCtx, cancel := context.WithCancel(c.lifeCtx)
	rc := &requestContext{
		kind:        kind,
		prompt:      text,
		messageID:   placeholder.ID,
		attempt:     1,
		maxAttempts: c.cfg.MaxAttempts,
		startedAt:   time.Now(),
		history:     history,
		attachments: attachments,
		ctx:         reqCtx,
		cancel:      cancel,
	}
	c.req = rc
	c.state = StateSending
	c.failure = nil
	c.retry = RetryState{MaxAttempts: rc.maxAttempts}
	// a fresh user request gets a fresh continuation budget
	c.continuation = continuationState{maxAttempts: 1}
	c.armWatchdogLocked(rc)
	c.notifyLocked()
	c.mu.Unlock()

	if c.notify != nil {
		c.notify.StartProcessing(c.conversation.ID)
	}
	go c.run(rc)
	return nil
}

// run drives the request to a terminal state, issuing at most one
// continuation when the finished answer looks cut off.
func (c *Controller) run(rc *requestContext) {
	for {
		answer, err := c.streamWithRetry(rc)
		if err != nil {
			c.fail(rc, err)
			return
		}

		combined := rc.composed(answer.Content)

		c.mu.Lock()
		if c.req != rc {
			c.mu.Unlock()
			return
		}
		c.state = StateFinalizing
		if isTruncated(combined) && c.continuation.attemptsUsed < c.continuation.maxAttempts {
			c.continuation.attemptsUsed++
			rc.kind = transport.KindContinuation
			rc.baseContent = combined
			rc.buffer = ""
			rc.attempt = 1
			rc.watchdog.Reset(c.cfg.RequestTimeout)
			debugLog("answer looks truncated, continuing message %d", rc.messageID)
			c.mu.Unlock()
			continue
		}
		c.notifyLocked()
		c.mu.Unlock()

		c.finalize(rc, combined, answer)
		return
	}
}

// applyToken is invoked by the transport for every chunk, in order. The
// streaming message's content is replaced wholesale so a retry can reset
// the buffer without corrupting prior state.
func (c *Controller) applyToken(rc *requestContext, full string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req != rc {
		// request was cancelled or superseded; abort the stream
		return context.Canceled
	}
	if c.state != StateStreaming {
		c.state = StateStreaming
	}
	if c.retry.IsRetrying {
		c.retry = RetryState{MaxAttempts: rc.maxAttempts}
	}
	rc.buffer = full
	if msg := c.findMessageLocked(rc.messageID); msg != nil {
		msg.Content = rc.composed(full)
	}
	c.notifyLocked()
	return nil
}

// finalize declares the message immutable, persists it, and kicks off
// follow-up generation without blocking on it.
func (c *Controller) finalize(rc *requestContext, content string, answer *transport.Answer) {
	c.mu.Lock()
	if c.req != rc {
		c.mu.Unlock()
		return
	}
	rc.watchdog.Stop()
	rc.cancel()
	c.req = nil
	c.retry = RetryState{}
	c.state = StateFinalized
	var finalized *models.Message
	if msg := c.findMessageLocked(rc.messageID); msg != nil {
		msg.Content = content
		msg.Citations = answer.Citations
		msg.IsStreaming = false
		finalized = msg.Clone()
	}
	c.notifyLocked()
	c.mu.Unlock()

	if finalized != nil {
		if err := c.store.UpdateMessage(context.Background(), finalized); err != nil {
			log.Printf("persist finalized message %d: %v", finalized.ID, err)
		}
	}
	if c.quota != nil {
		if err := c.quota.RecordUsage(context.Background()); err != nil {
			debugLog("record usage: %v", err)
		}
	}
	if c.notify != nil {
		c.notify.CompleteProcessing(c.conversation.ID, summarize(content))
	}
	c.spawnFollowUps(rc.messageID, content, rc.prompt)
}

// fail handles a terminal transport error. Safety rejections swap the
// placeholder for a safety notice; everything else removes it.
func (c *Controller) fail(rc *requestContext, cause error) {
	kind := transport.KindOf(cause)

	c.mu.Lock()
	if c.req != rc {
		// cancel or watchdog already cleaned up
		c.mu.Unlock()
		return
	}
	rc.watchdog.Stop()
	rc.cancel()
	c.req = nil
	c.retry = RetryState{}
	c.state = StateFailed

	var safety *models.Message
	removed := false
	if kind == transport.KindSafety {
		if msg := c.findMessageLocked(rc.messageID); msg != nil {
			msg.Role = models.RoleSafety
			msg.Content = safetyNotice
			msg.IsStreaming = false
			safety = msg.Clone()
		}
		c.failure = nil
	} else {
		removed = c.removeMessageLocked(rc.messageID)
		c.failure = failureFor(kind)
	}
	c.notifyLocked()
	c.mu.Unlock()

	if safety != nil {
		if err := c.store.UpdateMessage(context.Background(), safety); err != nil {
			log.Printf("persist safety notice %d: %v", safety.ID, err)
		}
	} else if removed {
		// persisted copy is removed only after the local removal landed,
		// and only while it is still the last message
		if err := c.store.RemoveLastMessage(context.Background(), c.conversation.ID, rc.messageID); err != nil {
			debugLog("remove failed placeholder %d: %v", rc.messageID, err)
		}
	}
	if c.notify != nil {
		c.notify.CancelProcessing()
	}
	debugLog("request for message %d failed: %v", rc.messageID, cause)
}

// Cancel aborts the in-flight request. Calling it with nothing in flight
// is a no-op, and cancellation never surfaces an error.
func (c *Controller) Cancel() {
	c.mu.Lock()
	rc := c.req
	if rc == nil {
		c.mu.Unlock()
		return
	}
	rc.watchdog.Stop()
	rc.cancel()
	c.req = nil
	c.retry = RetryState{}
	c.state = StateCancelled
	c.failure = nil
	removed := c.removeMessageLocked(rc.messageID)
	c.notifyLocked()
	c.mu.Unlock()

	if removed {
		if err := c.store.RemoveLastMessage(context.Background(), c.conversation.ID, rc.messageID); err != nil {
			debugLog("remove cancelled placeholder %d: %v", rc.messageID, err)
		}
	}
	if c.notify != nil {
		c.notify.CancelProcessing()
	}
}

// Close cancels any in-flight request and all background work. The
// controller cannot be used afterwards.
func (c *Controller) Close() {
	c.Cancel()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.lifeCancel()
}

// Conversation returns the conversation this controller owns.
func (c *Controller) Conversation() *models.Conversation {
	return c.conversation
}

func (c *Controller) findMessageLocked(id int64) *models.Message {
	for _, m := range c.transcript {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (c *Controller) removeMessageLocked(id int64) bool {
	for i, m := range c.transcript {
		if m.ID == id {
			c.transcript = append(c.transcript[:i], c.transcript[i+1:]...)
			return true
		}
	}
	return false
}

const summaryLimit = 80

func summarize(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= summaryLimit {
		return content
	}
	return strings.TrimSpace(string(runes[:summaryLimit])) + "…"
}
