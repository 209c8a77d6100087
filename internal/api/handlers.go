package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"versechat/internal/chat"
	"versechat/internal/models"
	"versechat/internal/notify"
	"versechat/internal/store"
	"versechat/internal/transport"
)

// followUpGrace bounds how long the send stream stays open after
// finalization waiting for follow-up suggestions to land.
var followUpGrace = 10 * time.Second

// Handler wires HTTP routes to the conversation store and the per
// conversation chat controllers.
type Handler struct {
	store   *store.Service
	manager *chat.Manager
	notify  *notify.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(storeSvc *store.Service, manager *chat.Manager, notifySvc *notify.Service) *Handler {
	return &Handler{
		store:   storeSvc,
		manager: manager,
		notify:  notifySvc,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/conversations", h.createConversation)
	api.GET("/conversations/current", h.currentConversation)
	api.POST("/conversations/:id/switch", h.switchConversation)
	api.DELETE("/conversations/:id", h.deleteConversation)
	api.GET("/conversations/:id/messages", h.getMessages)
	api.POST("/conversations/:id/send", h.sendMessage)
	api.POST("/conversations/:id/cancel", h.cancelRequest)
	api.POST("/conversations/:id/visible", h.screenVisible)
}

func (h *Handler) conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}

type createConversationRequest struct {
	Title       string      `json:"title"`
	Mode        models.Mode `json:"mode"`
	Translation string      `json:"translation"`
}

func (h *Handler) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	conversation, err := h.store.CreateConversation(c.Request.Context(), req.Title, req.Mode, req.Translation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conversation})
}

func (h *Handler) currentConversation(c *gin.Context) {
	conversation, err := h.store.CurrentConversation(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoCurrentConversation) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no current conversation"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

// switchConversation makes another conversation current. Any in-flight
// request on the previously current conversation is cancelled first.
func (h *Handler) switchConversation(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	if previous, err := h.store.CurrentConversation(c.Request.Context()); err == nil && previous.ID != id {
		h.manager.Drop(previous.ID)
	}
	if err := h.store.SwitchConversation(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteConversation(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	h.manager.Drop(id)
	if err := h.store.DeleteConversation(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getMessages(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	messages, err := h.store.Messages(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendRequest struct {
	Content     string              `json:"content"`
	Kind        transport.Kind      `json:"kind"`
	Attachments []models.Attachment `json:"attachments"`
}

// sendMessage starts a request and streams controller snapshots to the
// client as server-sent events until the request reaches a terminal state.
func (h *Handler) sendMessage(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conversation, err := h.store.Conversation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctrl, err := h.manager.Controller(c.Request.Context(), conversation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := ctrl.Send(c.Request.Context(), req.Content, req.Kind, req.Attachments); err != nil {
		switch {
		case errors.Is(err, chat.ErrRequestInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "a request is already in flight"})
		case errors.Is(err, chat.ErrUsageLimitReached):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "daily message limit reached", "upgrade": true})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	// subscribing after Send still observes every phase: the subscription
	// channel opens with the current snapshot
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	terminal := false
	var grace <-chan time.Time
	for {
		select {
		case snap, open := <-updates:
			if !open {
				return
			}
			if err := sendEvent("update", snap); err != nil {
				return
			}
			switch snap.State {
			case chat.StateFinalized:
				if !terminal {
					terminal = true
					grace = time.After(followUpGrace)
					break
				}
				// a post-terminal update carries follow-up enrichment
				_ = sendEvent("done", snap)
				return
			case chat.StateFailed, chat.StateCancelled:
				_ = sendEvent("done", snap)
				return
			default:
				// a continuation re-enters streaming after finalizing
				terminal = false
				grace = nil
			}
		case <-grace:
			_ = sendEvent("done", ctrl.Snapshot())
			return
		case <-c.Request.Context().Done():
			// the generation keeps running for background completion
			return
		}
	}
}

func (h *Handler) cancelRequest(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	conversation, err := h.store.Conversation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctrl, err := h.manager.Controller(c.Request.Context(), conversation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctrl.Cancel()
	c.Status(http.StatusNoContent)
}

// screenVisible is the visibility-regained hook: it reconciles the local
// transcript against the store and reports any background completion.
func (h *Handler) screenVisible(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	conversation, err := h.store.Conversation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctrl, err := h.manager.Controller(c.Request.Context(), conversation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := ctrl.Reconcile(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	payload := gin.H{"snapshot": ctrl.Snapshot()}
	if summary, found := h.notify.CompletedSummary(c.Request.Context(), id); found {
		payload["completed_summary"] = summary
	}
	c.JSON(http.StatusOK, payload)
}
