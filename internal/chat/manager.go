package chat

import (
	"context"
	"sync"

	"versechat/internal/models"
)

// Manager hands out one controller per conversation and routes store
// change notifications to the right one. Switching conversations closes
// the old controller, which cancels any in-flight request first.
type Manager struct {
	deps Deps

	mu          sync.Mutex
	controllers map[int64]*Controller
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:        deps,
		controllers: make(map[int64]*Controller),
	}
}

// Controller returns the controller for a conversation, creating it on
// first use.
func (m *Manager) Controller(ctx context.Context, conversation *models.Conversation) (*Controller, error) {
	m.mu.Lock()
	if ctrl, ok := m.controllers[conversation.ID]; ok {
		m.mu.Unlock()
		return ctrl, nil
	}
	m.mu.Unlock()

	ctrl, err := New(ctx, m.deps, conversation)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.controllers[conversation.ID]; ok {
		ctrl.Close()
		return existing, nil
	}
	m.controllers[conversation.ID] = ctrl
	return ctrl, nil
}

// Resync asks a live controller to reconcile against the store. Unknown
// conversations are ignored; they have no local transcript to drift.
func (m *Manager) Resync(conversationID int64) {
	m.mu.Lock()
	ctrl := m.controllers[conversationID]
	m.mu.Unlock()
	if ctrl == nil {
		return
	}
	go func() {
		if err := ctrl.Reconcile(context.Background()); err != nil {
			debugLog("resync conversation %d: %v", conversationID, err)
		}
	}()
}

// Drop closes and forgets a conversation's controller.
func (m *Manager) Drop(conversationID int64) {
	m.mu.Lock()
	ctrl := m.controllers[conversationID]
	delete(m.controllers, conversationID)
	m.mu.Unlock()
	if ctrl != nil {
		ctrl.Close()
	}
}

// Shutdown closes every controller.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.controllers))
	for _, ctrl := range m.controllers {
		controllers = append(controllers, ctrl)
	}
	m.controllers = make(map[int64]*Controller)
	m.mu.Unlock()
	for _, ctrl := range controllers {
		ctrl.Close()
	}
}
