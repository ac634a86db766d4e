// Package memory contém repositórios em memória usados em testes e no
// modo de desenvolvimento sem banco.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/domain/chat"
)

// ChatRepository implementa chat.Repository em memória
type ChatRepository struct {
	mu       sync.RWMutex
	chats    map[uuid.UUID]*chat.Chat
	messages map[uuid.UUID][]chat.Message

	// CompleteTurnErr, quando definido, faz CompleteTurn falhar sem gravar
	CompleteTurnErr error
}

// NewChatRepository cria um ChatRepository vazio
func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		chats:    make(map[uuid.UUID]*chat.Chat),
		messages: make(map[uuid.UUID][]chat.Message),
	}
}

// GetChatByID implementa chat.Repository.GetChatByID
func (r *ChatRepository) GetChatByID(_ context.Context, id uuid.UUID) (*chat.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.chats[id]
	if !ok {
		return nil, chat.ErrChatNotFound
	}
	cp := *c
	return &cp, nil
}

// CreateChat implementa chat.Repository.CreateChat
func (r *ChatRepository) CreateChat(_ context.Context, c *chat.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[c.ID]; ok {
		return chat.ErrChatExists
	}
	cp := *c
	r.chats[c.ID] = &cp
	return nil
}

// ListChats implementa chat.Repository.ListChats
func (r *ChatRepository) ListChats(_ context.Context, companyID, userID string, limit, offset int) ([]*chat.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*chat.Chat
	for _, c := range r.chats {
		if c.CanRead(companyID, userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})

	if offset >= len(out) {
		return []*chat.Chat{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// GetMessagesByChatID implementa chat.Repository.GetMessagesByChatID
func (r *ChatRepository) GetMessagesByChatID(_ context.Context, chatID uuid.UUID) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.messages[chatID]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMessage implementa chat.Repository.AppendMessage
func (r *ChatRepository) AppendMessage(_ context.Context, m *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[m.ChatID]
	if !ok {
		return chat.ErrChatNotFound
	}
	r.messages[m.ChatID] = append(r.messages[m.ChatID], *m)
	c.LastActivityAt = m.CreatedAt
	return nil
}

// CompleteTurn implementa chat.Repository.CompleteTurn
func (r *ChatRepository) CompleteTurn(_ context.Context, chatID uuid.UUID, assistant *chat.Message, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CompleteTurnErr != nil {
		return r.CompleteTurnErr
	}
	c, ok := r.chats[chatID]
	if !ok {
		return chat.ErrChatNotFound
	}

	r.messages[chatID] = append(r.messages[chatID], *assistant)
	if title != "" && !c.HasTitle() {
		c.Title = title
	}
	c.LastActivityAt = time.Now().UTC()
	return nil
}

// UpdateVisibility implementa chat.Repository.UpdateVisibility
func (r *ChatRepository) UpdateVisibility(_ context.Context, chatID uuid.UUID, v chat.Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[chatID]
	if !ok {
		return chat.ErrChatNotFound
	}
	c.Visibility = v
	return nil
}

// DeleteChat implementa chat.Repository.DeleteChat
func (r *ChatRepository) DeleteChat(_ context.Context, chatID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[chatID]; !ok {
		return chat.ErrChatNotFound
	}
	delete(r.chats, chatID)
	delete(r.messages, chatID)
	return nil
}
