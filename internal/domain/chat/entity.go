package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyContent      = errors.New("conteúdo da mensagem não pode ser vazio")
	ErrInvalidRole       = errors.New("papel da mensagem inválido")
	ErrInvalidVisibility = errors.New("visibilidade inválida")
	ErrEmptyCompany      = errors.New("empresa do chat não pode ser vazia")
	ErrEmptyOwner        = errors.New("dono do chat não pode ser vazio")
)

// Visibility representa quem pode ler um chat
type Visibility string

const (
	VisibilityPrivate Visibility = "private" // Apenas o dono
	VisibilityShared  Visibility = "shared"  // Qualquer usuário da empresa
)

// Role representa o autor de uma mensagem
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseVisibility converte uma string em Visibility
func ParseVisibility(v string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(v))) {
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	case VisibilityShared:
		return VisibilityShared, nil
	}
	return "", ErrInvalidVisibility
}

// Chat representa uma conversa de uma empresa
type Chat struct {
	ID             uuid.UUID  `json:"id"`
	CompanyID      string     `json:"company_id"`
	UserID         string     `json:"user_id"`
	Visibility     Visibility `json:"visibility"`
	Title          string     `json:"title"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewChat cria um novo chat privado
func NewChat(id uuid.UUID, companyID, userID string) (*Chat, error) {
	if companyID == "" {
		return nil, ErrEmptyCompany
	}
	if userID == "" {
		return nil, ErrEmptyOwner
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	now := time.Now().UTC()
	return &Chat{
		ID:             id,
		CompanyID:      companyID,
		UserID:         userID,
		Visibility:     VisibilityPrivate,
		LastActivityAt: now,
		CreatedAt:      now,
	}, nil
}

// BelongsTo verifica se o chat pertence à empresa
func (c *Chat) BelongsTo(companyID string) bool {
	return c.CompanyID == companyID
}

// IsOwner verifica se o usuário é o dono do chat
func (c *Chat) IsOwner(userID string) bool {
	return c.UserID == userID
}

// CanRead verifica se um usuário da empresa pode ler o chat
func (c *Chat) CanRead(companyID, userID string) bool {
	if !c.BelongsTo(companyID) {
		return false
	}
	return c.IsOwner(userID) || c.Visibility == VisibilityShared
}

// HasTitle indica se o chat já recebeu um título
func (c *Chat) HasTitle() bool {
	return strings.TrimSpace(c.Title) != ""
}

// Message representa uma mensagem de um chat
type Message struct {
	ID        uuid.UUID         `json:"id"`
	ChatID    uuid.UUID         `json:"chat_id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage cria uma nova mensagem
func NewMessage(chatID uuid.UUID, role Role, content string) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, ErrInvalidRole
	}
	if content == "" {
		return nil, ErrEmptyContent
	}

	return &Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FirstUserMessage retorna a primeira mensagem do usuário de uma lista
// ordenada, ou nil
func FirstUserMessage(messages []Message) *Message {
	for i := range messages {
		if messages[i].Role == RoleUser {
			return &messages[i]
		}
	}
	return nil
}
