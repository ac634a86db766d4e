package dto

import (
	"time"

	"github.com/hugohenrick/companychat/internal/domain/chat"
)

// StreamRequest é o corpo de POST /chats/{id}/stream
type StreamRequest struct {
	Message   string `json:"message"`
	CompanyID string `json:"companyId"`
}

// VisibilityRequest altera a visibilidade de um chat
type VisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required"`
}

// ChatResponse representa um chat
type ChatResponse struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	UserID         string    `json:"user_id"`
	Visibility     string    `json:"visibility"`
	Title          string    `json:"title"`
	Generating     bool      `json:"generating"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatListResponse representa a lista paginada de chats
type ChatListResponse struct {
	Data     []ChatResponse `json:"data"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// MessageResponse representa uma mensagem persistida
type MessageResponse struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// StreamStatusResponse informa se há um stream retido para o chat
type StreamStatusResponse struct {
	Active      bool   `json:"active"`
	Status      string `json:"status,omitempty"`
	StreamID    string `json:"streamId,omitempty"`
	LastEventID int64  `json:"lastEventId"`
}

// ToChatResponse converte um chat do domínio para DTO de resposta
func ToChatResponse(c *chat.Chat, generating bool) ChatResponse {
	return ChatResponse{
		ID:             c.ID.String(),
		CompanyID:      c.CompanyID,
		UserID:         c.UserID,
		Visibility:     string(c.Visibility),
		Title:          c.Title,
		Generating:     generating,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
	}
}

// ToMessageResponses converte as mensagens do domínio para DTOs
func ToMessageResponses(msgs []chat.Message) []MessageResponse {
	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = MessageResponse{
			ID:        m.ID.String(),
			Role:      string(m.Role),
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		}
	}
	return out
}
