package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrChatNotFound = errors.New("chat não encontrado")
	ErrChatExists   = errors.New("chat já existe")
)

// Repository define a interface para operações de repositório de chats
type Repository interface {
	// GetChatByID busca um chat pelo ID
	GetChatByID(ctx context.Context, id uuid.UUID) (*Chat, error)

	// CreateChat cria um novo chat
	CreateChat(ctx context.Context, c *Chat) error

	// ListChats lista os chats que o usuário pode ler na empresa
	ListChats(ctx context.Context, companyID, userID string, limit, offset int) ([]*Chat, error)

	// GetMessagesByChatID retorna as mensagens do chat em ordem de criação
	GetMessagesByChatID(ctx context.Context, chatID uuid.UUID) ([]Message, error)

	// AppendMessage adiciona uma mensagem ao chat
	AppendMessage(ctx context.Context, m *Message) error

	// CompleteTurn grava a resposta do assistente e atualiza título e
	// última atividade do chat numa única transação. O título só é
	// gravado quando o chat ainda não tem um.
	CompleteTurn(ctx context.Context, chatID uuid.UUID, assistant *Message, title string) error

	// UpdateVisibility altera a visibilidade do chat
	UpdateVisibility(ctx context.Context, chatID uuid.UUID, v Visibility) error

	// DeleteChat remove o chat e suas mensagens
	DeleteChat(ctx context.Context, chatID uuid.UUID) error
}
