package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/domain/chat"
	"github.com/hugohenrick/companychat/internal/infrastructure/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ChatRepository implementa chat.Repository usando PostgreSQL
type ChatRepository struct {
	db *database.PostgresDB
}

// NewChatRepository cria uma nova instância de ChatRepository
func NewChatRepository(db *database.PostgresDB) chat.Repository {
	return &ChatRepository{
		db: db,
	}
}

const chatColumns = `id, company_id, user_id, visibility, title, last_activity_at, created_at`

func scanChat(row pgx.Row) (*chat.Chat, error) {
	c := &chat.Chat{}
	var visibility string
	err := row.Scan(
		&c.ID,
		&c.CompanyID,
		&c.UserID,
		&visibility,
		&c.Title,
		&c.LastActivityAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Visibility = chat.Visibility(visibility)
	return c, nil
}

// GetChatByID implementa chat.Repository.GetChatByID
func (r *ChatRepository) GetChatByID(ctx context.Context, id uuid.UUID) (*chat.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	c, err := scanChat(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrChatNotFound
		}
		return nil, fmt.Errorf("erro ao buscar chat: %w", err)
	}
	return c, nil
}

// CreateChat implementa chat.Repository.CreateChat
func (r *ChatRepository) CreateChat(ctx context.Context, c *chat.Chat) error {
	query := `INSERT INTO chats (` + chatColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Pool().Exec(ctx, query,
		c.ID,
		c.CompanyID,
		c.UserID,
		string(c.Visibility),
		c.Title,
		c.LastActivityAt,
		c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return chat.ErrChatExists
		}
		return fmt.Errorf("erro ao criar chat: %w", err)
	}
	return nil
}

// ListChats implementa chat.Repository.ListChats
func (r *ChatRepository) ListChats(ctx context.Context, companyID, userID string, limit, offset int) ([]*chat.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE company_id = $1 AND (user_id = $2 OR visibility = 'shared')
		ORDER BY last_activity_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool().Query(ctx, query, companyID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("erro ao listar chats: %w", err)
	}
	defer rows.Close()

	chats := []*chat.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("erro ao ler chat: %w", err)
		}
		chats = append(chats, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao ler linhas: %w", err)
	}
	return chats, nil
}

// GetMessagesByChatID implementa chat.Repository.GetMessagesByChatID
func (r *ChatRepository) GetMessagesByChatID(ctx context.Context, chatID uuid.UUID) ([]chat.Message, error) {
	query := `
		SELECT id, chat_id, role, content, metadata, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at, seq
	`

	rows, err := r.db.Pool().Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar mensagens: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var role string
		var metadata []byte
		if err := rows.Scan(&msg.ID, &msg.ChatID, &role, &msg.Content, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("erro ao ler mensagem: %w", err)
		}
		msg.Role = chat.Role(role)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("erro ao ler metadados da mensagem: %w", err)
			}
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao ler linhas: %w", err)
	}
	return messages, nil
}

// AppendMessage implementa chat.Repository.AppendMessage
func (r *ChatRepository) AppendMessage(ctx context.Context, m *chat.Message) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := insertMessage(ctx, tx, m); err != nil {
			return err
		}
		return touchChat(ctx, tx, m.ChatID, m.CreatedAt)
	})
}

// CompleteTurn implementa chat.Repository.CompleteTurn
func (r *ChatRepository) CompleteTurn(ctx context.Context, chatID uuid.UUID, assistant *chat.Message, title string) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := insertMessage(ctx, tx, assistant); err != nil {
			return err
		}

		if title != "" {
			// o título só é gravado uma vez
			_, err := tx.Exec(ctx, `UPDATE chats SET title = $1 WHERE id = $2 AND title = ''`, title, chatID)
			if err != nil {
				return fmt.Errorf("erro ao gravar título: %w", err)
			}
		}

		return touchChat(ctx, tx, chatID, time.Now().UTC())
	})
}

// UpdateVisibility implementa chat.Repository.UpdateVisibility
func (r *ChatRepository) UpdateVisibility(ctx context.Context, chatID uuid.UUID, v chat.Visibility) error {
	tag, err := r.db.Pool().Exec(ctx, `UPDATE chats SET visibility = $1 WHERE id = $2`, string(v), chatID)
	if err != nil {
		return fmt.Errorf("erro ao atualizar visibilidade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

// DeleteChat implementa chat.Repository.DeleteChat
func (r *ChatRepository) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("erro ao deletar chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, m *chat.Message) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("erro ao serializar metadados: %w", err)
	}
	if m.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, chat_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ChatID, string(m.Role), m.Content, metadata, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("erro ao salvar mensagem: %w", err)
	}
	return nil
}

func touchChat(ctx context.Context, tx pgx.Tx, chatID uuid.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE chats SET last_activity_at = $1 WHERE id = $2`, at, chatID)
	if err != nil {
		return fmt.Errorf("erro ao atualizar última atividade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}
