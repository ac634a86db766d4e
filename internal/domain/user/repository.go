package user

import (
	"context"
	"errors"
)

// ErrUserNotFound ocorre quando o usuário não existe
var ErrUserNotFound = errors.New("usuário não encontrado")

// Repository define a interface para operações de repositório de usuários
type Repository interface {
	// Create cria um novo usuário
	Create(ctx context.Context, u *User) error

	// FindByID busca um usuário pelo ID
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail busca um usuário pelo email dentro de uma empresa
	FindByEmail(ctx context.Context, companyID, email string) (*User, error)

	// UpdateLastLogin atualiza o timestamp de último login do usuário
	UpdateLastLogin(ctx context.Context, id string) error
}
