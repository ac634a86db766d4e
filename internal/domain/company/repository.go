package company

import (
	"context"
	"errors"
)

// ErrCompanyNotFound ocorre quando a empresa não existe
var ErrCompanyNotFound = errors.New("empresa não encontrada")

// Repository define a interface para operações de repositório de empresas
type Repository interface {
	// FindByID busca uma empresa pelo ID
	FindByID(ctx context.Context, id string) (*Company, error)

	// Create cria uma nova empresa
	Create(ctx context.Context, c *Company) error
}
