package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugohenrick/companychat/internal/domain/company"
	pkgcompany "github.com/hugohenrick/companychat/pkg/company"
)

// CompanyValidator implementa a interface para validação da empresa
type CompanyValidator struct {
	repository company.Repository
}

// NewCompanyValidator cria uma nova instância de CompanyValidator
func NewCompanyValidator(repository company.Repository) pkgcompany.Validator {
	return &CompanyValidator{
		repository: repository,
	}
}

// Validate implementa a interface pkgcompany.Validator.Validate
func (v *CompanyValidator) Validate(ctx context.Context, companyID string) error {
	// Validar se o ID é válido
	if companyID == "" {
		return pkgcompany.ErrCompanyNotSpecified
	}

	// Buscar a empresa no repositório
	c, err := v.repository.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, company.ErrCompanyNotFound) {
			return pkgcompany.ErrCompanyNotFound
		}
		return fmt.Errorf("erro ao buscar empresa: %w", err)
	}

	// Verificar status e assinatura
	if err := c.CheckChatAccess(); err != nil {
		return fmt.Errorf("%w: %w", pkgcompany.ErrCompanyNotAllowed, err)
	}

	return nil
}
