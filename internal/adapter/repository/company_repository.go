package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugohenrick/companychat/internal/domain/company"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CompanyRepository implementa a interface company.Repository
type CompanyRepository struct {
	db *pgxpool.Pool
}

// NewCompanyRepository cria uma nova instância de CompanyRepository
func NewCompanyRepository(db *pgxpool.Pool) company.Repository {
	return &CompanyRepository{
		db: db,
	}
}

// Create implementa company.Repository.Create
func (r *CompanyRepository) Create(ctx context.Context, c *company.Company) error {
	query := `
		INSERT INTO companies (id, name, status, subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.Name,
		string(c.Status),
		string(c.SubscriptionStatus),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("falha ao inserir empresa: %w", err)
	}
	return nil
}

// FindByID implementa company.Repository.FindByID
func (r *CompanyRepository) FindByID(ctx context.Context, id string) (*company.Company, error) {
	query := `
		SELECT id, name, status, subscription_status, created_at, updated_at
		FROM companies
		WHERE id = $1
	`

	c := &company.Company{}
	var status, subscription string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&status,
		&subscription,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, company.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("falha ao buscar empresa: %w", err)
	}

	c.Status = company.Status(status)
	c.SubscriptionStatus = company.SubscriptionStatus(subscription)
	return c, nil
}
