package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugohenrick/companychat/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Erros específicos do repositório
var (
	ErrUserDuplicateEmail = errors.New("usuário com mesmo email já existe para esta empresa")
)

// pgUniqueViolation é o código do PostgreSQL para violação de unicidade
const pgUniqueViolation = "23505"

// UserRepository implementa a interface user.Repository usando PostgreSQL
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository cria uma nova instância de UserRepository
func NewUserRepository(db *pgxpool.Pool) user.Repository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `id, company_id, name, email, password, role, status, last_login_at, created_at, updated_at`

// Create implementa user.Repository.Create
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var lastLogin *time.Time
	if !u.LastLoginAt.IsZero() {
		lastLogin = &u.LastLoginAt
	}

	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.CompanyID,
		u.Name,
		u.Email,
		u.Password,
		string(u.Role),
		string(u.Status),
		lastLogin,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrUserDuplicateEmail
		}
		return fmt.Errorf("falha ao inserir usuário: %w", err)
	}

	return nil
}

// FindByID implementa user.Repository.FindByID
func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByEmail implementa user.Repository.FindByEmail. Sem empresa, busca
// o email em todas as empresas.
func (r *UserRepository) FindByEmail(ctx context.Context, companyID, email string) (*user.User, error) {
	if companyID == "" {
		query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 ORDER BY created_at LIMIT 1`
		return r.scanOne(r.db.QueryRow(ctx, query, email))
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE company_id = $1 AND email = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, companyID, email))
}

// UpdateLastLogin implementa user.Repository.UpdateLastLogin
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("falha ao atualizar último login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	var role, status string
	var lastLoginTime pgtype.Timestamptz

	err := row.Scan(
		&u.ID,
		&u.CompanyID,
		&u.Name,
		&u.Email,
		&u.Password,
		&role,
		&status,
		&lastLoginTime,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("falha ao buscar usuário: %w", err)
	}

	u.Role = user.Role(role)
	u.Status = user.Status(status)
	if lastLoginTime.Valid {
		u.LastLoginAt = lastLoginTime.Time
	}

	return u, nil
}
