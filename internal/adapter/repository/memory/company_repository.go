package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hugohenrick/companychat/internal/domain/company"
	"github.com/hugohenrick/companychat/internal/domain/user"
)

// CompanyRepository implementa company.Repository em memória
type CompanyRepository struct {
	mu        sync.RWMutex
	companies map[string]*company.Company
}

// NewCompanyRepository cria um CompanyRepository com as empresas informadas
func NewCompanyRepository(companies ...*company.Company) *CompanyRepository {
	r := &CompanyRepository{companies: make(map[string]*company.Company)}
	for _, c := range companies {
		r.companies[c.ID] = c
	}
	return r
}

// FindByID implementa company.Repository.FindByID
func (r *CompanyRepository) FindByID(_ context.Context, id string) (*company.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.companies[id]
	if !ok {
		return nil, company.ErrCompanyNotFound
	}
	cp := *c
	return &cp, nil
}

// Create implementa company.Repository.Create
func (r *CompanyRepository) Create(_ context.Context, c *company.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	r.companies[c.ID] = &cp
	return nil
}

// UserRepository implementa user.Repository em memória
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*user.User
}

// NewUserRepository cria um UserRepository com os usuários informados
func NewUserRepository(users ...*user.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*user.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// Create implementa user.Repository.Create
func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// FindByID implementa user.Repository.FindByID
func (r *UserRepository) FindByID(_ context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// FindByEmail implementa user.Repository.FindByEmail. Um companyID vazio
// busca em todas as empresas.
func (r *UserRepository) FindByEmail(_ context.Context, companyID, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email && (companyID == "" || u.CompanyID == companyID) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}

// UpdateLastLogin implementa user.Repository.UpdateLastLogin
func (r *UserRepository) UpdateLastLogin(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	u.LastLoginAt = time.Now().UTC()
	return nil
}
