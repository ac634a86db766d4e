package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyEmail    = errors.New("email não pode ser vazio")
	ErrEmptyCompany  = errors.New("empresa do usuário não pode ser vazia")
	ErrShortPassword = errors.New("senha deve ter pelo menos 8 caracteres")
)

// Role representa o papel/função do usuário
type Role string

// Status representa o status do usuário
type Status string

// Constantes para Role
const (
	RoleOwner  Role = "owner"  // Dono da empresa
	RoleAdmin  Role = "admin"  // Administrador da empresa
	RoleMember Role = "member" // Membro regular
)

// Constantes para Status
const (
	StatusActive   Status = "active"   // Usuário ativo
	StatusInactive Status = "inactive" // Usuário inativo
	StatusBlocked  Status = "blocked"  // Usuário bloqueado
)

// User representa um usuário do sistema
type User struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Password    string    `json:"-"` // O campo senha não é retornado nas respostas JSON
	Role        Role      `json:"role"`
	Status      Status    `json:"status"`
	LastLoginAt time.Time `json:"last_login_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUser cria um novo usuário ativo com a senha já convertida em hash
func NewUser(companyID, name, email, password string, role Role) (*User, error) {
	if companyID == "" {
		return nil, ErrEmptyCompany
	}
	if email == "" {
		return nil, ErrEmptyEmail
	}

	now := time.Now().UTC()
	u := &User{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Name:      name,
		Email:     email,
		Role:      role,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword configura a senha do usuário com hash
func (u *User) SetPassword(password string) error {
	if len(password) < 8 {
		return ErrShortPassword
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword verifica se a senha fornecida é válida
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// IsActive verifica se o usuário está ativo
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// HasAccessToCompany verifica se o usuário pertence à empresa especificada
func (u *User) HasAccessToCompany(companyID string) bool {
	return u.CompanyID == companyID
}
