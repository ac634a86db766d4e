package company

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyName        = errors.New("nome não pode ser vazio")
	ErrCompanyNotActive = errors.New("empresa não está ativa")
	ErrNoSubscription   = errors.New("assinatura da empresa não permite o chat")
)

// Status representa o estado da empresa
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// SubscriptionStatus é o estado da assinatura informado pelo provedor de
// cobrança. Este serviço apenas lê o valor.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionNone     SubscriptionStatus = "none"
)

// Company representa uma empresa (workspace) no sistema multi-tenant
type Company struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Status             Status             `json:"status"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewCompany cria uma nova empresa ativa, sem assinatura
func NewCompany(name string) (*Company, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	now := time.Now().UTC()
	return &Company{
		ID:                 uuid.New().String(),
		Name:               name,
		Status:             StatusActive,
		SubscriptionStatus: SubscriptionNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// IsActive verifica se a empresa está ativa
func (c *Company) IsActive() bool {
	return c.Status == StatusActive
}

// CanUseChat verifica se a assinatura libera o uso do chat
func (c *Company) CanUseChat() bool {
	switch c.SubscriptionStatus {
	case SubscriptionActive, SubscriptionTrialing:
		return true
	}
	return false
}

// CheckChatAccess retorna o motivo pelo qual a empresa não pode usar o
// chat, ou nil
func (c *Company) CheckChatAccess() error {
	if !c.IsActive() {
		return ErrCompanyNotActive
	}
	if !c.CanUseChat() {
		return ErrNoSubscription
	}
	return nil
}
