package company

import "errors"

// Erros comuns relacionados à validação da empresa
var (
	// ErrCompanyNotSpecified ocorre quando o ID da empresa não é fornecido
	ErrCompanyNotSpecified = errors.New("empresa não especificada")

	// ErrCompanyNotFound ocorre quando a empresa não é encontrada
	ErrCompanyNotFound = errors.New("empresa não encontrada")

	// ErrCompanyNotAllowed ocorre quando a empresa está inativa ou sem
	// assinatura que libere o chat
	ErrCompanyNotAllowed = errors.New("empresa não pode usar o chat")
)
