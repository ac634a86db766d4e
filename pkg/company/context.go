package company

import (
	"context"
)

type contextKey string

const (
	// companyIDKey é a chave usada para armazenar o ID da empresa no contexto
	companyIDKey contextKey = "company_id"
)

// SetCompanyIDContext define o ID da empresa no contexto
func SetCompanyIDContext(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDKey, companyID)
}

// GetCompanyIDFromContext obtém o ID da empresa do contexto
func GetCompanyIDFromContext(ctx context.Context) string {
	if companyID, ok := ctx.Value(companyIDKey).(string); ok {
		return companyID
	}
	return ""
}

// GetCompanyID obtém o ID da empresa de um contexto do Gin
func GetCompanyID(c interface{ GetString(string) string }) string {
	return c.GetString("company_id")
}
