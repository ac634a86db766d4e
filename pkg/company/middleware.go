package company

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/companychat/internal/adapter/api/dto"
)

// Validator define a interface para validação da empresa
type Validator interface {
	// Validate retorna nil quando a empresa existe, está ativa e tem uma
	// assinatura que libera o chat
	Validate(ctx context.Context, companyID string) error
}

// Middleware valida a empresa do usuário autenticado. Deve rodar depois
// do middleware de JWT.
func Middleware(validator Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.GetString("company_id")
		if companyID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponse(
				http.StatusForbidden,
				"Empresa não informada",
				ErrCompanyNotSpecified.Error(),
			))
			return
		}

		err := validator.Validate(c.Request.Context(), companyID)
		switch {
		case err == nil:
		case errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrCompanyNotAllowed), errors.Is(err, ErrCompanyNotSpecified):
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponse(
				http.StatusForbidden,
				"Empresa inválida",
				err.Error(),
			))
			return
		default:
			c.String(http.StatusInternalServerError, "erro ao validar empresa: %v", err)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(SetCompanyIDContext(c.Request.Context(), companyID))
		c.Next()
	}
}
