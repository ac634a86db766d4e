package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/companychat/internal/adapter/api/dto"
	"github.com/hugohenrick/companychat/internal/domain/chat"
	"github.com/hugohenrick/companychat/internal/streaming"
	"github.com/hugohenrick/companychat/pkg/auth"
	"github.com/hugohenrick/companychat/pkg/logger"
)

// principal monta a identidade do usuário a partir das claims do token
func principal(ctx *gin.Context) streaming.Principal {
	u := auth.GetCurrentUser(ctx)
	return streaming.Principal{UserID: u.UserID, CompanyID: u.CompanyID}
}

// respondError converte os erros do produtor em respostas HTTP. Erros
// inesperados são registrados e respondidos em texto puro.
func respondError(ctx *gin.Context, log logger.Logger, err error) {
	switch {
	case errors.Is(err, streaming.ErrForbidden):
		ctx.JSON(http.StatusForbidden, dto.NewErrorResponse(http.StatusForbidden, "Acesso negado", err.Error()))
	case errors.Is(err, streaming.ErrBadRequest):
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "Requisição inválida", err.Error()))
	case errors.Is(err, streaming.ErrConflict):
		ctx.JSON(http.StatusConflict, dto.NewErrorResponse(http.StatusConflict, "Geração em andamento", err.Error()))
	case errors.Is(err, chat.ErrChatNotFound):
		ctx.JSON(http.StatusNotFound, dto.NewErrorResponse(http.StatusNotFound, "Chat não encontrado", err.Error()))
	case errors.Is(err, streaming.ErrClosed):
		ctx.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(http.StatusServiceUnavailable, "Servidor em desligamento", err.Error()))
	default:
		log.Error("Erro inesperado", "error", err, "path", ctx.FullPath())
		ctx.String(http.StatusInternalServerError, "erro interno do servidor")
	}
}
