package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/companychat/internal/adapter/api/dto"
	"github.com/hugohenrick/companychat/internal/domain/chat"
	"github.com/hugohenrick/companychat/internal/streaming"
	"github.com/hugohenrick/companychat/pkg/logger"
)

// ChatController gerencia as requisições de leitura e manutenção de chats
type ChatController struct {
	chatRepository chat.Repository
	service        *streaming.Service
	logger         logger.Logger
}

// NewChatController cria uma nova instância de ChatController
func NewChatController(chatRepository chat.Repository, service *streaming.Service, log logger.Logger) *ChatController {
	return &ChatController{
		chatRepository: chatRepository,
		service:        service,
		logger:         log.With("component", "chat"),
	}
}

// List lista os chats visíveis ao usuário
// @Summary Lista chats
// @Description Lista os chats do usuário e os chats compartilhados da empresa, do mais recente ao mais antigo
// @Tags chats
// @Produce json
// @Security Bearer
// @Param page query int false "Página (padrão 1)"
// @Param page_size query int false "Itens por página (padrão 20, máximo 100)"
// @Success 200 {object} dto.ChatListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats [get]
func (c *ChatController) List(ctx *gin.Context) {
	var query dto.PageQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "Paginação inválida", err.Error()))
		return
	}
	pagination := query.Normalize()

	p := principal(ctx)
	chats, err := c.chatRepository.ListChats(ctx, p.CompanyID, p.UserID, pagination.Limit(), pagination.Offset())
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	response := dto.ChatListResponse{
		Data:     make([]dto.ChatResponse, 0, len(chats)),
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	}
	for _, ch := range chats {
		response.Data = append(response.Data, dto.ToChatResponse(ch, c.service.Generating(ch.ID)))
	}
	ctx.JSON(http.StatusOK, response)
}

// Get retorna um chat
// @Summary Busca um chat
// @Tags chats
// @Produce json
// @Security Bearer
// @Param chatId path string true "ID do chat"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats/{chatId} [get]
func (c *ChatController) Get(ctx *gin.Context) {
	ch, err := c.service.AuthorizeRead(ctx, principal(ctx), ctx.Param("chatId"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.ToChatResponse(ch, c.service.Generating(ch.ID)))
}

// Messages retorna as mensagens persistidas de um chat
// @Summary Lista as mensagens de um chat
// @Description Retorna as mensagens gravadas em ordem de criação. A resposta em geração só aparece depois de concluída.
// @Tags chats
// @Produce json
// @Security Bearer
// @Param chatId path string true "ID do chat"
// @Success 200 {array} dto.MessageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats/{chatId}/messages [get]
func (c *ChatController) Messages(ctx *gin.Context) {
	ch, err := c.service.AuthorizeRead(ctx, principal(ctx), ctx.Param("chatId"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	msgs, err := c.chatRepository.GetMessagesByChatID(ctx, ch.ID)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.ToMessageResponses(msgs))
}

// UpdateVisibility altera a visibilidade de um chat
// @Summary Altera a visibilidade de um chat
// @Description Apenas o dono do chat pode torná-lo privado ou compartilhado com a empresa
// @Tags chats
// @Accept json
// @Produce json
// @Security Bearer
// @Param chatId path string true "ID do chat"
// @Param visibility body dto.VisibilityRequest true "Nova visibilidade"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats/{chatId}/visibility [patch]
func (c *ChatController) UpdateVisibility(ctx *gin.Context) {
	p := principal(ctx)
	ch, err := c.ownedChat(ctx, p)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	var request dto.VisibilityRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "Requisição inválida", err.Error()))
		return
	}
	v, err := chat.ParseVisibility(request.Visibility)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "Visibilidade inválida", "Use 'private' ou 'shared'"))
		return
	}

	if err := c.chatRepository.UpdateVisibility(ctx, ch.ID, v); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ch.Visibility = v

	c.logger.Info("Visibilidade do chat alterada", "chat_id", ch.ID, "visibility", v)
	ctx.JSON(http.StatusOK, dto.ToChatResponse(ch, c.service.Generating(ch.ID)))
}

// Delete remove um chat e suas mensagens
// @Summary Remove um chat
// @Description Apenas o dono pode remover o chat. Não é permitido remover durante uma geração.
// @Tags chats
// @Security Bearer
// @Param chatId path string true "ID do chat"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats/{chatId} [delete]
func (c *ChatController) Delete(ctx *gin.Context) {
	ch, err := c.ownedChat(ctx, principal(ctx))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	if c.service.Generating(ch.ID) {
		ctx.JSON(http.StatusConflict, dto.NewErrorResponse(http.StatusConflict, "Geração em andamento", "Aguarde o fim da resposta para remover o chat"))
		return
	}

	if err := c.chatRepository.DeleteChat(ctx, ch.ID); err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	c.logger.Info("Chat removido", "chat_id", ch.ID)
	ctx.Status(http.StatusNoContent)
}

func (c *ChatController) ownedChat(ctx *gin.Context, p streaming.Principal) (*chat.Chat, error) {
	ch, err := c.service.AuthorizeRead(ctx, p, ctx.Param("chatId"))
	if err != nil {
		return nil, err
	}
	if !ch.IsOwner(p.UserID) {
		return nil, streaming.ErrNotChatOwner
	}
	return ch, nil
}
