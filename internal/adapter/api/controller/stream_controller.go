package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/adapter/api/dto"
	"github.com/hugohenrick/companychat/internal/streaming"
	"github.com/hugohenrick/companychat/pkg/logger"
	"github.com/hugohenrick/companychat/pkg/stream"
)

// StreamOptions controla o enquadramento das respostas SSE
type StreamOptions struct {
	// EventIDs habilita a linha "id:" em cada evento
	EventIDs bool
	// KeepAlive é o intervalo entre comentários de keep-alive. Zero desabilita.
	KeepAlive time.Duration
}

// StreamController expõe o produtor de streams via SSE
type StreamController struct {
	service *streaming.Service
	opts    StreamOptions
	logger  logger.Logger
}

// NewStreamController cria uma nova instância de StreamController
func NewStreamController(service *streaming.Service, opts StreamOptions, log logger.Logger) *StreamController {
	return &StreamController{
		service: service,
		opts:    opts,
		logger:  log.With("component", "stream"),
	}
}

// Post envia uma mensagem ao chat e transmite a resposta
// @Summary Envia uma mensagem e transmite a resposta
// @Description Grava a mensagem do usuário e responde com um stream SSE de eventos content-delta, metadata e um evento terminal ([DONE] ou erro). Se já houver uma geração em andamento, conecta ao stream existente. Um chat inexistente é criado.
// @Tags stream
// @Accept json
// @Produce text/event-stream
// @Security Bearer
// @Param chatId path string true "ID do chat"
// @Param request body dto.StreamRequest true "Mensagem"
// @Success 200 {string} string "stream SSE"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats/{chatId}/stream [post]
func (c *StreamController) Post(ctx *gin.Context) {
	p := principal(ctx)

	// o corpo só é rejeitado depois da autorização; companyId ausente
	// assume a empresa do token
	var request dto.StreamRequest
	bodyErr := ctx.ShouldBindJSON(&request)

	target, err := c.service.AuthorizePost(ctx, p, request.CompanyID, ctx.Param("chatId"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	if bodyErr != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "Requisição inválida", bodyErr.Error()))
		return
	}

	sub, mode, err := c.service.Open(ctx.Request.Context(), p, target, request.Message)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	c.serve(ctx, sub, mode)
}

// Attach conecta ao stream retido de um chat
// @Summary Conecta ao stream de um chat
// @Description Reenvia os eventos do stream em andamento ou recém-concluído. Com Last-Event-ID, apenas os eventos posteriores são enviados. Responde 204 quando não há stream retido.
// @Tags stream
// @Produce text/event-stream
// @Security Bearer
// @Param chatId path string true "ID do chat"
// @Param Last-Event-ID header int false "Último id de evento recebido"
// @Param X-Stream-Id header string false "Stream esperado; outro stream retido responde 204"
// @Success 200 {string} string "stream SSE"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats/{chatId}/stream [get]
func (c *StreamController) Attach(ctx *gin.Context) {
	lastEventID, err := parseLastEventID(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "Last-Event-ID inválido", err.Error()))
		return
	}
	streamID, err := parseStreamID(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "X-Stream-Id inválido", err.Error()))
		return
	}

	sub, mode, err := c.service.Attach(ctx, principal(ctx), ctx.Param("chatId"), lastEventID, streamID)
	if errors.Is(err, streaming.ErrNoStream) {
		ctx.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	c.serve(ctx, sub, mode)
}

// Status informa se há um stream retido para o chat
// @Summary Estado do stream de um chat
// @Tags stream
// @Produce json
// @Security Bearer
// @Param chatId path string true "ID do chat"
// @Success 200 {object} dto.StreamStatusResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {string} string
// @Router /chats/{chatId}/stream/status [get]
func (c *StreamController) Status(ctx *gin.Context) {
	st, err := c.service.Status(ctx, principal(ctx), ctx.Param("chatId"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	response := dto.StreamStatusResponse{
		Active:      st.Active,
		Status:      string(st.State),
		LastEventID: st.LastEventID,
	}
	if st.Active {
		response.StreamID = st.StreamID.String()
	}
	ctx.JSON(http.StatusOK, response)
}

// serve escreve os eventos da assinatura até o evento terminal ou a
// desconexão do cliente. Desconectar não interrompe a geração.
func (c *StreamController) serve(ctx *gin.Context, sub *streaming.Subscription, mode streaming.Mode) {
	defer c.service.Release(sub)

	h := sub.Handle()
	log := c.logger.With("chat_id", h.ChatID, "stream_id", h.ID, "mode", mode)

	stream.SetHeaders(ctx.Writer.Header())
	ctx.Header("X-Stream-Id", h.ID.String())
	ctx.Status(http.StatusOK)
	ctx.Writer.Flush()

	enc := stream.NewEncoder(ctx.Writer, c.opts.EventIDs)

	var keepAlive <-chan time.Time
	if c.opts.KeepAlive > 0 {
		ticker := time.NewTicker(c.opts.KeepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	done := ctx.Request.Context().Done()
	for {
		ev, ok, wait, err := sub.Next()
		if err != nil {
			log.Debug("Stream entregue", "last_event_id", enc.LastSent())
			return
		}
		if ok {
			if err := enc.Encode(ev); err != nil {
				log.Debug("Cliente desconectado", "error", err, "last_event_id", enc.LastSent())
				return
			}
			continue
		}

		select {
		case <-done:
			log.Debug("Cliente desconectado", "last_event_id", enc.LastSent())
			return
		case <-wait:
		case <-keepAlive:
			if err := enc.KeepAlive(); err != nil {
				return
			}
		}
	}
}

// parseLastEventID lê o cabeçalho Last-Event-ID ou, na falta dele, o
// parâmetro lastEventId da query
func parseLastEventID(ctx *gin.Context) (int64, error) {
	raw := strings.TrimSpace(ctx.GetHeader("Last-Event-ID"))
	if raw == "" {
		raw = strings.TrimSpace(ctx.Query("lastEventId"))
	}
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, errors.New("deve ser um inteiro não negativo")
	}
	return id, nil
}

// parseStreamID lê o stream esperado do cabeçalho X-Stream-Id ou do
// parâmetro streamId. Vazio aceita qualquer stream.
func parseStreamID(ctx *gin.Context) (uuid.UUID, error) {
	raw := strings.TrimSpace(ctx.GetHeader("X-Stream-Id"))
	if raw == "" {
		raw = strings.TrimSpace(ctx.Query("streamId"))
	}
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
