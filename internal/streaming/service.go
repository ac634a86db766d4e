// Package streaming implementa o produtor de streams de resposta do chat:
// autoriza a requisição, executa uma única geração por chat e expõe a
// saída como um log ordenado de eventos para qualquer número de
// consumidores.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/assistant"
	"github.com/hugohenrick/companychat/internal/domain/chat"
	"github.com/hugohenrick/companychat/internal/observability"
	pkgcompany "github.com/hugohenrick/companychat/pkg/company"
	"github.com/hugohenrick/companychat/pkg/logger"
	"github.com/hugohenrick/companychat/pkg/stream"
)

// Config contém os limites do produtor
type Config struct {
	// IdleTimeout é o tempo máximo sem um fragmento de conteúdo
	IdleTimeout time.Duration
	// LockTTL é a validade do lock de geração entre instâncias
	LockTTL time.Duration
	// PersistTimeout limita a transação que grava a resposta
	PersistTimeout time.Duration
	// MaxMessageLength é o tamanho máximo da mensagem, em runas
	MaxMessageLength int
}

// DefaultConfig retorna os valores padrão
func DefaultConfig() Config {
	return Config{
		IdleTimeout:      30 * time.Second,
		LockTTL:          5 * time.Minute,
		PersistTimeout:   10 * time.Second,
		MaxMessageLength: 4000,
	}
}

// Principal identifica o usuário autenticado
type Principal struct {
	UserID    string
	CompanyID string
}

// Target é um chat já autorizado para receber uma mensagem
type Target struct {
	ChatID    uuid.UUID
	CompanyID string
	// Chat é nil quando o chat ainda não existe e será criado
	Chat *chat.Chat
}

// Mode descreve como um consumidor se conectou ao stream
type Mode string

const (
	ModeNew    Mode = "new"
	ModeAttach Mode = "attach"
	ModeResume Mode = "resume"
)

// Status é o estado do stream de um chat
type Status struct {
	Active      bool      `json:"active"`
	State       State     `json:"status,omitempty"`
	StreamID    uuid.UUID `json:"streamId,omitempty"`
	LastEventID int64     `json:"lastEventId"`
}

// Service é o produtor de streams
type Service struct {
	cfg       Config
	chats     chat.Repository
	companies pkgcompany.Validator
	generator assistant.Generator
	registry  *Registry
	locker    Locker
	metrics   *observability.Metrics
	logger    logger.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
}

// NewService cria o produtor. As gerações rodam num contexto próprio do
// serviço e só são interrompidas por Shutdown.
func NewService(
	cfg Config,
	chats chat.Repository,
	companies pkgcompany.Validator,
	generator assistant.Generator,
	registry *Registry,
	locker Locker,
	metrics *observability.Metrics,
	log logger.Logger,
) *Service {
	if locker == nil {
		locker = NopLocker{}
	}
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	ctx, cancel := context.WithCancelCause(context.Background())

	return &Service{
		cfg:       cfg,
		chats:     chats,
		companies: companies,
		generator: generator,
		registry:  registry,
		locker:    locker,
		metrics:   metrics,
		logger:    log.With("component", "streaming"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Registry retorna o registro de handles do serviço
func (s *Service) Registry() *Registry {
	return s.registry
}

// AuthorizeCompany resolve a empresa da requisição. Um companyID vazio
// assume a empresa do usuário.
func (s *Service) AuthorizeCompany(ctx context.Context, p Principal, companyID string) (string, error) {
	if companyID == "" {
		companyID = p.CompanyID
	}
	if companyID != p.CompanyID {
		return "", ErrCompanyMismatch
	}

	if err := s.companies.Validate(ctx, companyID); err != nil {
		if errors.Is(err, pkgcompany.ErrCompanyNotFound) || errors.Is(err, pkgcompany.ErrCompanyNotAllowed) ||
			errors.Is(err, pkgcompany.ErrCompanyNotSpecified) {
			return "", fmt.Errorf("%w: %w", ErrForbidden, err)
		}
		return "", err
	}
	return companyID, nil
}

// AuthorizePost verifica se o usuário pode enviar uma mensagem ao chat.
// Um chat inexistente é aceito e será criado em nome do usuário.
func (s *Service) AuthorizePost(ctx context.Context, p Principal, companyID, rawChatID string) (Target, error) {
	companyID, err := s.AuthorizeCompany(ctx, p, companyID)
	if err != nil {
		return Target{}, err
	}

	chatID, err := uuid.Parse(rawChatID)
	if err != nil {
		return Target{}, ErrInvalidChatID
	}

	c, err := s.chats.GetChatByID(ctx, chatID)
	if errors.Is(err, chat.ErrChatNotFound) {
		return Target{ChatID: chatID, CompanyID: companyID}, nil
	}
	if err != nil {
		return Target{}, fmt.Errorf("erro ao buscar chat: %w", err)
	}

	if !c.CanRead(companyID, p.UserID) {
		return Target{}, ErrChatNotReadable
	}
	if !c.IsOwner(p.UserID) {
		return Target{}, ErrNotChatOwner
	}
	return Target{ChatID: chatID, CompanyID: companyID, Chat: c}, nil
}

// AuthorizeRead verifica se o usuário pode ler o chat
func (s *Service) AuthorizeRead(ctx context.Context, p Principal, rawChatID string) (*chat.Chat, error) {
	companyID, err := s.AuthorizeCompany(ctx, p, "")
	if err != nil {
		return nil, err
	}

	chatID, err := uuid.Parse(rawChatID)
	if err != nil {
		return nil, ErrInvalidChatID
	}

	c, err := s.chats.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.CanRead(companyID, p.UserID) {
		return nil, ErrChatNotReadable
	}
	return c, nil
}

// ValidateMessage verifica o texto enviado pelo usuário
func (s *Service) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Open envia a mensagem ao chat e retorna a assinatura do stream da
// resposta. Se já houver uma geração em andamento para o chat, o
// chamador é conectado a ela e a mensagem não é gravada.
func (s *Service) Open(ctx context.Context, p Principal, t Target, message string) (*Subscription, Mode, error) {
	if err := s.ValidateMessage(message); err != nil {
		return nil, "", err
	}
	if s.ctx.Err() != nil {
		return nil, "", ErrClosed
	}

	h, created := s.registry.Begin(t.ChatID, Principal{UserID: p.UserID, CompanyID: t.CompanyID})
	if !created {
		// a autorização pode ter visto o chat antes de outro usuário
		// criá-lo
		if h.Owner.CompanyID != t.CompanyID || h.Owner.UserID != p.UserID {
			return nil, "", ErrNotChatOwner
		}
		s.metrics.Attaches.WithLabelValues(string(ModeAttach)).Inc()
		s.logger.Info("Mensagem recebida durante geração, conectando ao stream existente",
			"chat_id", t.ChatID, "stream_id", h.ID)
		return s.subscribe(h, 0), ModeAttach, nil
	}

	log := s.logger.With("chat_id", t.ChatID, "stream_id", h.ID)

	release, err := s.locker.Acquire(ctx, t.ChatID, s.cfg.LockTTL)
	if err != nil {
		s.abort(h, stream.CodeConflict, "outra instância já está gerando a resposta")
		if errors.Is(err, ErrLockHeld) {
			return nil, "", fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil, "", fmt.Errorf("erro ao obter lock de geração: %w", err)
	}

	c, err := s.ensureChat(ctx, p, t)
	if err != nil {
		release()
		s.abort(h, stream.CodePersistenceFailed, "não foi possível criar o chat")
		return nil, "", err
	}

	userMsg, err := chat.NewMessage(c.ID, chat.RoleUser, message)
	if err != nil {
		release()
		s.abort(h, stream.CodePersistenceFailed, "mensagem inválida")
		return nil, "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := s.chats.AppendMessage(ctx, userMsg); err != nil {
		release()
		s.abort(h, stream.CodePersistenceFailed, "não foi possível gravar a mensagem")
		return nil, "", fmt.Errorf("erro ao gravar mensagem do usuário: %w", err)
	}

	sub := s.subscribe(h, 0)
	s.metrics.Attaches.WithLabelValues(string(ModeNew)).Inc()

	s.wg.Add(1)
	go s.run(h, c, message, release, log)

	log.Info("Geração iniciada", "generator", s.generator.Name())
	return sub, ModeNew, nil
}

// Attach conecta um consumidor ao stream do chat, entregando os eventos
// com sequência maior que lastEventID. Com streamID diferente de
// uuid.Nil, apenas aquele stream serve: se o chat já tiver outra
// resposta retida, o retorno é ErrStreamReplaced. Retorna ErrNoStream
// quando não há handle retido para o chat.
func (s *Service) Attach(ctx context.Context, p Principal, rawChatID string, lastEventID int64, streamID uuid.UUID) (*Subscription, Mode, error) {
	c, err := s.AuthorizeRead(ctx, p, rawChatID)
	if err != nil {
		return nil, "", err
	}

	h, ok := s.registry.Lookup(c.ID)
	if !ok {
		return nil, "", ErrNoStream
	}
	if streamID != uuid.Nil && streamID != h.ID {
		return nil, "", ErrStreamReplaced
	}

	mode := ModeAttach
	if lastEventID > 0 {
		mode = ModeResume
	}
	s.metrics.Attaches.WithLabelValues(string(mode)).Inc()
	return s.subscribe(h, lastEventID), mode, nil
}

// Status informa se há um stream retido para o chat
func (s *Service) Status(ctx context.Context, p Principal, rawChatID string) (Status, error) {
	c, err := s.AuthorizeRead(ctx, p, rawChatID)
	if err != nil {
		return Status{}, err
	}

	h, ok := s.registry.Lookup(c.ID)
	if !ok {
		return Status{}, nil
	}
	return Status{
		Active:      true,
		State:       h.State(),
		StreamID:    h.ID,
		LastEventID: h.LastSeq(),
	}, nil
}

// Generating indica se o chat tem uma geração em andamento
func (s *Service) Generating(chatID uuid.UUID) bool {
	return s.registry.Generating(chatID)
}

// Release desconecta um consumidor
func (s *Service) Release(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Close()
	s.metrics.Subscribers.Dec()
}

// Sweep descarta os handles expirados
func (s *Service) Sweep() int {
	n := s.registry.Sweep()
	if n > 0 {
		s.recordSwept(n)
	}
	return n
}

// RunSweeper descarta os handles expirados a cada interval até ctx ser
// cancelado
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	return s.registry.Run(ctx, interval, s.recordSwept)
}

func (s *Service) recordSwept(n int) {
	s.metrics.HandlesSwept.Add(float64(n))
	s.logger.Debug("Handles expirados descartados", "count", n)
}

// Shutdown interrompe as gerações em andamento, que terminam com o erro
// "shutdown", e aguarda até o fim delas ou do contexto
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel(errShutdown)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) subscribe(h *Handle, afterSeq int64) *Subscription {
	s.metrics.Subscribers.Inc()
	return h.Subscribe(afterSeq)
}

func (s *Service) ensureChat(ctx context.Context, p Principal, t Target) (*chat.Chat, error) {
	if t.Chat != nil {
		return t.Chat, nil
	}

	c, err := chat.NewChat(t.ChatID, t.CompanyID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	err = s.chats.CreateChat(ctx, c)
	if errors.Is(err, chat.ErrChatExists) {
		// criado por outra requisição entre a autorização e agora
		existing, err := s.chats.GetChatByID(ctx, t.ChatID)
		if err != nil {
			return nil, fmt.Errorf("erro ao buscar chat: %w", err)
		}
		if !existing.BelongsTo(t.CompanyID) || !existing.IsOwner(p.UserID) {
			return nil, ErrNotChatOwner
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao criar chat: %w", err)
	}
	return c, nil
}

// abort encerra um handle que não chegou a iniciar a geração
func (s *Service) abort(h *Handle, code, message string) {
	s.publish(h, stream.Failure(code, message))
	s.registry.Remove(h.ChatID, h)
}

func (s *Service) publish(h *Handle, ev stream.Event) {
	if _, ok := h.append(ev); !ok {
		s.logger.Warn("Evento descartado após o fim do stream", "chat_id", h.ChatID, "type", ev.Type)
	}
}

// run executa a geração de um turno. Termina sempre com exatamente um
// evento terminal.
func (s *Service) run(h *Handle, c *chat.Chat, message string, release func(), log logger.Logger) {
	defer s.wg.Done()
	defer release()

	start := time.Now()
	s.metrics.StreamsStarted.WithLabelValues(s.generator.Name()).Inc()
	s.metrics.StreamsActive.Inc()
	defer s.metrics.StreamsActive.Dec()

	outcome := s.generate(h, c, message, log, start)

	s.metrics.StreamsFinished.WithLabelValues(outcome).Inc()
	s.metrics.StreamDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	log.Info("Geração finalizada", "outcome", outcome, "duration", time.Since(start).String())
}

func (s *Service) generate(h *Handle, c *chat.Chat, message string, log logger.Logger, start time.Time) string {
	ctx, cancel := context.WithCancelCause(s.ctx)
	defer cancel(nil)

	fail := func(code, msg string) string {
		s.publish(h, stream.Failure(code, msg))
		return code
	}

	history, err := s.chats.GetMessagesByChatID(ctx, c.ID)
	if err != nil {
		log.Warn("Erro ao carregar histórico, gerando sem contexto", "error", err)
		history = nil
	}

	idle := time.AfterFunc(s.cfg.IdleTimeout, func() { cancel(errIdleTimeout) })
	defer idle.Stop()

	var (
		guard     runeGuard
		fragments int
	)
	emitContent := func(text string) {
		if text == "" {
			return
		}
		if fragments == 0 {
			s.metrics.FirstFragment.Observe(time.Since(start).Seconds())
		}
		fragments++
		s.metrics.Fragments.Inc()
		s.publish(h, stream.Content(text))
	}

	err = s.generator.Generate(ctx, assistant.Request{
		ChatID:  c.ID,
		Message: message,
		History: history,
	}, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		idle.Reset(s.cfg.IdleTimeout)
		emitContent(guard.Push(fragment))
		return nil
	})
	idle.Stop()

	if err != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, errIdleTimeout):
			log.Warn("Gerador ocioso, encerrando stream", "fragments", fragments)
			return fail(stream.CodeIdleTimeout, "o assistente parou de responder")
		case errors.Is(cause, errShutdown):
			log.Warn("Geração interrompida pelo desligamento", "fragments", fragments)
			return fail(stream.CodeShutdown, "o servidor está sendo reiniciado")
		default:
			log.Error("Erro na geração", "error", err, "fragments", fragments)
			return fail(stream.CodeGenerationFailed, "falha ao gerar a resposta")
		}
	}
	emitContent(guard.Flush())

	content := h.Content()
	if strings.TrimSpace(content) == "" {
		log.Warn("Gerador terminou sem conteúdo")
		return fail(stream.CodeEmptyResponse, "o assistente não produziu resposta")
	}

	title := ""
	if !c.HasTitle() {
		first := message
		if m := chat.FirstUserMessage(history); m != nil {
			first = m.Content
		}
		title = assistant.SuggestTitle(first)
	}

	reply, err := chat.NewMessage(c.ID, chat.RoleAssistant, content)
	if err != nil {
		return fail(stream.CodeEmptyResponse, "o assistente não produziu resposta")
	}
	reply.Metadata = map[string]string{
		"generator": s.generator.Name(),
		"stream_id": h.ID.String(),
	}

	// a gravação não depende do contexto da geração: uma resposta completa
	// é gravada mesmo durante o desligamento
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancelPersist()
	if err := s.chats.CompleteTurn(persistCtx, c.ID, reply, title); err != nil {
		log.Error("Erro ao gravar resposta do assistente", "error", err)
		return fail(stream.CodePersistenceFailed, "não foi possível salvar a resposta")
	}

	if title != "" {
		s.publish(h, stream.Metadata(title))
	}
	s.publish(h, stream.Done())
	return "done"
}
