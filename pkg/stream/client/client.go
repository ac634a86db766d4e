// Package client implementa o consumidor dos streams de resposta do chat.
//
// Um Consumer acumula os fragmentos recebidos, publica um Snapshot a cada
// evento e sabe reconectar a um stream em andamento sem reenviar a
// mensagem original.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hugohenrick/companychat/pkg/stream"
)

// State é a fase da mensagem acompanhada pelo Consumer
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var (
	// ErrConnectionLost indica que a conexão terminou sem evento terminal
	ErrConnectionLost = errors.New("conexão com o stream perdida")
	// ErrSequenceGap indica que um evento foi pulado entre duas entregas
	ErrSequenceGap = errors.New("lacuna na sequência de eventos")
	// ErrNoStream indica que o chat não tem stream retido no servidor
	ErrNoStream = errors.New("nenhum stream ativo para o chat")
	// ErrClosed indica que a conexão foi fechada por Close
	ErrClosed = errors.New("consumidor fechado")
	// ErrBusy indica que já há uma conexão aberta neste Consumer
	ErrBusy = errors.New("consumidor já está conectado")
	// ErrNothingToRetry indica que nenhuma mensagem foi enviada ainda
	ErrNothingToRetry = errors.New("nenhuma mensagem para reenviar")
)

// StreamError é um erro informado pelo servidor dentro do stream
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// HTTPError é uma resposta de erro recebida antes de o stream abrir
type HTTPError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("status %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Snapshot é o estado observável da mensagem em construção
type Snapshot struct {
	ChatID      string
	StreamID    string
	State       State
	Content     string
	Title       string
	LastEventID int64
	Err         error
}

// Options configura um Consumer
type Options struct {
	// BaseURL é o prefixo da API, por exemplo http://localhost:8080/api/v1
	BaseURL string
	Token   string
	// HTTPClient não deve ter Timeout, que cortaria streams longos
	HTTPClient *http.Client
	// OnUpdate recebe um Snapshot após cada evento aplicado
	OnUpdate func(Snapshot)
}

// Consumer acompanha a resposta de um chat. Apenas uma conexão fica
// aberta por vez.
type Consumer struct {
	opts Options

	mu         sync.Mutex
	snap       Snapshot
	content    strings.Builder
	cancel     context.CancelFunc
	companyID  string
	lastPrompt string
}

// New cria um Consumer
func New(opts Options) *Consumer {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Consumer{opts: opts, snap: Snapshot{State: StateIdle}}
}

// Snapshot retorna o estado atual
func (c *Consumer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Mount prepara o Consumer para um chat. Com autoResume e um chat já
// existente, consulta o servidor e, se houver stream retido, conecta a
// ele desde o início e bloqueia até o fim. O retorno indica se houve
// conexão.
func (c *Consumer) Mount(ctx context.Context, chatID string, autoResume, isNew bool) (bool, Snapshot, error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return false, c.Snapshot(), ErrBusy
	}
	c.resetLocked(chatID)
	c.mu.Unlock()

	if !autoResume || isNew {
		return false, c.Snapshot(), nil
	}

	st, err := c.Status(ctx, chatID)
	if err != nil {
		return false, c.Snapshot(), err
	}
	if !st.Active {
		return false, c.Snapshot(), nil
	}

	snap, err := c.Attach(ctx, chatID, 0)
	if errors.Is(err, ErrNoStream) {
		// descartado entre a consulta e a conexão
		return false, snap, nil
	}
	return true, snap, err
}

// Send envia uma mensagem e acompanha a resposta até o evento terminal,
// a perda da conexão ou Close. Bloqueia enquanto o stream estiver aberto.
func (c *Consumer) Send(ctx context.Context, chatID, companyID, message string) (Snapshot, error) {
	body, err := json.Marshal(map[string]string{"message": message, "companyId": companyID})
	if err != nil {
		return c.Snapshot(), err
	}

	connCtx, err := c.begin(ctx, chatID, true)
	if err != nil {
		return c.Snapshot(), err
	}
	defer c.end()

	c.mu.Lock()
	c.companyID = companyID
	c.lastPrompt = message
	c.mu.Unlock()

	req, err := c.newRequest(connCtx, http.MethodPost, c.streamURL(chatID), bytes.NewReader(body))
	if err != nil {
		return c.finish(StateFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return c.open(connCtx, req, 0, "")
}

// Attach conecta ao stream retido do chat. Com lastEventID zero o stream
// é reproduzido desde o início; caso contrário o conteúdo já acumulado é
// mantido e apenas os eventos seguintes do mesmo stream são aplicados.
// Retorna ErrNoStream quando o servidor não tem stream para o chat ou
// quando o stream acompanhado foi substituído por outra resposta.
func (c *Consumer) Attach(ctx context.Context, chatID string, lastEventID int64) (Snapshot, error) {
	connCtx, err := c.begin(ctx, chatID, lastEventID == 0)
	if err != nil {
		return c.Snapshot(), err
	}
	defer c.end()

	var expected string
	if lastEventID > 0 {
		c.mu.Lock()
		expected = c.snap.StreamID
		c.mu.Unlock()
	}

	req, err := c.newRequest(connCtx, http.MethodGet, c.streamURL(chatID), nil)
	if err != nil {
		return c.finish(StateFailed, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastEventID, 10))
	}
	if expected != "" {
		req.Header.Set("X-Stream-Id", expected)
	}

	return c.open(connCtx, req, lastEventID, expected)
}

// Resume reconecta ao stream a partir do último evento recebido. Útil
// após ErrConnectionLost.
func (c *Consumer) Resume(ctx context.Context) (Snapshot, error) {
	snap := c.Snapshot()
	if snap.ChatID == "" {
		return snap, ErrNoStream
	}
	return c.Attach(ctx, snap.ChatID, snap.LastEventID)
}

// Retry reenvia a última mensagem como uma nova requisição
func (c *Consumer) Retry(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	chatID, companyID, prompt := c.snap.ChatID, c.companyID, c.lastPrompt
	c.mu.Unlock()

	if prompt == "" {
		return c.Snapshot(), ErrNothingToRetry
	}
	return c.Send(ctx, chatID, companyID, prompt)
}

// Close fecha a conexão aberta, se houver. A geração continua no
// servidor e pode ser retomada com Attach.
func (c *Consumer) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// StreamStatus é a resposta do endpoint de estado do stream
type StreamStatus struct {
	Active      bool   `json:"active"`
	Status      string `json:"status"`
	StreamID    string `json:"streamId"`
	LastEventID int64  `json:"lastEventId"`
}

// Status consulta se o chat tem stream retido
func (c *Consumer) Status(ctx context.Context, chatID string) (StreamStatus, error) {
	var st StreamStatus
	err := c.getJSON(ctx, c.streamURL(chatID)+"/status", &st)
	return st, err
}

// Message é uma mensagem persistida
type Message struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Messages retorna as mensagens gravadas do chat. É o recurso quando não
// há stream para retomar.
func (c *Consumer) Messages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	err := c.getJSON(ctx, c.opts.BaseURL+"/chats/"+url.PathEscape(chatID)+"/messages", &msgs)
	return msgs, err
}

func (c *Consumer) begin(ctx context.Context, chatID string, reset bool) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil, ErrBusy
	}
	if reset || c.snap.ChatID != chatID {
		c.resetLocked(chatID)
	}
	c.snap.State = StateConnecting
	c.snap.Err = nil

	connCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return connCtx, nil
}

func (c *Consumer) end() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Consumer) resetLocked(chatID string) {
	c.content.Reset()
	c.snap = Snapshot{ChatID: chatID, State: StateIdle}
}

func (c *Consumer) snapshotLocked() Snapshot {
	s := c.snap
	s.Content = c.content.String()
	return s
}

// open executa a requisição e consome o stream. Com expected preenchido,
// uma resposta de outro stream é descartada sem aplicar eventos.
func (c *Consumer) open(ctx context.Context, req *http.Request, lastEventID int64, expected string) (Snapshot, error) {
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return c.finish(StateIdle, ErrClosed)
		}
		return c.finish(StateFailed, fmt.Errorf("%w: %w", ErrConnectionLost, err))
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		resp.Body.Close()
		return c.finish(StateIdle, ErrNoStream)
	case resp.StatusCode != http.StatusOK:
		herr := readHTTPError(resp)
		resp.Body.Close()
		return c.finish(StateFailed, herr)
	}

	streamID := resp.Header.Get("X-Stream-Id")
	if expected != "" && streamID != expected {
		resp.Body.Close()
		return c.finish(StateIdle, fmt.Errorf("%w: stream %s substituído por %s", ErrNoStream, expected, streamID))
	}

	c.mu.Lock()
	c.snap.StreamID = streamID
	c.snap.LastEventID = lastEventID
	c.mu.Unlock()
	c.update(StateStreaming)

	return c.consume(ctx, resp.Body)
}

func (c *Consumer) consume(ctx context.Context, body io.ReadCloser) (Snapshot, error) {
	defer body.Close()
	dec := stream.NewDecoder(body)

	for {
		ev, err := dec.Decode()
		if err != nil {
			if ctx.Err() != nil {
				return c.finish(StateIdle, ErrClosed)
			}
			return c.finish(StateFailed, fmt.Errorf("%w: %w", ErrConnectionLost, err))
		}

		c.mu.Lock()
		if ev.Seq > 0 {
			if ev.Seq != c.snap.LastEventID+1 {
				expected := c.snap.LastEventID + 1
				c.mu.Unlock()
				return c.finish(StateFailed, fmt.Errorf("%w: esperado %d, recebido %d", ErrSequenceGap, expected, ev.Seq))
			}
			c.snap.LastEventID = ev.Seq
		}
		switch ev.Type {
		case stream.TypeContent:
			c.content.WriteString(ev.Content)
		case stream.TypeMetadata:
			c.snap.Title = ev.Title
		}
		c.mu.Unlock()

		switch ev.Type {
		case stream.TypeDone:
			return c.finish(StateDone, nil)
		case stream.TypeError:
			return c.finish(StateFailed, &StreamError{Code: ev.Code, Message: ev.Message})
		default:
			c.update(StateStreaming)
		}
	}
}

// finish grava o estado final, mantendo o conteúdo parcial
func (c *Consumer) finish(state State, err error) (Snapshot, error) {
	c.mu.Lock()
	c.snap.State = state
	c.snap.Err = err
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return snap, err
}

func (c *Consumer) update(state State) {
	c.mu.Lock()
	c.snap.State = state
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Consumer) notify(snap Snapshot) {
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(snap)
	}
}

func (c *Consumer) streamURL(chatID string) string {
	return c.opts.BaseURL + "/chats/" + url.PathEscape(chatID) + "/stream"
}

func (c *Consumer) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar requisição: %w", err)
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	return req, nil
}

func (c *Consumer) getJSON(ctx context.Context, target string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("erro ao decodificar resposta: %w", err)
	}
	return nil
}

// readHTTPError interpreta o corpo de erro: JSON {code,message,details}
// ou texto puro
func readHTTPError(resp *http.Response) *HTTPError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	herr := &HTTPError{StatusCode: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		herr.Message = payload.Message
		herr.Details = payload.Details
		return herr
	}
	herr.Message = strings.TrimSpace(string(raw))
	return herr
}
