package streaming

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/pkg/stream"
)

// State representa a fase de um Handle
type State string

const (
	StateGenerating State = "generating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Handle é o registro transitório de um stream ativo de um chat. Guarda o
// log completo de eventos, permitindo que consumidores conectados depois
// recebam a resposta desde o início.
type Handle struct {
	ID     uuid.UUID
	ChatID uuid.UUID
	// Owner é quem enviou a mensagem que iniciou a geração
	Owner Principal

	clock func() time.Time

	mu           sync.Mutex
	events       []stream.Event
	content      strings.Builder
	notify       chan struct{}
	state        State
	subscribers  int
	createdAt    time.Time
	finishedAt   time.Time
	lastDetachAt time.Time
}

func newHandle(chatID uuid.UUID, clock func() time.Time) *Handle {
	return &Handle{
		ID:        uuid.New(),
		ChatID:    chatID,
		clock:     clock,
		notify:    make(chan struct{}),
		state:     StateGenerating,
		createdAt: clock(),
	}
}

// append sequencia e grava um evento no log. Eventos após o terminal são
// descartados e o retorno é false.
func (h *Handle) append(ev stream.Event) (stream.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateGenerating {
		return ev, false
	}

	ev.Seq = int64(len(h.events) + 1)
	h.events = append(h.events, ev)

	switch ev.Type {
	case stream.TypeContent:
		h.content.WriteString(ev.Content)
	case stream.TypeDone:
		h.state = StateDone
		h.finishedAt = h.clock()
	case stream.TypeError:
		h.state = StateFailed
		h.finishedAt = h.clock()
	}

	close(h.notify)
	h.notify = make(chan struct{})
	return ev, true
}

// State retorna a fase atual do Handle
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Content retorna o texto acumulado até o momento
func (h *Handle) Content() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content.String()
}

// LastSeq retorna a sequência do último evento gravado
func (h *Handle) LastSeq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(len(h.events))
}

// Subscribers retorna quantos consumidores estão conectados
func (h *Handle) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers
}

// Events retorna uma cópia do log de eventos
func (h *Handle) Events() []stream.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]stream.Event, len(h.events))
	copy(out, h.events)
	return out
}

// Subscribe conecta um consumidor que receberá os eventos com sequência
// maior que afterSeq. Use zero para receber o log desde o início.
func (h *Handle) Subscribe(afterSeq int64) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq > int64(len(h.events)) {
		afterSeq = int64(len(h.events))
	}

	h.subscribers++
	return &Subscription{handle: h, cursor: int(afterSeq)}
}

// expired indica se o Handle terminou e ficou sem consumidores por mais
// que retention
func (h *Handle) expired(now time.Time, retention time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateGenerating || h.subscribers > 0 {
		return false
	}
	since := h.finishedAt
	if h.lastDetachAt.After(since) {
		since = h.lastDetachAt
	}
	return now.Sub(since) >= retention
}

// Subscription é o cursor de um consumidor sobre o log de um Handle. Não
// é segura para uso concorrente.
type Subscription struct {
	handle *Handle
	cursor int
	closed bool
}

// Handle retorna o Handle assinado
func (s *Subscription) Handle() *Handle {
	return s.handle
}

// Next retorna o próximo evento disponível. Quando não há evento, ok é
// false e wait é fechado assim que um novo evento for gravado. Depois do
// evento terminal, Next retorna io.EOF.
func (s *Subscription) Next() (ev stream.Event, ok bool, wait <-chan struct{}, err error) {
	if s.closed {
		return stream.Event{}, false, nil, io.EOF
	}

	h := s.handle
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.cursor < len(h.events) {
		ev = h.events[s.cursor]
		s.cursor++
		return ev, true, nil, nil
	}
	if h.state != StateGenerating {
		return stream.Event{}, false, nil, io.EOF
	}
	return stream.Event{}, false, h.notify, nil
}

// Recv bloqueia até o próximo evento, o fim do stream (io.EOF) ou o
// cancelamento do contexto
func (s *Subscription) Recv(ctx context.Context) (stream.Event, error) {
	for {
		ev, ok, wait, err := s.Next()
		if err != nil {
			return stream.Event{}, err
		}
		if ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return stream.Event{}, ctx.Err()
		case <-wait:
		}
	}
}

// Close desconecta o consumidor. Não interrompe a geração.
func (s *Subscription) Close() {
	if s.closed {
		return
	}
	s.closed = true

	h := s.handle
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers--
	h.lastDetachAt = h.clock()
}
