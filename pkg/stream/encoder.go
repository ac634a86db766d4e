package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// contentPayload, metadataPayload e errorPayload são as formas JSON
// aceitas na linha "data:"
type contentPayload struct {
	Content string `json:"content"`
}

type metadataPayload struct {
	SuggestedTitle string `json:"suggestedTitle"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SetHeaders define os cabeçalhos de resposta de um stream SSE.
// Deve ser chamado antes da primeira escrita no corpo.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Encoder escreve eventos no formato SSE
type Encoder struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher
	withIDs  bool
	lastSent int64
}

// NewEncoder cria um Encoder. Quando w implementa http.Flusher cada
// evento é descarregado imediatamente. withIDs controla a emissão da
// linha "id:" com o número de sequência do evento.
func NewEncoder(w io.Writer, withIDs bool) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f, withIDs: withIDs}
}

// Encode escreve um único evento
func (e *Encoder) Encode(ev Event) error {
	data, err := MarshalData(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.withIDs && ev.Seq > 0 {
		if _, err := io.WriteString(e.w, "id: "+strconv.FormatInt(ev.Seq, 10)+"\n"); err != nil {
			return fmt.Errorf("erro ao escrever id do evento: %w", err)
		}
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("erro ao escrever evento: %w", err)
	}
	if ev.Seq > 0 {
		e.lastSent = ev.Seq
	}
	e.flush()
	return nil
}

// KeepAlive escreve um comentário SSE para manter a conexão aberta
func (e *Encoder) KeepAlive() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := io.WriteString(e.w, ": ping\n\n"); err != nil {
		return fmt.Errorf("erro ao escrever keep-alive: %w", err)
	}
	e.flush()
	return nil
}

// LastSent retorna a sequência do último evento escrito
func (e *Encoder) LastSent() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSent
}

func (e *Encoder) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

// MarshalData serializa o payload da linha "data:" de um evento
func MarshalData(ev Event) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	switch ev.Type {
	case TypeContent:
		return json.Marshal(contentPayload{Content: ev.Content})
	case TypeMetadata:
		return json.Marshal(metadataPayload{SuggestedTitle: ev.Title})
	case TypeError:
		return json.Marshal(errorPayload{Error: ev.Code, Message: ev.Message})
	case TypeDone:
		return []byte(DoneMarker), nil
	}
	return nil, ErrInvalidEvent
}
