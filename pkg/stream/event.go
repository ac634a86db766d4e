// Package stream define o enquadramento de eventos (Server-Sent Events)
// usado entre o produtor de respostas do chat e os consumidores.
//
// Cada evento é uma linha "data: <JSON>" seguida de uma linha em branco,
// opcionalmente precedida de "id: <seq>". O marcador terminal de sucesso
// é a linha literal "data: [DONE]".
package stream

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Type identifica o tipo de um evento do stream
type Type string

const (
	TypeContent  Type = "content-delta"
	TypeMetadata Type = "metadata"
	TypeDone     Type = "done"
	TypeError    Type = "error"
)

// Códigos estáveis enviados em eventos de erro
const (
	CodeGenerationFailed  = "generation_failed"
	CodeIdleTimeout       = "idle_timeout"
	CodeEmptyResponse     = "empty_response"
	CodePersistenceFailed = "persistence_failed"
	CodeShutdown          = "shutdown"
	CodeConflict          = "conflict"
)

// MaxTitleLength é o tamanho máximo, em runas, de um título sugerido
const MaxTitleLength = 80

// DoneMarker é o payload literal do evento terminal de sucesso
const DoneMarker = "[DONE]"

var (
	ErrInvalidEvent   = errors.New("evento inválido")
	ErrInvalidTitle   = errors.New("título sugerido inválido")
	ErrInvalidPayload = errors.New("payload de evento inválido")
)

// Event é um evento transitório do stream. Seq é monotônico por stream,
// começando em 1; zero significa que o evento ainda não foi sequenciado.
type Event struct {
	Seq     int64
	Type    Type
	Content string
	Title   string
	Code    string
	Message string
}

// Content cria um evento content-delta
func Content(fragment string) Event {
	return Event{Type: TypeContent, Content: fragment}
}

// Metadata cria um evento metadata com o título sugerido
func Metadata(title string) Event {
	return Event{Type: TypeMetadata, Title: title}
}

// Done cria o evento terminal de sucesso
func Done() Event {
	return Event{Type: TypeDone}
}

// Failure cria o evento terminal de erro
func Failure(code, message string) Event {
	return Event{Type: TypeError, Code: code, Message: message}
}

// Terminal indica se o evento encerra o stream
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// Validate verifica se o evento respeita o contrato do seu tipo
func (e Event) Validate() error {
	switch e.Type {
	case TypeContent:
		if e.Content == "" {
			return ErrInvalidEvent
		}
		if !utf8.ValidString(e.Content) {
			return ErrInvalidEvent
		}
		return nil
	case TypeMetadata:
		return ValidateTitle(e.Title)
	case TypeDone:
		return nil
	case TypeError:
		if e.Code == "" {
			return ErrInvalidEvent
		}
		return nil
	default:
		return ErrInvalidEvent
	}
}

// ValidateTitle verifica as restrições de um título sugerido
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrInvalidTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrInvalidTitle
	}
	if strings.ContainsAny(title, "\"':") {
		return ErrInvalidTitle
	}
	return nil
}
