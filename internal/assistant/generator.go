// Package assistant contém os backends que geram o texto das respostas
// do assistente, fragmento por fragmento.
package assistant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/domain/chat"
)

// ErrEmptyPrompt ocorre quando a geração é chamada sem mensagem
var ErrEmptyPrompt = errors.New("mensagem do usuário vazia")

// Request descreve um turno a ser respondido
type Request struct {
	ChatID  uuid.UUID
	Message string
	// History contém as mensagens já persistidas do chat, em ordem,
	// incluindo a mensagem atual do usuário
	History []chat.Message
}

// EmitFunc recebe cada fragmento gerado, na ordem de produção. Um erro
// retornado interrompe a geração.
type EmitFunc func(fragment string) error

// Generator produz a resposta do assistente como uma sequência de
// fragmentos de texto
type Generator interface {
	Generate(ctx context.Context, req Request, emit EmitFunc) error
	// Name identifica o backend nos metadados da mensagem
	Name() string
}
