package streaming

import (
	"errors"
	"fmt"
)

// Erros retornados antes de o stream ser aberto. Falhas depois da
// abertura viram eventos de erro no próprio stream.
var (
	ErrForbidden  = errors.New("acesso negado")
	ErrBadRequest = errors.New("requisição inválida")
	ErrConflict   = errors.New("conflito de geração")
	ErrNoStream   = errors.New("nenhum stream ativo para o chat")
	ErrClosed     = errors.New("serviço de streaming encerrado")

	ErrInvalidChatID  = fmt.Errorf("%w: ID de chat inválido", ErrBadRequest)
	ErrEmptyMessage   = fmt.Errorf("%w: mensagem vazia", ErrBadRequest)
	ErrMessageTooLong = fmt.Errorf("%w: mensagem excede o tamanho máximo", ErrBadRequest)

	ErrCompanyMismatch = fmt.Errorf("%w: empresa difere da empresa do usuário", ErrForbidden)
	ErrNotChatOwner    = fmt.Errorf("%w: usuário não é dono do chat", ErrForbidden)
	ErrChatNotReadable = fmt.Errorf("%w: chat não pertence à empresa ou não é visível ao usuário", ErrForbidden)

	ErrStreamReplaced = fmt.Errorf("%w: o stream pedido foi substituído por uma nova resposta", ErrNoStream)
)

// errIdleTimeout e errShutdown são causas de cancelamento da geração
var (
	errIdleTimeout = errors.New("gerador ficou ocioso além do limite")
	errShutdown    = errors.New("servidor em desligamento")
)
