package streaming

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld ocorre quando outra instância já gera a resposta do chat
var ErrLockHeld = errors.New("geração do chat em andamento em outra instância")

// Locker garante uma única geração por chat entre instâncias do serviço
type Locker interface {
	// Acquire toma o lock do chat por até ttl. A função retornada o libera.
	Acquire(ctx context.Context, chatID uuid.UUID, ttl time.Duration) (release func(), err error)
}

// NopLocker é usado quando há uma única instância. O Registry já garante
// a exclusão dentro do processo.
type NopLocker struct{}

// Acquire implementa Locker.Acquire
func (NopLocker) Acquire(context.Context, uuid.UUID, time.Duration) (func(), error) {
	return func() {}, nil
}
