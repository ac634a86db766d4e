package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry mantém, por processo, no máximo um Handle por chat
type Registry struct {
	mu        sync.Mutex
	handles   map[uuid.UUID]*Handle
	retention time.Duration
	clock     func() time.Time
}

// NewRegistry cria um Registry que descarta handles terminados e sem
// consumidores após retention
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		handles:   make(map[uuid.UUID]*Handle),
		retention: retention,
		clock:     time.Now,
	}
}

// Begin retorna o Handle em geração do chat ou cria um novo em nome de
// owner. created é true somente quando o chamador deve iniciar a geração.
// Um Handle já terminado é substituído.
func (r *Registry) Begin(chatID uuid.UUID, owner Principal) (h *Handle, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[chatID]; ok && cur.State() == StateGenerating {
		return cur, false
	}

	h = newHandle(chatID, r.clock)
	h.Owner = owner
	r.handles[chatID] = h
	return h, true
}

// Lookup retorna o Handle do chat, se existir e ainda estiver retido
func (r *Registry) Lookup(chatID uuid.UUID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[chatID]
	if !ok {
		return nil, false
	}
	if h.expired(r.clock(), r.retention) {
		delete(r.handles, chatID)
		return nil, false
	}
	return h, true
}

// Generating indica se há uma geração em andamento para o chat
func (r *Registry) Generating(chatID uuid.UUID) bool {
	h, ok := r.Lookup(chatID)
	return ok && h.State() == StateGenerating
}

// Remove descarta o Handle do chat se ele ainda for h
func (r *Registry) Remove(chatID uuid.UUID, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[chatID]; ok && cur == h {
		delete(r.handles, chatID)
	}
}

// Active retorna os handles ainda em geração
func (r *Registry) Active() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Handle
	for _, h := range r.handles {
		if h.State() == StateGenerating {
			out = append(out, h)
		}
	}
	return out
}

// Len retorna quantos handles estão registrados
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Sweep descarta os handles expirados e retorna quantos foram removidos
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	n := 0
	for id, h := range r.handles {
		if h.expired(now, r.retention) {
			delete(r.handles, id)
			n++
		}
	}
	return n
}

// Run executa Sweep a cada interval até o contexto ser cancelado
func (r *Registry) Run(ctx context.Context, interval time.Duration, onSweep func(n int)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}
