// Package cache contém a integração com o Redis, usada para coordenar as
// gerações entre instâncias do serviço.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/streaming"
	"github.com/hugohenrick/companychat/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript só remove a chave se ela ainda pertencer ao token
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewClient conecta ao Redis e verifica a conexão
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR não configurado")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("erro ao conectar ao redis: %w", err)
	}
	return rdb, nil
}

// RedisLocker implementa streaming.Locker com SET NX no Redis
type RedisLocker struct {
	rdb    goredis.Cmdable
	prefix string
	logger logger.Logger
}

// NewRedisLocker cria um RedisLocker. As chaves ficam em <prefix><chatID>.
func NewRedisLocker(rdb goredis.Cmdable, prefix string, log logger.Logger) *RedisLocker {
	if prefix == "" {
		prefix = "companychat:generation:"
	}
	return &RedisLocker{
		rdb:    rdb,
		prefix: prefix,
		logger: log.With("component", "redis_locker"),
	}
}

// Acquire implementa streaming.Locker.Acquire
func (l *RedisLocker) Acquire(ctx context.Context, chatID uuid.UUID, ttl time.Duration) (func(), error) {
	key := l.prefix + chatID.String()
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("erro ao obter lock no redis: %w", err)
	}
	if !ok {
		return nil, streaming.ErrLockHeld
	}

	release := func() {
		// a liberação não pode depender do contexto da requisição
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			l.logger.Warn("Erro ao liberar lock de geração", "chat_id", chatID, "error", err)
		}
	}
	return release, nil
}
