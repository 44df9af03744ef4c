package signup

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/cache"
)

// Gate decide se um autosave pode ir ao store agora. Allow devolve false enquanto o token
// estiver dentro do intervalo mínimo desde o último save aceito.
type Gate interface {
	Allow(ctx context.Context, token string) bool
}

// LocalGate mantém um rate.Limiter (1 evento por intervalo, burst 1) por token, em memória.
// Limiters sem uso são descartados após idle.
type LocalGate struct {
	interval time.Duration
	limiters *cache.TTL[*rate.Limiter]
	now      func() time.Time
}

// NewLocalGate cria o gate com o intervalo mínimo entre saves aceitos.
func NewLocalGate(interval time.Duration) *LocalGate {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	idle := 20 * interval
	if idle < time.Minute {
		idle = time.Minute
	}
	return &LocalGate{interval: interval, limiters: cache.New[*rate.Limiter](idle), now: time.Now}
}

func (g *LocalGate) Allow(_ context.Context, token string) bool {
	lim := g.limiters.GetOrCreate(token, func() *rate.Limiter {
		return rate.NewLimiter(rate.Every(g.interval), 1)
	})
	return lim.AllowN(g.now(), 1)
}

// Close libera a limpeza em segundo plano.
func (g *LocalGate) Close() { g.limiters.Close() }

// RedisGate compartilha o intervalo entre réplicas com SET NX PX.
// Com o Redis fora do ar o save é liberado.
type RedisGate struct {
	client   *redis.Client
	interval time.Duration
	prefix   string
	log      *zap.Logger
}

func NewRedisGate(client *redis.Client, interval time.Duration, log *zap.Logger) *RedisGate {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisGate{client: client, interval: interval, prefix: "signup:autosave:", log: log}
}

func (g *RedisGate) Allow(ctx context.Context, token string) bool {
	ok, err := g.client.SetNX(ctx, g.prefix+token, 1, g.interval).Result()
	if err != nil {
		g.log.Warn("autosave gate: redis unavailable, allowing save", zap.Error(err))
		return true
	}
	return ok
}
