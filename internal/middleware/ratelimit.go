package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/cache"
)

// RateLimiter limita requests por IP de origem (token bucket).
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	trusted  []netip.Prefix
	limiters *cache.TTL[*rate.Limiter]
}

// NewRateLimiter aceita perMinute requests por minuto por IP, com rajada burst.
// X-Forwarded-For só é lido quando a conexão vem de um dos proxies em trusted.
func NewRateLimiter(perMinute, burst int, trusted ...netip.Prefix) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		trusted:  trusted,
		limiters: cache.New[*rate.Limiter](10 * time.Minute),
	}
}

func (rl *RateLimiter) Stop() { rl.limiters.Close() }

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := rl.limiters.GetOrCreate(rl.clientIP(r), func() *rate.Limiter {
			return rate.NewLimiter(rl.limit, rl.burst)
		})
		if !lim.Allow() {
			retry := 60
			if rl.limit > 0 {
				retry = int(1/float64(rl.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Muitas tentativas. Aguarde um instante.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP usa o endereço da conexão. Atrás de proxy confiável, percorre o
// X-Forwarded-For da direita para a esquerda e fica com o primeiro salto não confiável.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if len(rl.trusted) == 0 || !rl.isTrusted(host) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			return host
		}
		if !rl.isTrusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func (rl *RateLimiter) isTrusted(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
