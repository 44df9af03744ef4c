// Package metrics expõe os contadores Prometheus do fluxo de autocadastro.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Resultados do autosave.
const (
	AutosaveSaved   = "saved"
	AutosaveSkipped = "skipped"
	AutosaveFailed  = "failed"
)

// Recorder é usado pelo fluxo de autocadastro e pelo sweeper.
type Recorder interface {
	SessionCreated(source string)
	SessionCreateFailed()
	Autosave(outcome string)
	Completion(path, outcome string)
	SessionsExpired(kind string, n int)
}

// Collector implementa Recorder com métricas Prometheus.
type Collector struct {
	created      *prometheus.CounterVec
	createFailed prometheus.Counter
	autosave     *prometheus.CounterVec
	completion   *prometheus.CounterVec
	expired      *prometheus.CounterVec
}

// NewCollector cria o Collector e registra as métricas em reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_sessions_created_total",
			Help: "Sessões de autocadastro criadas, por origem.",
		}, []string{"source"}),
		createFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signup_sessions_create_failed_total",
			Help: "Falhas ao criar sessão de autocadastro.",
		}),
		autosave: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_autosave_total",
			Help: "Tentativas de autosave por resultado (saved, skipped, failed).",
		}, []string{"outcome"}),
		completion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_completion_total",
			Help: "Conclusões de autocadastro por caminho de resolução e resultado.",
		}, []string{"path", "outcome"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_sessions_expired_total",
			Help: "Sessões marcadas como EXPIRED pelo sweeper.",
		}, []string{"kind"}),
	}
	reg.MustRegister(c.created, c.createFailed, c.autosave, c.completion, c.expired)
	return c
}

func (c *Collector) SessionCreated(source string) {
	if source == "" {
		source = "unknown"
	}
	c.created.WithLabelValues(source).Inc()
}

func (c *Collector) SessionCreateFailed() { c.createFailed.Inc() }

func (c *Collector) Autosave(outcome string) { c.autosave.WithLabelValues(outcome).Inc() }

func (c *Collector) Completion(path, outcome string) {
	c.completion.WithLabelValues(path, outcome).Inc()
}

func (c *Collector) SessionsExpired(kind string, n int) {
	c.expired.WithLabelValues(kind).Add(float64(n))
}

// Nop descarta tudo. Usado quando métricas não foram configuradas.
type Nop struct{}

func (Nop) SessionCreated(string)       {}
func (Nop) SessionCreateFailed()        {}
func (Nop) Autosave(string)             {}
func (Nop) Completion(string, string)   {}
func (Nop) SessionsExpired(string, int) {}

// Handler serve o formato de scrape do Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Push envia o conteúdo de gatherer ao Pushgateway em url, substituindo o grupo job.
// Usado por processos curtos que não ficam de pé para o scrape.
func Push(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	return push.New(url, job).Gatherer(gatherer).PushContext(ctx)
}
