package signup

import (
	"time"

	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/metrics"
)

const (
	DefaultExpiry           = 48 * time.Hour
	DefaultAutosaveInterval = 500 * time.Millisecond
)

type options struct {
	gate          Gate
	log           *zap.Logger
	metrics       metrics.Recorder
	now           func() time.Time
	defaultExpiry time.Duration
}

// Option configura Manager e Resolver.
type Option func(*options)

// WithGate troca o limitador de autosave (padrão: LocalGate de 500 ms).
func WithGate(g Gate) Option { return func(o *options) { o.gate = g } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

func WithMetrics(m metrics.Recorder) Option { return func(o *options) { o.metrics = m } }

// WithClock injeta o relógio usado nas verificações de expiração.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithDefaultExpiry define a validade usada quando CreateSession recebe expiryHours <= 0.
func WithDefaultExpiry(d time.Duration) Option { return func(o *options) { o.defaultExpiry = d } }

func buildOptions(opts []Option) options {
	o := options{defaultExpiry: DefaultExpiry}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.defaultExpiry <= 0 {
		o.defaultExpiry = DefaultExpiry
	}
	return o
}
