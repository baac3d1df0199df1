// Package steps implements every outbound post-processing step.
package steps

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/metrics"
)

// Step names in canonical order.
const (
	NameSummary = "summary"
	NameError   = "error"
	NameBlock   = "block"
	NameAt      = "at"
	NameClean   = "clean"
	NameReplace = "replace"
	NameTTS     = "tts"
	NameT2I     = "t2i"
	NameReply   = "reply"
	NameForward = "forward"
	NameRecall  = "recall"
	NameSplit   = "split"
)

// Random is the source of uniform draws in [0,1).
type Random interface {
	Float64() float64
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in that case.
type Sleeper func(ctx context.Context, d time.Duration) error

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// env is shared by every step built from one registry.
type env struct {
	rand    Random
	sleep   Sleeper
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures step construction.
type Option func(*env)

// WithRand replaces the random source.
func WithRand(r Random) Option { return func(e *env) { e.rand = r } }

// WithSleeper replaces the inter-segment wait.
func WithSleeper(s Sleeper) Option { return func(e *env) { e.sleep = s } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *env) { e.now = now } }

// WithLogger sets the parent logger.
func WithLogger(l zerolog.Logger) Option { return func(e *env) { e.log = l } }

// WithMetrics records delivery metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(e *env) { e.metrics = m } }

func newEnv(opts []Option) *env {
	e := &env{
		rand:  globalRand{},
		sleep: sleepContext,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *env) logger(step string) zerolog.Logger {
	return e.log.With().Str("component", "step").Str("step", step).Logger()
}

// uniform returns a draw in [lo, hi).
func (e *env) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*e.rand.Float64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
