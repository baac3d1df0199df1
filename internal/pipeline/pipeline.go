package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/metrics"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

type entry struct {
	step    Step
	llmOnly bool
}

// Pipeline is an immutable, ordered list of steps.
type Pipeline struct {
	entries []entry
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l.With().Str("component", "pipeline").Logger() }
}

// WithMetrics records step and run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Build resolves cfg against reg.
//
// With LockOrder the registry's order wins and cfg only selects membership;
// otherwise the configured order is kept. Unknown or repeated names fail.
func Build(cfg config.PipelineConfig, reg *Registry, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}

	names := cfg.StepNames()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("pipeline step %q: %w", name, ErrDuplicateStep)
		}
		seen[name] = true
		if _, ok := reg.Get(name); !ok {
			return nil, fmt.Errorf("pipeline step %q: %w", name, ErrUnknownStep)
		}
	}

	llm := make(map[string]bool)
	for _, name := range cfg.LLMStepNames() {
		if _, ok := reg.Get(name); !ok {
			p.log.Warn().Str("step", name).Msg("llm_steps names an unregistered step; ignored")
			continue
		}
		llm[name] = true
	}

	order := names
	if cfg.LockOrder {
		order = order[:0:0]
		for _, name := range reg.Names() {
			if seen[name] {
				order = append(order, name)
			}
		}
	}

	for _, name := range order {
		s, _ := reg.Get(name)
		p.entries = append(p.entries, entry{step: s, llmOnly: llm[name]})
	}
	return p, nil
}

// Steps returns the resolved step names in execution order.
func (p *Pipeline) Steps() []string {
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.step.Name()
	}
	return out
}

// Initialize calls every Initializer once, in order; the first error is fatal.
func (p *Pipeline) Initialize(ctx context.Context) error {
	for _, e := range p.entries {
		if in, ok := e.step.(Initializer); ok {
			if err := in.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize %s: %w", e.step.Name(), err)
			}
		}
	}
	return nil
}

// Terminate calls every Terminator once, in order, and joins their errors.
func (p *Pipeline) Terminate(ctx context.Context) error {
	var errs []error
	for _, e := range p.entries {
		if t, ok := e.step.(Terminator); ok {
			if err := t.Terminate(ctx); err != nil {
				errs = append(errs, fmt.Errorf("terminate %s: %w", e.step.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Run executes the steps sequentially and reports whether delivery should
// proceed. The first aborting step stops the run.
func (p *Pipeline) Run(ctx context.Context, pc *Context) bool {
	if pc.Message == nil {
		pc.Message = schema.NewMessage()
	}
	log := p.log.With().Str("run_id", pc.RunID).Str("conversation", pc.ConversationID).Logger()

	for _, e := range p.entries {
		if e.llmOnly && !pc.IsLLM {
			continue
		}
		name := e.step.Name()

		start := time.Now()
		res, panicked := p.execute(ctx, e.step, pc, log)
		elapsed := time.Since(start)

		outcome := "continue"
		switch {
		case panicked:
			outcome = "panic"
		case res.Abort:
			outcome = "abort"
		}
		p.metrics.RecordStep(name, outcome, elapsed)

		if res.Note != "" {
			log.Debug().Str("step", name).Bool("abort", res.Abort).Dur("elapsed", elapsed).Msg(res.Note)
		}
		if res.Abort {
			p.metrics.RecordRun(false)
			return false
		}
	}
	p.metrics.RecordRun(true)
	return true
}

func (p *Pipeline) execute(ctx context.Context, s Step, pc *Context, log zerolog.Logger) (res Result, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("step", s.Name()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("step panicked; continuing")
			res, panicked = Continue(), true
		}
	}()
	return s.Handle(ctx, pc), false
}
