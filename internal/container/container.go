// Package container wires core outpipe services using go.uber.org/dig.
package container

import (
	"io"

	"github.com/rs/zerolog"
	"go.uber.org/dig"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/channels"
	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/host"
	"github.com/crystaldolphin/outpipe/internal/logger"
	"github.com/crystaldolphin/outpipe/internal/metrics"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/recall"
	"github.com/crystaldolphin/outpipe/internal/state"
	"github.com/crystaldolphin/outpipe/internal/steps"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	store    *config.Store
	log      zerolog.Logger
	metrics  *metrics.Metrics
	msgBus   *bus.MessageBus
	channels *channels.Manager
	pipeline *pipeline.Pipeline
	host     *host.Host
	tracker  *recall.Tracker
}

func (c *Container) ConfigStore() *config.Store     { return c.store }
func (c *Container) Logger() zerolog.Logger         { return c.log }
func (c *Container) Metrics() *metrics.Metrics      { return c.metrics }
func (c *Container) MessageBus() *bus.MessageBus    { return c.msgBus }
func (c *Container) Channels() *channels.Manager    { return c.channels }
func (c *Container) Pipeline() *pipeline.Pipeline   { return c.pipeline }
func (c *Container) Host() *host.Host               { return c.host }
func (c *Container) RecallTracker() *recall.Tracker { return c.tracker }
func (c *Container) Config() config.Config          { return c.store.Config() }
func (c *Container) EnabledChannels() []string      { return c.channels.EnabledChannels() }
func (c *Container) RegisteredSteps() []string      { return c.pipeline.Steps() }

// configPath is a named string type so dig can tell it apart from plain strings.
type configPath string

// Options tune construction; the zero value is fine.
type Options struct {
	ConfigPath string    // where the forward step persists its name; "" = default
	LogOutput  io.Writer // nil = stderr
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config, opts Options) (*Container, error) {
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		func() configPath { return configPath(opts.ConfigPath) },
		func() io.Writer { return opts.LogOutput },
		newConfigStore,
		newLogger,
		metrics.New,
		newStateStore,
		newMessageBus,
		newChannelManager,
		newRecallTracker,
		newStepRegistry,
		newPipeline,
		newHost,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		store *config.Store,
		log zerolog.Logger,
		m *metrics.Metrics,
		msgBus *bus.MessageBus,
		mgr *channels.Manager,
		p *pipeline.Pipeline,
		h *host.Host,
		tracker *recall.Tracker,
	) {
		result = &Container{
			store:    store,
			log:      log,
			metrics:  m,
			msgBus:   msgBus,
			channels: mgr,
			pipeline: p,
			host:     h,
			tracker:  tracker,
		}
	})
	return result, err
}

func newConfigStore(cfg *config.Config, path configPath) *config.Store {
	return config.NewStore(cfg, string(path))
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	return logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: out})
}

func newStateStore(cfg *config.Config) *state.Store {
	return state.NewStore(state.Limits{
		BotTexts:   cfg.State.BotTexts,
		InboundIDs: cfg.State.InboundIDs,
		Nicknames:  cfg.State.Nicknames,
	})
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newChannelManager(cfg *config.Config, b *bus.MessageBus, log zerolog.Logger) *channels.Manager {
	return channels.NewManager(cfg, b, log)
}

func newRecallTracker(log zerolog.Logger, m *metrics.Metrics) *recall.Tracker {
	return recall.NewTracker(log, m)
}

func newStepRegistry(store *config.Store, tracker *recall.Tracker, log zerolog.Logger, m *metrics.Metrics) (*pipeline.Registry, error) {
	return steps.NewRegistry(
		steps.Deps{Config: store, Recall: tracker},
		steps.WithLogger(log),
		steps.WithMetrics(m),
	)
}

func newPipeline(cfg *config.Config, reg *pipeline.Registry, log zerolog.Logger, m *metrics.Metrics) (*pipeline.Pipeline, error) {
	return pipeline.Build(cfg.Pipeline, reg, pipeline.WithLogger(log), pipeline.WithMetrics(m))
}

func newHost(p *pipeline.Pipeline, states *state.Store, mgr *channels.Manager, m *metrics.Metrics, log zerolog.Logger) *host.Host {
	return host.New(p, states, mgr, m, log)
}
