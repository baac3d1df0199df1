package channels

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// Manager owns all enabled channels.
type Manager struct {
	channels map[string]schema.Channel
	log      zerolog.Logger
}

// NewManager creates a Manager and initialises all enabled channels.
func NewManager(cfg *config.Config, b bus.Bus, log zerolog.Logger) *Manager {
	m := &Manager{
		channels: make(map[string]schema.Channel),
		log:      log.With().Str("component", "channels").Logger(),
	}

	if cfg.Channels.OneBot.Enabled {
		m.Register(NewOneBotChannel(cfg.Channels.OneBot, b, log))
	}
	if cfg.Channels.Telegram.Enabled {
		m.Register(NewTelegramChannel(cfg.Channels.Telegram, b, log))
	}
	if cfg.Channels.Slack.Enabled {
		m.Register(NewSlackChannel(cfg.Channels.Slack, b, log))
	}
	return m
}

// Register adds ch, replacing any channel with the same name.
func (m *Manager) Register(ch schema.Channel) {
	m.channels[ch.Name()] = ch
	m.log.Info().Str("name", ch.Name()).Msg("channel enabled")
}

// Get returns the channel registered under name.
func (m *Manager) Get(name string) (schema.Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// EnabledChannels returns the names of all enabled channels, sorted.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StartAll starts all channels concurrently. Blocks until ctx is cancelled.
// A channel that fails is logged; the others keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for name, ch := range m.channels {
		g.Go(func() error {
			m.log.Info().Str("name", name).Msg("starting channel")
			if err := ch.Start(ctx); err != nil && ctx.Err() == nil {
				m.log.Error().Err(err).Str("name", name).Msg("channel exited with error")
			}
			return nil
		})
	}
	_ = g.Wait()
	<-ctx.Done()
	return ctx.Err()
}
