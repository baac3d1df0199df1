package steps

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

const fallbackNodeName = "Bot"

// ForwardStep folds a long reply into a grouped forward card.
type ForwardStep struct {
	cfg   config.ForwardConfig
	store *config.Store
	log   zerolog.Logger

	mu   sync.Mutex
	name string
}

func newForwardStep(cfg config.ForwardConfig, store *config.Store, e *env) *ForwardStep {
	return &ForwardStep{cfg: cfg, store: store, name: cfg.NodeName, log: e.logger(NameForward)}
}

func (s *ForwardStep) Name() string { return NameForward }

func (s *ForwardStep) Handle(ctx context.Context, pc *pipeline.Context) pipeline.Result {
	fc, ok := pc.Channel.(schema.ForwardCapable)
	if !ok || !fc.SupportsForward() {
		return pipeline.Continue()
	}
	t, ok := pc.Message.Last().(*schema.Text)
	if !ok || utf8.RuneCountInString(t.Content) <= s.cfg.Threshold {
		return pipeline.Continue()
	}

	name := s.nodeName(ctx, pc.Channel)
	content := append([]schema.Segment(nil), pc.Message.Segments...)
	pc.Message.Replace(&schema.ForwardGroup{Nodes: []schema.ForwardNode{
		{UserID: pc.SelfID, Name: name, Content: content},
	}})
	return pipeline.Noted("wrapped reply into forward as %q", name)
}

// nodeName resolves the display name once, then persists it. The channel
// lookup and the config save run without s.mu held.
func (s *ForwardStep) nodeName(ctx context.Context, ch schema.Channel) string {
	s.mu.Lock()
	cached := s.name
	s.mu.Unlock()
	if cached != "" {
		return cached
	}

	name := fallbackNodeName
	if id, ok := ch.(schema.Identity); ok {
		if n, err := id.SelfName(ctx); err != nil {
			s.log.Warn().Err(err).Msg("resolve bot name failed")
		} else if n != "" {
			name = n
		}
	}

	s.mu.Lock()
	if s.name != "" {
		name = s.name
		s.mu.Unlock()
		return name
	}
	s.name = name
	s.mu.Unlock()

	if s.store != nil {
		s.store.Update(func(c *config.Config) { c.Forward.NodeName = name })
		if err := s.store.Save(); err != nil {
			s.log.Warn().Err(err).Msg("persist forward node name failed")
		}
	}
	return name
}
