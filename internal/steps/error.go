package steps

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// ErrorStep catches provider error text that leaked into a reply.
type ErrorStep struct {
	cfg   config.ErrorConfig
	admin string
	env   *env
	log   zerolog.Logger
}

func newErrorStep(cfg config.ErrorConfig, admin string, e *env) *ErrorStep {
	return &ErrorStep{cfg: cfg, admin: admin, env: e, log: e.logger(NameError)}
}

func (s *ErrorStep) Name() string { return NameError }

func (s *ErrorStep) Handle(ctx context.Context, pc *pipeline.Context) pipeline.Result {
	if s.cfg.Mode == config.ErrorModeIgnore {
		return pipeline.Continue()
	}

	text := pc.Plain
	word := ""
	for _, k := range s.cfg.Keywords {
		if k != "" && strings.Contains(text, k) {
			word = k
			break
		}
	}
	if word == "" {
		return pipeline.Continue()
	}

	switch s.cfg.Mode {
	case config.ErrorModeBlock:
		if s.cfg.CustomMsg != "" {
			pc.Message.Replace(schema.NewText(s.cfg.CustomMsg))
			return pipeline.Noted("replaced error reply matching %q", word)
		}
		pc.Message.Clear()
		return pipeline.Abort("blocked error reply matching %q", word)

	case config.ErrorModeForward:
		if s.admin == "" || pc.Channel == nil {
			s.log.Warn().Str("keyword", word).Msg("no admin configured; error reply not forwarded")
			return pipeline.Continue()
		}
		target := schema.PrivateConversation(s.admin)
		_, err := pc.Channel.SendMessage(ctx, target, pc.Message.Clone())
		s.env.metrics.RecordSend(pc.Platform, err)
		if err != nil {
			s.log.Error().Err(err).Str("admin", s.admin).Msg("forward error reply failed")
		}
		pc.Message.Clear()
		return pipeline.Abort("forwarded error reply to admin %s", s.admin)
	}
	return pipeline.Continue()
}
