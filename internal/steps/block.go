package steps

import (
	"context"
	"strings"
	"time"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/shared/stringutils"
)

// BlockStep suppresses stale, repeated and blocklisted replies.
type BlockStep struct {
	cfg config.BlockConfig
	env *env
}

func newBlockStep(cfg config.BlockConfig, e *env) *BlockStep {
	return &BlockStep{cfg: cfg, env: e}
}

func (s *BlockStep) Name() string { return NameBlock }

func (s *BlockStep) Handle(_ context.Context, pc *pipeline.Context) pipeline.Result {
	text := pc.Plain

	if s.cfg.Timeout > 0 && !pc.Timestamp.IsZero() {
		if age := s.env.now().Sub(pc.Timestamp); age > time.Duration(s.cfg.Timeout)*time.Second {
			pc.Message.Clear()
			return pipeline.Abort("blocked stale reply (%s old): %s", age.Round(time.Second), stringutils.Truncate(text, 20))
		}
	}

	if s.cfg.BlockReread && text != "" && pc.State != nil && pc.State.SentRecently(text) {
		pc.Message.Clear()
		return pipeline.Abort("blocked repeated reply: %s", stringutils.Truncate(text, 20))
	}

	for _, w := range s.cfg.BlockWords {
		if w != "" && strings.Contains(text, w) {
			pc.Message.Clear()
			return pipeline.Abort("blocked reply containing %q", w)
		}
	}

	if pc.IsLLM && text != "" && pc.State != nil {
		pc.State.RecordBotText(text)
	}
	return pipeline.Continue()
}
