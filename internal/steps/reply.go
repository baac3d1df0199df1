package steps

import (
	"context"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// ReplyStep quotes the triggering message once enough newer messages have
// buried it.
type ReplyStep struct {
	cfg config.ReplyConfig
}

func newReplyStep(cfg config.ReplyConfig) *ReplyStep {
	return &ReplyStep{cfg: cfg}
}

func (s *ReplyStep) Name() string { return NameReply }

func (s *ReplyStep) Handle(_ context.Context, pc *pipeline.Context) pipeline.Result {
	if s.cfg.Threshold <= 0 || pc.State == nil || pc.InboundMessageID == "" {
		return pipeline.Continue()
	}
	if !pc.Message.OnlyKinds(schema.KindText, schema.KindImage, schema.KindFace, schema.KindMention) {
		return pipeline.Continue()
	}

	pushed, ok := pc.State.InboundBacklog(pc.InboundMessageID)
	if !ok || pushed < s.cfg.Threshold {
		return pipeline.Continue()
	}
	pc.Message.Insert(0, &schema.QuoteRef{MessageID: pc.InboundMessageID})
	pc.State.ClearInbound()
	return pipeline.Noted("quoted message %s buried by %d newer", pc.InboundMessageID, pushed)
}
