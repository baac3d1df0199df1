package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/recall"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// RecallStep sends sensitive replies itself and deletes them after a delay.
type RecallStep struct {
	cfg     config.RecallConfig
	tracker *recall.Tracker
	env     *env
	log     zerolog.Logger
}

func newRecallStep(cfg config.RecallConfig, tracker *recall.Tracker, e *env) *RecallStep {
	if tracker == nil {
		tracker = recall.NewTracker(e.log, e.metrics)
	}
	return &RecallStep{cfg: cfg, tracker: tracker, env: e, log: e.logger(NameRecall)}
}

func (s *RecallStep) Name() string { return NameRecall }

// Terminate cancels pending deletions and waits for them.
func (s *RecallStep) Terminate(context.Context) error {
	s.tracker.Close()
	return nil
}

func (s *RecallStep) reason(msg *schema.Message) string {
	for _, seg := range msg.Segments {
		switch v := seg.(type) {
		case *schema.Text:
			for _, k := range s.cfg.Keywords {
				if k != "" && strings.Contains(v.Content, k) {
					return fmt.Sprintf("keyword %q", k)
				}
			}
		case *schema.Image:
			if s.cfg.RecallImages {
				return "image"
			}
		}
	}
	return ""
}

func (s *RecallStep) Handle(ctx context.Context, pc *pipeline.Context) pipeline.Result {
	if pc.Channel == nil || pc.Message.IsEmpty() {
		return pipeline.Continue()
	}
	reason := s.reason(pc.Message)
	if reason == "" {
		return pipeline.Continue()
	}

	receipt, err := pc.Channel.SendMessage(ctx, pc.ConversationID, pc.Message.Clone())
	s.env.metrics.RecordSend(pc.Platform, err)
	pc.Message.Clear()
	if err != nil {
		s.log.Error().Err(err).Str("reason", reason).Msg("send recallable reply failed")
		return pipeline.Noted("recallable reply (%s) not delivered", reason)
	}
	if receipt.MessageID == "" {
		s.log.Warn().Str("reason", reason).Msg("no message id returned; cannot recall")
		return pipeline.Noted("sent recallable reply (%s) without receipt", reason)
	}

	delay := time.Duration(s.cfg.Delay) * time.Second
	s.tracker.Schedule(pc.Channel, receipt, delay, reason)
	return pipeline.Noted("scheduled recall in %s (%s)", delay, reason)
}
