package steps

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// TTSStep occasionally turns a short reply into a voice message.
type TTSStep struct {
	cfg   config.TTSConfig
	voice schema.VoiceProfile
	env   *env
	log   zerolog.Logger
}

func newTTSStep(cfg config.TTSConfig, e *env) *TTSStep {
	return &TTSStep{
		cfg:   cfg,
		voice: schema.VoiceProfile{Character: characterID(cfg.Character), GroupID: cfg.GroupID},
		env:   e,
		log:   e.logger(NameTTS),
	}
}

// characterID extracts "id" from "Name（id）" or "Name(id)"; anything else is
// taken as the id itself.
func characterID(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range [][2]string{{"（", "）"}, {"(", ")"}} {
		if _, rest, ok := strings.Cut(s, p[0]); ok {
			if id, _, ok := strings.Cut(rest, p[1]); ok {
				return strings.TrimSpace(id)
			}
		}
	}
	return s
}

func (s *TTSStep) Name() string { return NameTTS }

func (s *TTSStep) Handle(ctx context.Context, pc *pipeline.Context) pipeline.Result {
	synth, ok := pc.Channel.(schema.SpeechSynthesizer)
	if !ok || pc.Message.Len() != 1 {
		return pipeline.Continue()
	}
	t, ok := pc.Message.Segments[0].(*schema.Text)
	if !ok || utf8.RuneCountInString(t.Content) >= s.cfg.Threshold {
		return pipeline.Continue()
	}
	if s.env.rand.Float64() >= s.cfg.Prob {
		return pipeline.Continue()
	}

	ref, err := synth.TextToSpeech(ctx, t.Content, s.voice)
	if err != nil {
		s.log.Error().Err(err).Str("character", s.voice.Character).Msg("text to speech failed")
		return pipeline.Continue()
	}
	pc.Message.Replace(&schema.Audio{Ref: ref})
	return pipeline.Noted("converted reply to voice")
}
