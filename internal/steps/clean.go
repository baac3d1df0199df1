package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
	"github.com/crystaldolphin/outpipe/internal/shared/stringutils"
)

var (
	bracketSpan     = regexp.MustCompile(`\[.*?\]`)
	parenthesisSpan = regexp.MustCompile(`[（(].*?[）)]`)
	emotionTag      = regexp.MustCompile(`&&.*?&&`)
)

// CleanStep strips stage directions and noise from short texts.
type CleanStep struct {
	cfg   config.CleanConfig
	punct *regexp.Regexp
}

func newCleanStep(cfg config.CleanConfig) (*CleanStep, error) {
	s := &CleanStep{cfg: cfg}
	if cfg.Punctuation != "" {
		re, err := regexp.Compile(cfg.Punctuation)
		if err != nil {
			return nil, fmt.Errorf("clean punctuation: %w", err)
		}
		s.punct = re
	}
	return s, nil
}

func (s *CleanStep) Name() string { return NameClean }

func (s *CleanStep) Handle(_ context.Context, pc *pipeline.Context) pipeline.Result {
	for _, seg := range pc.Message.Segments {
		t, ok := seg.(*schema.Text)
		if !ok {
			continue
		}
		if s.cfg.Think {
			t.Content = stringutils.StripThink(t.Content)
		}
		if utf8.RuneCountInString(t.Content) >= s.cfg.TextThreshold {
			continue
		}
		t.Content = s.clean(t.Content)
	}
	return pipeline.Continue()
}

func (s *CleanStep) clean(text string) string {
	if s.cfg.Bracket {
		text = bracketSpan.ReplaceAllString(text, "")
	}
	if s.cfg.Parenthesis {
		text = parenthesisSpan.ReplaceAllString(text, "")
	}
	if s.cfg.EmotionTag {
		text = emotionTag.ReplaceAllString(text, "")
	}
	if s.cfg.Emoji {
		text = gomoji.RemoveEmojis(text)
	}
	for _, lead := range s.cfg.Lead {
		if lead != "" {
			text = strings.TrimPrefix(text, lead)
		}
	}
	for _, tail := range s.cfg.Tail {
		if tail != "" {
			text = strings.TrimSuffix(text, tail)
		}
	}
	if s.punct != nil {
		text = s.punct.ReplaceAllString(text, "")
	}
	return text
}
