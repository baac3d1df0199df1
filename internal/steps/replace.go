package steps

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

type replacement struct{ from, to string }

// ReplaceStep applies literal word replacements to every text.
type ReplaceStep struct {
	pairs []replacement
}

// newReplaceStep parses "old new" entries. A missing new word becomes the
// default filler repeated once per rune of old.
func newReplaceStep(cfg config.ReplaceConfig) *ReplaceStep {
	s := &ReplaceStep{}
	for _, w := range cfg.Words {
		old, repl, _ := strings.Cut(w, " ")
		if old == "" {
			continue
		}
		if repl == "" {
			repl = strings.Repeat(cfg.DefaultNewWord, utf8.RuneCountInString(old))
		}
		s.pairs = append(s.pairs, replacement{from: old, to: repl})
	}
	return s
}

func (s *ReplaceStep) Name() string { return NameReplace }

func (s *ReplaceStep) Handle(_ context.Context, pc *pipeline.Context) pipeline.Result {
	if len(s.pairs) == 0 {
		return pipeline.Continue()
	}
	for _, seg := range pc.Message.Segments {
		t, ok := seg.(*schema.Text)
		if !ok {
			continue
		}
		for _, p := range s.pairs {
			t.Content = strings.ReplaceAll(t.Content, p.from, p.to)
		}
	}
	return pipeline.Continue()
}
