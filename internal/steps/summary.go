package steps

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// SummaryStep sets a random quote as the outer text of a lone image.
type SummaryStep struct {
	quotes []string
	env    *env
}

func newSummaryStep(cfg config.SummaryConfig, e *env) *SummaryStep {
	log := e.logger(NameSummary)
	quotes := append([]string(nil), cfg.Quotes...)

	// Quote files are YAML (or JSON) lists of strings.
	for _, path := range cfg.QuotesFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skip quotes file")
			continue
		}
		var list []string
		if err := yaml.Unmarshal(data, &list); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("quotes file is not a list of strings")
			continue
		}
		quotes = append(quotes, list...)
	}
	return &SummaryStep{quotes: quotes, env: e}
}

func (s *SummaryStep) Name() string { return NameSummary }

// Quotes returns the loaded quotes.
func (s *SummaryStep) Quotes() []string { return s.quotes }

func (s *SummaryStep) Handle(_ context.Context, pc *pipeline.Context) pipeline.Result {
	if len(s.quotes) == 0 || pc.Message.Len() != 1 {
		return pipeline.Continue()
	}
	img, ok := pc.Message.Segments[0].(*schema.Image)
	if !ok {
		return pipeline.Continue()
	}
	i := min(int(s.env.rand.Float64()*float64(len(s.quotes))), len(s.quotes)-1)
	img.Summary = s.quotes[i]
	return pipeline.Noted("image summary set to %q", img.Summary)
}
