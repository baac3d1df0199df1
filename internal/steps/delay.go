package steps

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/crystaldolphin/outpipe/internal/config"
)

// typingDelay estimates how long a person would take to type text.
//
// Per-character time is 1/cps scaled by a jitter draw and clamped to
// [min_char_delay, max_char_delay]. Punctuation pauses and the two random
// pauses are added on top, and the total is capped at max_delay.
// Random draws happen in a fixed order so equal seeds give comparable results.
func typingDelay(cfg config.TypingConfig, e *env, text string) time.Duration {
	if text == "" {
		return 0
	}

	n := float64(utf8.RuneCountInString(text))
	base := 1.0 / max(cfg.CPS, 1e-3)
	perChar := base * e.uniform(1-cfg.Jitter, 1+cfg.Jitter)
	perChar = min(max(perChar, cfg.MinCharDelay), cfg.MaxCharDelay)

	secs := n * perChar
	for _, p := range cfg.PunctPause {
		if p.Mark == "" {
			continue
		}
		secs += float64(strings.Count(text, p.Mark)) * p.Pause
	}

	if e.rand.Float64() < cfg.PauseProb {
		secs += drawRange(e, cfg.PauseRange)
	}
	if e.rand.Float64() < cfg.LongPauseProb {
		secs += drawRange(e, cfg.LongPauseRange)
	}

	secs = min(max(secs, 0), cfg.MaxDelay)
	return time.Duration(secs * float64(time.Second))
}

func drawRange(e *env, r []float64) float64 {
	if len(r) != 2 {
		return 0
	}
	return e.uniform(r[0], r[1])
}
