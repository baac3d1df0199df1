package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Validate reports every out-of-range or malformed field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	prob := func(name string, p float64) {
		if p < 0 || p > 1 {
			add("%s must be within [0,1], got %v", name, p)
		}
	}
	nonNeg := func(name string, n int) {
		if n < 0 {
			add("%s must not be negative, got %d", name, n)
		}
	}
	span := func(name string, r []float64) {
		if len(r) != 2 {
			add("%s must have exactly two values, got %d", name, len(r))
			return
		}
		if r[0] < 0 || r[0] > r[1] {
			add("%s must satisfy 0 <= lo <= hi, got %v", name, r)
		}
	}

	prob("at.at_prob", c.At.AtProb)
	prob("tts.prob", c.TTS.Prob)
	prob("split.typing.jitter", c.Split.Typing.Jitter)
	prob("split.typing.pause_prob", c.Split.Typing.PauseProb)
	prob("split.typing.long_pause_prob", c.Split.Typing.LongPauseProb)

	nonNeg("state.bot_texts", c.State.BotTexts)
	nonNeg("state.inbound_ids", c.State.InboundIDs)
	nonNeg("state.nicknames", c.State.Nicknames)
	nonNeg("clean.text_threshold", c.Clean.TextThreshold)
	nonNeg("tts.threshold", c.TTS.Threshold)
	nonNeg("t2i.threshold", c.T2I.Threshold)
	if c.T2I.FontSize <= 0 {
		add("t2i.font_size must be positive, got %v", c.T2I.FontSize)
	}
	nonNeg("reply.threshold", c.Reply.Threshold)
	nonNeg("forward.threshold", c.Forward.Threshold)
	nonNeg("recall.delay", c.Recall.Delay)

	switch c.Error.Mode {
	case ErrorModeIgnore, ErrorModeForward, ErrorModeBlock:
	default:
		add("error.mode must be one of ignore, forward, block, got %q", c.Error.Mode)
	}

	if c.Clean.Punctuation != "" {
		if _, err := regexp.Compile(c.Clean.Punctuation); err != nil {
			add("clean.punctuation: %v", err)
		}
	}

	t := c.Split.Typing
	if t.CPS <= 0 {
		add("split.typing.cps must be positive, got %v", t.CPS)
	}
	if t.MinCharDelay < 0 || t.MinCharDelay > t.MaxCharDelay {
		add("split.typing requires 0 <= min_char_delay <= max_char_delay, got %v/%v", t.MinCharDelay, t.MaxCharDelay)
	}
	if t.MaxDelay < 0 {
		add("split.typing.max_delay must not be negative, got %v", t.MaxDelay)
	}
	span("split.typing.pause_range", t.PauseRange)
	span("split.typing.long_pause_range", t.LongPauseRange)
	for _, p := range c.Split.Pairs {
		if len([]rune(p)) != 2 {
			add("split.pairs entry %q must be exactly two characters", p)
		}
	}

	return errors.Join(errs...)
}
