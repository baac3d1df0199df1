package steps

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// chunk is one delivery unit produced by the splitter.
type chunk struct {
	segs []schema.Segment
}

// add appends seg, merging consecutive Text segments.
func (c *chunk) add(segs ...schema.Segment) {
	for _, seg := range segs {
		if t, ok := seg.(*schema.Text); ok && len(c.segs) > 0 {
			if prev, ok := c.segs[len(c.segs)-1].(*schema.Text); ok {
				c.segs[len(c.segs)-1] = schema.NewText(prev.Content + t.Content)
				continue
			}
		}
		c.segs = append(c.segs, seg)
	}
}

func (c *chunk) text() string {
	var sb strings.Builder
	for _, seg := range c.segs {
		if t, ok := seg.(*schema.Text); ok {
			sb.WriteString(t.Content)
		}
	}
	return sb.String()
}

func (c *chunk) hasNonText() bool {
	for _, seg := range c.segs {
		if seg.Kind() != schema.KindText {
			return true
		}
	}
	return false
}

// empty reports a chunk with only blank text.
func (c *chunk) empty() bool {
	return strings.TrimFunc(c.text(), isBlank) == "" && !c.hasNonText()
}

// splitter walks a message once; it is not reusable.
type splitter struct {
	trigger  *regexp.Regexp
	quotes   map[rune]bool
	pairs    map[rune]rune
	maxCount int

	chunks    []*chunk
	current   *chunk
	pending   []schema.Segment // mentions and quotes waiting for the next chunk
	exhausted bool
}

func (sp *splitter) last() *chunk {
	if len(sp.chunks) == 0 {
		return nil
	}
	return sp.chunks[len(sp.chunks)-1]
}

func (sp *splitter) attachPending(target *chunk) {
	if len(sp.pending) == 0 {
		return
	}
	target.add(sp.pending...)
	sp.pending = nil
}

// pendingTarget is where held prefixes go once the cap is reached.
func (sp *splitter) pendingTarget() *chunk {
	if l := sp.last(); l != nil {
		return l
	}
	return sp.current
}

// appendTail adds segs to the chunk that is still growing.
func (sp *splitter) appendTail(segs ...schema.Segment) {
	switch {
	case sp.exhausted && len(sp.chunks) > 0:
		sp.last().add(segs...)
	case len(sp.current.segs) > 0:
		sp.current.add(segs...)
	case len(sp.chunks) > 0:
		sp.last().add(segs...)
	default:
		c := &chunk{}
		c.add(segs...)
		sp.chunks = append(sp.chunks, c)
	}
}

func (sp *splitter) push(c *chunk) {
	if len(c.segs) == 0 {
		return
	}
	if sp.maxCount <= 0 {
		sp.chunks = append(sp.chunks, c)
		return
	}
	if len(sp.chunks) < sp.maxCount {
		sp.chunks = append(sp.chunks, c)
		if len(sp.chunks) >= sp.maxCount {
			sp.exhausted = true
		}
		return
	}
	sp.exhausted = true
	sp.appendTail(c.segs...)
}

func (sp *splitter) flush() {
	if len(sp.current.segs) > 0 {
		sp.push(sp.current)
		sp.current = &chunk{}
	}
}

func (sp *splitter) split(segs []schema.Segment) []*chunk {
	sp.current = &chunk{}

	for _, seg := range segs {
		switch v := seg.(type) {
		case *schema.Mention, *schema.QuoteRef:
			sp.pending = append(sp.pending, seg)

		case *schema.Text:
			if v.Content == "" {
				continue
			}
			if sp.exhausted {
				sp.attachPending(sp.pendingTarget())
				sp.appendTail(schema.NewText(v.Content))
				continue
			}
			sp.splitText(v.Content)

		case *schema.Image, *schema.Face:
			target := sp.current
			if len(sp.current.segs) == 0 && len(sp.chunks) > 0 {
				target = sp.last()
			}
			sp.attachPending(target)
			target.add(seg)

		default:
			if sp.exhausted {
				sp.attachPending(sp.pendingTarget())
				sp.appendTail(seg)
				continue
			}
			sp.flush()
			c := &chunk{}
			sp.attachPending(c)
			c.add(seg)
			sp.push(c)
		}
	}

	if len(sp.current.segs) > 0 {
		sp.push(sp.current)
	}
	if len(sp.pending) > 0 {
		if l := sp.last(); l != nil {
			sp.attachPending(l)
		} else {
			c := &chunk{}
			sp.attachPending(c)
			sp.chunks = append(sp.chunks, c)
		}
	}
	return sp.chunks
}

// splitText scans text rune by rune. Split triggers are honoured only while
// no quote or bracket is open.
func (sp *splitter) splitText(text string) {
	var (
		stack []rune
		buf   strings.Builder
	)

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		if sp.quotes[r] {
			if n := len(stack); n > 0 && stack[n-1] == r {
				stack = stack[:n-1]
			} else {
				stack = append(stack, r)
			}
			buf.WriteRune(r)
			i += size
			continue
		}

		_, opener := sp.pairs[r]
		if n := len(stack); n > 0 {
			if closer, ok := sp.pairs[stack[n-1]]; ok && r == closer {
				stack = stack[:n-1]
			} else if opener {
				stack = append(stack, r)
			}
			buf.WriteRune(r)
			i += size
			continue
		}
		if opener {
			stack = append(stack, r)
			buf.WriteRune(r)
			i += size
			continue
		}

		if sp.trigger != nil {
			if loc := sp.trigger.FindStringIndex(text[i:]); loc != nil && loc[1] > 0 {
				buf.WriteString(text[i : i+loc[1]])
				i += loc[1]

				sp.attachPending(sp.current)
				sp.current.add(schema.NewText(buf.String()))
				buf.Reset()
				sp.flush()

				if sp.exhausted {
					if rest := text[i:]; rest != "" {
						sp.appendTail(schema.NewText(rest))
					}
					return
				}
				continue
			}
		}

		buf.WriteRune(r)
		i += size
	}

	if buf.Len() > 0 {
		sp.attachPending(sp.current)
		sp.current.add(schema.NewText(buf.String()))
	}
}

// SplitStep sends a long reply as several human-paced messages.
type SplitStep struct {
	cfg      config.SplitConfig
	trigger  *regexp.Regexp
	quotes   map[rune]bool
	pairs    map[rune]rune
	tailPunc string
	env      *env
	log      zerolog.Logger
}

// NewSplitStep compiles the split configuration.
func NewSplitStep(cfg config.SplitConfig, opts ...Option) (*SplitStep, error) {
	return newSplitStep(cfg, newEnv(opts))
}

func newSplitStep(cfg config.SplitConfig, e *env) (*SplitStep, error) {
	s := &SplitStep{
		cfg:      cfg,
		quotes:   make(map[rune]bool),
		pairs:    cfg.PairMap(),
		tailPunc: cfg.TailPunc,
		env:      e,
		log:      e.logger(NameSplit),
	}
	if pattern := cfg.SplitPattern(); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("split char_list: %w", err)
		}
		s.trigger = re
	}
	for _, r := range cfg.QuoteChars {
		if !unicode.IsSpace(r) {
			s.quotes[r] = true
		}
	}
	return s, nil
}

func (s *SplitStep) Name() string { return NameSplit }

// Split returns the delivery chunks for segs after trimming and wrapping.
func (s *SplitStep) Split(segs []schema.Segment) [][]schema.Segment {
	chunks := s.chunks(segs)
	out := make([][]schema.Segment, len(chunks))
	for i, c := range chunks {
		out[i] = c.segs
	}
	return out
}

// TypingDelay is the pause that precedes sending a chunk with this text.
func (s *SplitStep) TypingDelay(text string) time.Duration {
	return typingDelay(s.cfg.Typing, s.env, strings.ReplaceAll(text, schema.ZeroWidthSpace, ""))
}

func (s *SplitStep) chunks(segs []schema.Segment) []*chunk {
	sp := &splitter{
		trigger:  s.trigger,
		quotes:   s.quotes,
		pairs:    s.pairs,
		maxCount: s.cfg.MaxCount,
	}
	chunks := sp.split(segs)
	for _, c := range chunks {
		s.finish(c)
	}
	return chunks
}

// finish trims trailing space from every Text, strips tail punctuation from
// the last non-blank one and wraps each Text in zero-width spaces.
func (s *SplitStep) finish(c *chunk) {
	for i, seg := range c.segs {
		if t, ok := seg.(*schema.Text); ok {
			c.segs[i] = schema.NewText(strings.TrimRightFunc(t.Content, unicode.IsSpace))
		}
	}
	for i := len(c.segs) - 1; i >= 0; i-- {
		t, ok := c.segs[i].(*schema.Text)
		if !ok || strings.TrimFunc(t.Content, isBlank) == "" {
			continue
		}
		if s.tailPunc != "" {
			t.Content = strings.TrimRight(t.Content, s.tailPunc)
		}
		break
	}
	for _, seg := range c.segs {
		if t, ok := seg.(*schema.Text); ok && t.Content != "" {
			t.Content = wrapZeroWidth(t.Content)
		}
	}
}

func wrapZeroWidth(s string) string {
	if !strings.HasPrefix(s, schema.ZeroWidthSpace) {
		s = schema.ZeroWidthSpace + s
	}
	if !strings.HasSuffix(s, schema.ZeroWidthSpace) {
		s += schema.ZeroWidthSpace
	}
	return s
}

func (s *SplitStep) Handle(ctx context.Context, pc *pipeline.Context) pipeline.Result {
	if pc.Channel == nil || !slices.Contains(s.cfg.Platforms, pc.Platform) {
		return pipeline.Continue()
	}

	chunks := s.chunks(pc.Message.Segments)
	s.env.metrics.RecordSplit(len(chunks))
	if len(chunks) < 2 {
		return pipeline.Continue()
	}

	sent := 0
	for i, c := range chunks[:len(chunks)-1] {
		if c.empty() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		_, err := pc.Channel.SendMessage(ctx, pc.ConversationID, schema.NewMessage(c.segs...))
		s.env.metrics.RecordSend(pc.Platform, err)
		if err != nil {
			s.log.Error().Err(err).Int("segment", i+1).Str("conversation", pc.ConversationID).Msg("send segment failed")
			continue
		}
		sent++

		if err := s.env.sleep(ctx, s.TypingDelay(c.text())); err != nil {
			break
		}
	}

	final := chunks[len(chunks)-1]
	pc.Message.Clear()
	if !final.empty() {
		pc.Message.Replace(final.segs...)
	}
	return pipeline.Noted("split into %d segments, sent %d early", len(chunks), sent)
}
