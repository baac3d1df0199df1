package steps

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// mentionHead matches a typed mention at the start of a text, in priority
// order: [at:<id>], [at:<name>], @<5-12 digits>, @<name>.
var mentionHead = regexp.MustCompile(
	`(?i)^[\s\p{Z}]*(?:` +
		`\[at[:：][\s\p{Z}]*(\d+)\]` +
		`|\[at[:：][\s\p{Z}]*([^\]]+)\]` +
		`|@(\d{5,12})` +
		`|@([\p{L}\p{N}_-]{2,20})` +
		`)[\s\p{Z}]*`,
)

// AtStep turns typed mentions into real ones and optionally adds or removes
// mentions at random.
type AtStep struct {
	cfg config.AtConfig
	env *env
}

func newAtStep(cfg config.AtConfig, e *env) *AtStep {
	return &AtStep{cfg: cfg, env: e}
}

func (s *AtStep) Name() string { return NameAt }

type typedMention struct {
	index int // segment holding the match
	id    string
	name  string
	end   int // byte offset where the matched prefix ends
}

func (s *AtStep) Handle(_ context.Context, pc *pipeline.Context) pipeline.Result {
	msg := pc.Message
	var note string

	if m, ok := detectMention(msg); ok {
		if m.id == "" && pc.State != nil {
			m.id, _ = pc.State.LookupNickname(m.name)
		}
		if m.id != "" {
			s.rewrite(msg, m)
			note = "resolved typed mention of " + m.id
		}
	}

	if s.cfg.AtProb <= 0 || !msg.OnlyKinds(
		schema.KindText, schema.KindImage, schema.KindFace, schema.KindMention, schema.KindQuoteRef,
	) {
		return pipeline.Result{Note: note}
	}

	has := hasMention(msg)
	hit := s.env.rand.Float64() < s.cfg.AtProb

	switch {
	case hit && !has && msg.Len() > 0 && msg.Segments[0].Kind() == schema.KindText && pc.SenderID != "":
		s.insert(msg, pc.SenderID, pc.SenderName, -1)
		return pipeline.Noted("mentioned sender %s", pc.SenderID)
	case !hit && has:
		stripMentions(msg)
		return pipeline.Noted("removed mentions")
	}
	return pipeline.Result{Note: note}
}

// detectMention inspects only the first non-empty Text segment.
func detectMention(msg *schema.Message) (typedMention, bool) {
	for i, seg := range msg.Segments {
		t, ok := seg.(*schema.Text)
		if !ok || t.Content == "" {
			continue
		}
		sub := mentionHead.FindStringSubmatchIndex(t.Content)
		if sub == nil {
			return typedMention{}, false
		}
		group := func(n int) string {
			if sub[2*n] < 0 {
				return ""
			}
			return t.Content[sub[2*n]:sub[2*n+1]]
		}
		m := typedMention{index: i, end: sub[1]}
		m.id = group(1)
		if m.id == "" {
			m.id = group(3)
		}
		m.name = strings.TrimSpace(group(2))
		if m.name == "" {
			m.name = group(4)
		}
		return m, true
	}
	return typedMention{}, false
}

func (s *AtStep) rewrite(msg *schema.Message, m typedMention) {
	t := msg.Segments[m.index].(*schema.Text)
	t.Content = t.Content[m.end:]
	if t.Content == "" {
		msg.RemoveAt(m.index)
	}
	s.insert(msg, m.id, m.name, m.index)
}

// insert places a mention before the first Text segment. When no Text exists
// it goes at fallback, or is skipped when fallback is negative.
func (s *AtStep) insert(msg *schema.Message, id, name string, fallback int) {
	i := msg.FirstText()
	if s.cfg.AtStr && name != "" {
		if i >= 0 {
			t := msg.Segments[i].(*schema.Text)
			t.Content = "@" + name + " " + t.Content
			return
		}
		if fallback >= 0 {
			msg.Insert(fallback, schema.NewText("@"+name+" "))
		}
		return
	}
	if i < 0 {
		if fallback < 0 {
			return
		}
		i = fallback
	}
	msg.Insert(i, schema.NewMention(id), schema.NewText(schema.ZeroWidthSpace))
}

func hasMention(msg *schema.Message) bool {
	for _, seg := range msg.Segments {
		switch v := seg.(type) {
		case *schema.Mention:
			return true
		case *schema.Text:
			if mentionHead.MatchString(v.Content) {
				return true
			}
		}
	}
	return false
}

func isBlank(r rune) bool {
	return unicode.IsSpace(r) || r == '\u200b'
}

func stripMentions(msg *schema.Message) {
	out := msg.Segments[:0:0]
	for _, seg := range msg.Segments {
		switch v := seg.(type) {
		case *schema.Mention:
			continue
		case *schema.Text:
			if loc := mentionHead.FindStringIndex(v.Content); loc != nil {
				v.Content = v.Content[loc[1]:]
			}
			v.Content = strings.TrimFunc(v.Content, isBlank)
			if v.Content == "" {
				continue
			}
		}
		out = append(out, seg)
	}
	msg.Replace(out...)
}
