package steps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

func TestSummary_LoadsQuoteFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "quotes.yaml")
	if err := os.WriteFile(good, []byte("- 今天也要开心\n- 摸鱼中\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("key: value\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := newSummaryStep(config.SummaryConfig{
		Quotes:      []string{"你好"},
		QuotesFiles: []string{good, bad, filepath.Join(dir, "missing.yaml")},
	}, testEnv())

	if got := s.Quotes(); len(got) != 3 || got[1] != "今天也要开心" {
		t.Errorf("unexpected quotes %q", got)
	}
}

func TestSummary_SetsLoneImageSummary(t *testing.T) {
	s := newSummaryStep(config.SummaryConfig{Quotes: []string{"甲", "乙"}}, testEnv())
	img := &schema.Image{Ref: "a.png"}
	pc := newContext(schema.NewMessage(img))

	s.Handle(context.Background(), pc)

	if img.Summary != "乙" {
		t.Errorf("expected second quote for draw 0.5, got %q", img.Summary)
	}
	if pc.Message.Len() != 1 {
		t.Errorf("summary must not change the segment list")
	}
}

func TestSummary_IgnoresOtherMessages(t *testing.T) {
	s := newSummaryStep(config.SummaryConfig{Quotes: []string{"甲"}}, testEnv())
	img := &schema.Image{Ref: "a.png"}
	pc := newContext(schema.NewMessage(img, schema.NewText("配文")))

	s.Handle(context.Background(), pc)
	if img.Summary != "" {
		t.Errorf("expected no summary for image with text, got %q", img.Summary)
	}
}
