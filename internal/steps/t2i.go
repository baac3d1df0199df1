package steps

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	robfigcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/render"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// T2IStep renders a long trailing text as an image.
type T2IStep struct {
	cfg      config.T2IConfig
	style    schema.RenderStyle
	renderer schema.ImageRenderer
	janitor  *robfigcron.Cron
	env      *env
	log      zerolog.Logger
}

func newT2IStep(cfg config.T2IConfig, renderer schema.ImageRenderer, e *env) *T2IStep {
	return &T2IStep{
		cfg:      cfg,
		renderer: renderer,
		style: schema.RenderStyle{
			Width:      cfg.Width,
			Padding:    cfg.Padding,
			LineHeight: cfg.LineHeight,
			Background: cfg.Background,
			Foreground: cfg.Foreground,
		},
		env: e,
		log: e.logger(NameT2I),
	}
}

func (s *T2IStep) Name() string { return NameT2I }

// Initialize prepares the cache dir, the default renderer and the cleanup schedule.
func (s *T2IStep) Initialize(context.Context) error {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create image cache: %w", err)
	}
	if s.renderer == nil {
		r, err := render.NewTextImageRenderer(s.cfg.CacheDir, s.cfg.FontPath, s.cfg.FontSize)
		if err != nil {
			return err
		}
		s.renderer = r
	}
	if s.cfg.CleanSchedule != "" {
		c := robfigcron.New()
		if _, err := c.AddFunc(s.cfg.CleanSchedule, s.cleanCache); err != nil {
			return fmt.Errorf("t2i clean_schedule %q: %w", s.cfg.CleanSchedule, err)
		}
		c.Start()
		s.janitor = c
	}
	return nil
}

func (s *T2IStep) cleanCache() {
	if err := render.CleanDir(s.cfg.CacheDir); err != nil {
		s.log.Error().Err(err).Msg("clean image cache failed")
		return
	}
	s.log.Debug().Str("dir", s.cfg.CacheDir).Msg("image cache cleaned")
}

// Terminate stops the schedule and optionally wipes the cache.
func (s *T2IStep) Terminate(context.Context) error {
	if s.janitor != nil {
		<-s.janitor.Stop().Done()
	}
	if s.cfg.CleanCache {
		return render.CleanDir(s.cfg.CacheDir)
	}
	return nil
}

func (s *T2IStep) Handle(ctx context.Context, pc *pipeline.Context) pipeline.Result {
	if s.renderer == nil {
		return pipeline.Continue()
	}
	t, ok := pc.Message.Last().(*schema.Text)
	if !ok || utf8.RuneCountInString(t.Content) <= s.cfg.Threshold {
		return pipeline.Continue()
	}

	ref, err := s.renderer.RenderTextToImage(ctx, t.Content, s.style)
	if err != nil {
		s.log.Error().Err(err).Msg("render text to image failed")
		return pipeline.Continue()
	}
	pc.Message.Segments[pc.Message.Len()-1] = &schema.Image{Ref: ref}
	return pipeline.Noted("rendered %d characters to image", utf8.RuneCountInString(t.Content))
}
