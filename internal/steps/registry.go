package steps

import (
	"errors"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/recall"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// Deps are the collaborators shared by the steps.
type Deps struct {
	Config   *config.Store
	Renderer schema.ImageRenderer // nil selects render.TextImageRenderer at Initialize
	Recall   *recall.Tracker      // nil creates a private tracker
}

// NewRegistry builds every step and registers them in canonical order.
func NewRegistry(deps Deps, opts ...Option) (*pipeline.Registry, error) {
	if deps.Config == nil {
		return nil, errors.New("steps: config store is required")
	}
	e := newEnv(opts)
	cfg := deps.Config.Config()

	clean, err := newCleanStep(cfg.Clean)
	if err != nil {
		return nil, err
	}
	split, err := newSplitStep(cfg.Split, e)
	if err != nil {
		return nil, err
	}

	return pipeline.NewRegistryBuilder().
		WithStep(newSummaryStep(cfg.Summary, e)).
		WithStep(newErrorStep(cfg.Error, cfg.AdminID(), e)).
		WithStep(newBlockStep(cfg.Block, e)).
		WithStep(newAtStep(cfg.At, e)).
		WithStep(clean).
		WithStep(newReplaceStep(cfg.Replace)).
		WithStep(newTTSStep(cfg.TTS, e)).
		WithStep(newT2IStep(cfg.T2I, deps.Renderer, e)).
		WithStep(newReplyStep(cfg.Reply)).
		WithStep(newForwardStep(cfg.Forward, deps.Config, e)).
		WithStep(newRecallStep(cfg.Recall, deps.Recall, e)).
		WithStep(split).
		Build()
}
