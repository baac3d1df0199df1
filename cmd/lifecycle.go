package cmd

import (
	"context"
	"time"

	"github.com/crystaldolphin/outpipe/internal/container"
)

// shutdown terminates the pipeline steps and waits for pending recalls.
func shutdown(c *container.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Pipeline().Terminate(ctx); err != nil {
		log := c.Logger()
		log.Warn().Err(err).Msg("pipeline terminate")
	}
	c.RecallTracker().Close()
}
