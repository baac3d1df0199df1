package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/outpipe/internal/channels"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Type replies in a terminal and watch them being post-processed",
	RunE:  runConsole,
}

func runConsole(_ *cobra.Command, _ []string) error {
	c, err := buildContainer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	console := channels.NewConsoleChannel(c.MessageBus(), os.Stdin, os.Stdout, c.Logger())
	c.Channels().Register(console)

	if err := c.Pipeline().Initialize(ctx); err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer shutdown(c)

	fmt.Printf("%s steps: %v\n", logo, c.RegisteredSteps())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return console.Start(gctx)
	})
	g.Go(func() error { return c.Host().Run(gctx, c.MessageBus()) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
