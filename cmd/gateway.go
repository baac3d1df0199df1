package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/outpipe/internal/bus"
)

var gatewayStdin bool

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Connect the enabled channels and post-process reply jobs",
	Long: "Connects every enabled channel, records inbound messages in the conversation " +
		"state and delivers reply jobs read as JSON lines from stdin.",
	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().BoolVar(&gatewayStdin, "stdin", true, "read JSON reply jobs from stdin")
}

func runGateway(_ *cobra.Command, _ []string) error {
	c, err := buildContainer()
	if err != nil {
		return err
	}
	cfg := c.Config()
	log := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Pipeline().Initialize(ctx); err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer shutdown(c)

	fmt.Printf("%s Starting outpipe gateway...\n", logo)
	if enabled := c.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}
	fmt.Printf("✓ Steps: %s\n", strings.Join(c.RegisteredSteps(), ", "))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Channels().StartAll(gctx) })
	g.Go(func() error { return c.Host().Run(gctx, c.MessageBus()) })

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(c.Metrics().Handler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if gatewayStdin {
		// Not part of the group: a blocked stdin read must not hold up shutdown.
		go func() {
			err := bus.ReadReplyJobs(gctx, os.Stdin, c.MessageBus(), func(line int, err error) {
				log.Warn().Err(err).Int("line", line).Msg("skipping reply job")
			})
			if err != nil && gctx.Err() == nil {
				log.Error().Err(err).Msg("reply job reader stopped")
			}
		}()
	}

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

func metricsMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
