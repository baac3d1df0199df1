package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/outpipe/internal/schema"
	"github.com/crystaldolphin/outpipe/internal/steps"
)

var splitCmd = &cobra.Command{
	Use:   "split <text>",
	Short: "Preview how a reply would be segmented and paced",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSplit,
}

func runSplit(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := steps.NewSplitStep(cfg.Split)
	if err != nil {
		return err
	}

	text := strings.ReplaceAll(strings.Join(args, " "), `\n`, "\n")
	chunks := s.Split([]schema.Segment{schema.NewText(text)})
	for i, segs := range chunks {
		msg := schema.NewMessage(segs...)
		plain := strings.ReplaceAll(msg.PlainText(), schema.ZeroWidthSpace, "")
		if i < len(chunks)-1 {
			fmt.Printf("%d. %q  (then wait ~%s)\n", i+1, plain, s.TypingDelay(plain).Round(10*time.Millisecond))
		} else {
			fmt.Printf("%d. %q\n", i+1, plain)
		}
	}
	return nil
}
