package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/outpipe/internal/steps"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List pipeline steps and which ones are enabled",
	RunE:  runSteps,
}

func runSteps(_ *cobra.Command, _ []string) error {
	c, err := buildContainer()
	if err != nil {
		return err
	}
	cfg := c.Config()
	enabled := c.RegisteredSteps()

	all := []string{
		steps.NameSummary, steps.NameError, steps.NameBlock, steps.NameAt,
		steps.NameClean, steps.NameReplace, steps.NameTTS, steps.NameT2I,
		steps.NameReply, steps.NameForward, steps.NameRecall, steps.NameSplit,
	}
	order := "configured"
	if cfg.Pipeline.LockOrder {
		order = "canonical"
	}
	fmt.Printf("Execution order: %s\n\n", order)
	fmt.Printf("%-4s %-10s %-8s %s\n", "#", "Step", "Enabled", "LLM only")
	for i, name := range enabled {
		fmt.Printf("%-4d %-10s %-8s %s\n", i+1, name, "✓", yesNo(cfg.Pipeline.IsLLMStep(name)))
	}
	for _, name := range all {
		if !slices.Contains(enabled, name) {
			fmt.Printf("%-4s %-10s %-8s %s\n", "-", name, "✗", yesNo(cfg.Pipeline.IsLLMStep(name)))
		}
	}
	return nil
}
