package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/outpipe/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a config file with every option at its default",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configFile()

	if _, err := os.Stat(cfgPath); err == nil {
		// Refresh: keep existing values, add any new keys.
		existing, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	fmt.Printf("\n%s outpipe is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Enable a channel under channels: in %s\n", cfgPath)
	fmt.Println("  2. Try the pipeline locally: outpipe console")
	return nil
}
