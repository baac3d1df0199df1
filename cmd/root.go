// Package cmd implements the outpipe CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/container"
)

const version = "0.1.0"
const logo = "🐬"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "outpipe",
	Short: logo + " outpipe: outbound reply post-processing for chat bots",
	Long: logo + " outpipe runs bot replies through a configurable pipeline " +
		"(mention resolution, cleaning, splitting with typing delays, recall) before delivery",
	SilenceUsage: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().String("config", "", "config file (default "+config.ConfigPath()+")")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(stepsCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(channelsCmd)
}

// configFile returns the --config value or the default path.
func configFile() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildContainer loads the config and wires every service.
func buildContainer() (*container.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg, container.Options{ConfigPath: configFile()})
	if err != nil {
		return nil, fmt.Errorf("wire services: %w", err)
	}
	return c, nil
}
