package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "taskhive",
		Short: "Taskhive services CLI",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(migrateCmd)
}

// breakerOptions maps config onto breaker options; one instance is built per
// wrapped dependency, never shared.
func breakerOptions(cfg config.BreakerConfig) breaker.Options {
	return breaker.Options{
		Timeout:      time.Duration(cfg.TimeoutMs) * time.Millisecond,
		FailureRatio: cfg.FailureRatio,
		Window:       cfg.Window,
		MinCalls:     cfg.MinCalls,
		CoolDown:     time.Duration(cfg.CoolDownMs) * time.Millisecond,
	}
}
