package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const AppName = "acsctl"

// AppVersion is set at build time
var AppVersion = "dev"

type globalOptions struct {
	endpoint string
	apiKey   string
	logLevel string
	envFile  string
	timeout  time.Duration
}

// loadEnv merges the env file into the process environment without overriding
// variables already set, then fills options left empty on the command line
func (g *globalOptions) loadEnv() error {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if g.apiKey == "" {
		g.apiKey = os.Getenv("ACSD_API_KEY")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "Inspect and drive the acsd channel selector",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadEnv()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.endpoint, "url", "", "http://127.0.0.1:8089", "URL of the acsd HTTP API")
	rootCmd.PersistentFlags().StringVarP(&opts.apiKey, "api-key", "", "", "API key sent as X-API-Key (default $ACSD_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&opts.envFile, "env-file", "", "", "Load ACSD_* variables from this file")
	rootCmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "", "warn", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "", 30*time.Second, "Operation timeout")

	rootCmd.AddCommand(newReplayCmd(opts), newStatusCmd(opts), newSelectCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
