package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	rootCmd    = &cobra.Command{
		Use:   "appforge",
		Short: "AppForge - Self-correcting backend generation pipeline",
		Long: `AppForge turns a natural-language prompt into a working FastAPI
backend. It plans the service, generates the code, runs deterministic
checks, puts the result through a bounded review loop, and verifies it
end to end in a sandbox before declaring the run complete.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
