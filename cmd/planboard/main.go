package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	outputJSON bool
	verbose    bool
	logger     zerolog.Logger
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger = zerolog.New(output).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:   "planboard",
		Short: "Resource availability and downtime planning",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger = logger.Level(zerolog.DebugLevel)
			} else {
				logger = logger.Level(zerolog.InfoLevel)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $PLANBOARD_CONFIG_PATH or configs/config.yaml)")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output JSON")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(availabilityCmd())
	root.AddCommand(proposeCmd())
	root.AddCommand(exportClashesCmd())
	root.AddCommand(deleteDateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
