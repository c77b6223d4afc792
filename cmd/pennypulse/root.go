package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pennypulse/pennypulse/internal/app"
	"github.com/pennypulse/pennypulse/internal/config"
)

func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           "pennypulse",
		Short:         "Market-catalyst scanner and alerter for sub-$10 U.S. equities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), analyzeCmd(), bootstrapCmd())
	return root.ExecuteContext(ctx)
}

// loadApp builds the wired application from the environment.
func loadApp() (*app.App, *config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if level, err := zerolog.ParseLevel(settings.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a, err := app.New(settings)
	if err != nil {
		return nil, nil, err
	}
	return a, settings, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scan cycle loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.Run(cmd.Context())
			if err == context.Canceled {
				log.Info().Str("component", "cli").Msg("interrupted, shutting down")
			}
			return err
		},
	}
}

func analyzeCmd() *cobra.Command {
	var sinceDays int
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the historical analyzer once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, settings, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			lookback := settings.AnalyzerLookback
			if sinceDays > 0 {
				lookback = time.Duration(sinceDays) * 24 * time.Hour
			}
			n, err := a.RunAnalyzer(cmd.Context(), lookback)
			if err != nil {
				return err
			}
			fmt.Printf("analysis complete: %d recommendations in %s\n",
				n, settings.Path("analysis", "recommendations.json"))
			return nil
		},
	}
	cmd.Flags().IntVar(&sinceDays, "since-days", 0, "override the lookback window in days")
	return cmd
}

func bootstrapCmd() *cobra.Command {
	var startStr, endStr string
	var sources []string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Backfill feed items into the journals to seed the analyzer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := time.Parse("2006-01-02", startStr)
			if err != nil {
				return &config.ConfigError{Reason: "invalid --start: " + err.Error()}
			}
			end, err := time.Parse("2006-01-02", endStr)
			if err != nil {
				return &config.ConfigError{Reason: "invalid --end: " + err.Error()}
			}

			a, _, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Bootstrap(cmd.Context(), start, end.Add(24*time.Hour), sources)
			if err != nil {
				return err
			}
			fmt.Printf("bootstrap complete: %d items journaled\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&startStr, "start", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "window end (YYYY-MM-DD), inclusive")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "restrict to these source ids")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}
