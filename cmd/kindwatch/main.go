package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shanehull/kindwatch/internal/ai"
	"github.com/shanehull/kindwatch/internal/config"
	"github.com/shanehull/kindwatch/internal/kind"
	"github.com/shanehull/kindwatch/internal/ledger"
	"github.com/shanehull/kindwatch/internal/logging"
	"github.com/shanehull/kindwatch/internal/notify"
	"github.com/shanehull/kindwatch/internal/run"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "kindwatch",
		Short:         "Monitor KIND for executive on-market purchase disclosures",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	var dateStr string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one monitoring pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(configPath, dateStr)
		},
	}
	runCmd.Flags().StringVar(&dateStr, "date", "", "calendar date to monitor (YYYY-MM-DD, default: today)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the kindwatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kindwatch %s\n", version)
		},
	}

	root.AddCommand(runCmd, versionCmd)
	return root
}

// runOnce performs a single monitoring run. Per-record failures keep
// exit status 0; only source or configuration failures return an error.
func runOnce(configPath, dateStr string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Runtime.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Runtime.Timezone, err)
	}

	now := time.Now().In(loc)

	logger, logPath, err := logging.New(cfg.Logging, cfg.Output.LogDir, loc, now)
	if err != nil {
		return err
	}
	logger.Info().Str("version", version).Str("log_file", logPath).Msg("kindwatch starting")

	date := now
	if dateStr != "" {
		date, err = time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateStr, err)
		}
	}

	led := ledger.Open(cfg.Output.LedgerPath, loc, logger)
	defer led.Close()

	client := kind.NewClient(cfg.Source, logger)

	var sender run.AlertSender
	if cfg.Telegram.Enabled {
		sender = notify.NewTelegram(cfg.Telegram, loc, logger)
	}

	var digest run.DigestSender
	if d := notify.NewEmailDigest(cfg.Email, loc, logger); d != nil {
		digest = d
	}

	var summarize run.Summarizer
	if cfg.AI.APIKey != "" {
		model := cfg.AI.Model
		apiKey := cfg.AI.APIKey
		summarize = func(ctx context.Context, pageText string) ([]string, error) {
			analysis, err := ai.GenerateSummary(ctx, pageText, apiKey, model)
			if err != nil {
				return nil, err
			}
			lines := analysis.Summary
			if analysis.Significance != "" {
				lines = append(lines, analysis.Significance)
			}
			return lines, nil
		}
	}

	runner := run.New(run.Options{
		Source:     client,
		Ledger:     led,
		Sender:     sender,
		Digest:     digest,
		Summarize:  summarize,
		ResultsDir: cfg.Output.ResultsDir,
		Location:   loc,
		Logger:     logger,
	})

	timeout := time.Duration(cfg.Runtime.RunTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := runner.Run(ctx, date)
	if err != nil {
		logger.Error().Err(err).Msg("monitoring run failed")
		return err
	}

	fmt.Printf("run %s complete: %d listings, %d purchases, %d alerts, %d record errors\n",
		report.RunID, report.ListingCount, report.Purchases, len(report.Alerts), len(report.Errors))
	return nil
}
