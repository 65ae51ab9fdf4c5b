package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/bitbucket-pipeline-report/internal/config"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/domain"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/gateway"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/report"
	"github.com/naka-gawa/bitbucket-pipeline-report/internal/usecase"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregates pipeline minutes and writes the JSON dump and the report",
	Long: `Lists the repositories of a workspace updated within the window, collects
their pipeline runs, and writes a JSON dump of every repository together with
a markdown report of the busiest repositories and actors.

Settings come from the environment (or a .env file); flags override them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get the verbose flag from the root command to set up the logger.
		verbose, _ := cmd.InheritedFlags().GetBool("verbose")
		logger := log.New(io.Discard, "", log.LstdFlags) // Default: discard all logs.
		if verbose {
			logger.SetOutput(os.Stderr) // If verbose, log to standard error.
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		actors, _ := cmd.Flags().GetBool("actors")
		return runReport(cmd.Context(), cfg, time.Now(), actors, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	},
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workspace") {
		cfg.Workspace, _ = flags.GetString("workspace")
	}
	if flags.Changed("output") {
		cfg.OutputFile, _ = flags.GetString("output")
	}
	if flags.Changed("report") {
		cfg.ReportOutputFile, _ = flags.GetString("report")
	}
	if flags.Changed("max-rows") {
		cfg.MaxDisplayRows, _ = flags.GetInt("max-rows")
	}
	if flags.Changed("days") {
		cfg.WindowDays, _ = flags.GetInt("days")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("ignore-forks") {
		list, _ := flags.GetStringSlice("ignore-forks")
		cfg.IgnoredForks = config.ParseSet(strings.Join(list, ","))
	}
	if flags.Changed("ignore-repos") {
		list, _ := flags.GetStringSlice("ignore-repos")
		cfg.IgnoredPipes = config.ParseSet(strings.Join(list, ","))
	}
}

// runReport aggregates the window ending at now and writes both outputs.
// A failed output is reported on stderr and does not prevent the other.
func runReport(ctx context.Context, cfg *config.Config, now time.Time, actors bool, stdout, stderr io.Writer, logger *log.Logger) error {
	window := domain.NewWindow(now, cfg.WindowDays)
	logger.Printf("Reporting on %s from %s to %s", cfg.Workspace, window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))

	// Inject dependencies and run the main business logic.
	bitbucketGateway := gateway.NewBitbucketGateway(cfg.BaseURL, cfg.Workspace, gateway.Credentials{
		Username:    cfg.Username,
		AppPassword: cfg.AppPassword,
		AccessToken: cfg.AccessToken,
	}, cfg.PageLen, logger)
	aggregator := usecase.NewAggregator(bitbucketGateway, usecase.Options{
		IgnoredForkNames:    cfg.IgnoredForks,
		IgnoredRepositories: cfg.IgnoredPipes,
		Concurrency:         cfg.Concurrency,
	}, logger)

	result, err := aggregator.Aggregate(ctx, window)
	if err != nil {
		if errors.Is(err, usecase.ErrNoRepositories) {
			return fmt.Errorf("nothing written for workspace %s: %w", cfg.Workspace, err)
		}
		return fmt.Errorf("failed to aggregate pipelines: %w", err)
	}

	warn := color.New(color.FgYellow)
	if len(result.Skipped) > 0 {
		warn.Fprintf(stderr, "Skipped %d repositories whose pipelines could not be fetched: %s\n",
			len(result.Skipped), strings.Join(result.Skipped, ", "))
	}

	failed := color.New(color.FgRed)
	if err := report.WriteFile(cfg.OutputFile, stdout, func(w io.Writer) error {
		return report.WriteJSON(w, result.Repositories)
	}); err != nil {
		failed.Fprintf(stderr, "Error: %v\n", err)
	}
	if err := report.WriteFile(cfg.ReportOutputFile, stdout, func(w io.Writer) error {
		return report.Render(w, result.Window, result.Repositories, result.Users, cfg.MaxDisplayRows)
	}); err != nil {
		failed.Fprintf(stderr, "Error: %v\n", err)
	}

	if actors {
		report.RenderActors(stdout, result.Users)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(reportCmd)
	addReportFlags(reportCmd)
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("workspace", "w", "", "Bitbucket workspace (overrides BITBUCKET_WORKSPACE)")
	cmd.Flags().StringP("output", "o", "report.json", "JSON dump path, - for stdout (overrides OUTPUT_FILE)")
	cmd.Flags().StringP("report", "r", "report.md", "Report path, - for stdout (overrides REPORT_OUTPUT_FILE)")
	cmd.Flags().IntP("max-rows", "n", report.DefaultMaxRows, "Repositories shown before the rollup row (overrides MAX_DISPLAY_ROWS)")
	cmd.Flags().IntP("days", "d", domain.DefaultWindowDays, "Length of the trailing window in days (overrides WINDOW_DAYS)")
	cmd.Flags().IntP("concurrency", "c", 1, "Repositories fetched in parallel (overrides CONCURRENCY)")
	cmd.Flags().StringSlice("ignore-forks", nil, "Skip forks of these repositories (overrides IGNORE_FORKS)")
	cmd.Flags().StringSlice("ignore-repos", nil, "Skip these repository slugs (overrides IGNORE_PIPES)")
	cmd.Flags().Bool("actors", false, "Also print a per-actor table to stdout")
}
