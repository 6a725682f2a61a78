package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/batch"
	"github.com/spigell/bookclub-matcher/internal/cache"
	"github.com/spigell/bookclub-matcher/internal/logger"
	"github.com/spigell/bookclub-matcher/internal/matching"
	"github.com/spigell/bookclub-matcher/internal/scoring"
)

const (
	PromptExit            = "Exit"
	PromptReportByMembers = "Report by members"
	PromptResultsToFile   = "Dump results to file"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptReportByMembers, PromptResultsToFile, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Match approved members into reading partners once",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("yes", "y", false, "do not ask what to do with the results")
	runCmd.Flags().StringP("output", "o", "", "write the run report as JSON to this file")
	runCmd.Flags().StringP("mode", "m", "", "matching mode: similar or complementary")

	viper.BindPFlag("matching.output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("matching.mode", runCmd.Flags().Lookup("mode"))
}

// run is the one-shot matching command.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := loggerFromFlags()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the bookclub-matcher", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	mode, err := scoring.ParseMode(config.Matching.Mode)
	if err != nil {
		logger.Fatal("parsing matching mode", zap.Error(err))
	}

	matcher, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matching engine", zap.Error(err))
	}
	defer matcher.Close()

	report, err := matcher.engine.Run(ctx, mode, progressLogger(logger))
	if err != nil && report == nil {
		logger.Fatal("matching run failed", zap.Error(err))
	}
	if err != nil {
		logger.Warn("matching run interrupted, keeping partial results", zap.Error(err))
	}

	logReport(logger, report)

	if err := matcher.metrics.WriteTextfile(config.Metrics.Textfile); err != nil {
		logger.Warn("writing metrics", zap.Error(err))
	}

	if output := config.Matching.Output; output != "" {
		if err := report.ToFile(output); err != nil {
			logger.Fatal("writing the report", zap.Error(err))
		}
		logger.Info("report written", zap.String("filename", output))
	}

	if len(report.Results) == 0 {
		logger.Info("exiting", zap.String("reason", "no compatible pairs found"))
		return
	}

	if cmd.Flag("yes").Value.String() == "true" {
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, logger, report); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, logger *zap.Logger, report *matching.Report) error {
	switch action {
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	case PromptReportByMembers:
		pretty, _ := json.MarshalIndent(report.ByMember(), "", "  ")
		logger.Info(string(pretty), zap.Int("pairs count", len(report.Results)))
		return nil
	case PromptResultsToFile:
		filename, err := report.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func progressLogger(logger *zap.Logger) func(batch.Progress) {
	return func(p batch.Progress) {
		logger.Info(p.Text,
			zap.Int("current", p.Current),
			zap.Int("total", p.Total),
			zap.Duration("estimated_remaining", p.EstimatedRemaining),
		)
	}
}

func logReport(log *zap.Logger, report *matching.Report) {
	log = logger.WithRun(log, report.RunID, string(report.Mode))

	for i, res := range report.Results {
		log.Info(fmt.Sprintf("#%d %s and %s", i+1, res.MemberA, res.MemberB),
			zap.Float64("score", res.Score),
			zap.Float64("priority", res.Priority),
			zap.String("reason", res.Reason),
			zap.Bool("degraded", res.Degraded),
			zap.Bool("traditional", res.TraditionalMode),
			zap.Bool("cached", res.Cached),
		)
	}

	for _, tier := range cache.Tiers {
		stats := report.Cache[tier]
		log.Debug("cache tier",
			zap.String("tier", string(tier)),
			zap.Int("size", stats.Size),
			zap.String("hit_rate", stats.HitRateString()),
		)
	}

	log.Info("run summary",
		zap.Int("remote", report.Summary.Remote),
		zap.Int("cached", report.Summary.Cached),
		zap.Int("degraded", report.Summary.Degraded),
		zap.Int("traditional", report.Summary.Traditional),
		zap.Bool("from_cache", report.FromCache),
		zap.Bool("circuit_open", report.Health.Degraded),
		zap.String("errors", string(report.Errors.Overall)),
	)
}
