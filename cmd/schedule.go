package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/matching"
	"github.com/spigell/bookclub-matcher/internal/scoring"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run matching on a cron schedule until interrupted",
	Run: func(_ *cobra.Command, _ []string) {
		schedule()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringP("cron", "c", "", "cron spec for matching runs (default \"0 9 * * *\")")

	viper.BindPFlag("schedule.cron", scheduleCmd.Flags().Lookup("cron"))
}

func schedule() {
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

	mode, err := scoring.ParseMode(config.Matching.Mode)
	if err != nil {
		logger.Fatal("parsing matching mode", zap.Error(err))
	}

	matcher, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matching engine", zap.Error(err))
	}
	defer matcher.Close()

	engine := cron.New(cron.WithLocation(time.Local))
	_, err = engine.AddFunc(config.Schedule.Cron, func() {
		scheduledRun(ctx, matcher, config, mode)
	})
	if err != nil {
		logger.Fatal("adding the matching job", zap.String("cron", config.Schedule.Cron), zap.Error(err))
	}

	engine.Start()
	logger.Info("matching scheduler started",
		zap.String("version", version),
		zap.String("cron", config.Schedule.Cron),
		zap.String("mode", string(mode)),
	)

	<-ctx.Done()
	logger.Info("stopping the matching scheduler")

	// Stop waits for a job that is still running.
	<-engine.Stop().Done()
}

func scheduledRun(ctx context.Context, matcher *application, config *Config, mode scoring.Mode) {
	logger := matcher.logger

	report, err := matcher.engine.Run(ctx, mode, progressLogger(logger))
	switch {
	case errors.Is(err, matching.ErrRunInProgress):
		logger.Warn("skipping scheduled run", zap.String("reason", "previous run still in progress"))
		return
	case err != nil && report == nil:
		logger.Error("scheduled matching run failed", zap.Error(err))
		return
	case err != nil:
		logger.Warn("scheduled matching run interrupted", zap.Error(err))
	}

	logReport(logger, report)

	if err := matcher.metrics.WriteTextfile(config.Metrics.Textfile); err != nil {
		logger.Warn("writing metrics", zap.Error(err))
	}

	if output := config.Matching.Output; output != "" {
		if err := report.ToFile(output); err != nil {
			logger.Error("writing the report", zap.Error(err))
			return
		}
		logger.Info("report written", zap.String("filename", output))
	}
}
