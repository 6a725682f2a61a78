package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/errmon"
	"github.com/spigell/bookclub-matcher/internal/health"
)

const probeTimeout = 2 * time.Minute

type healthSnapshot struct {
	RemoteEnabled bool          `json:"remote_enabled"`
	ProbeError    string        `json:"probe_error,omitempty"`
	Circuit       health.State  `json:"circuit"`
	Errors        errmon.Report `json:"errors"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the semantic analysis service and print the circuit state",
	Run: func(cmd *cobra.Command, _ []string) {
		checkHealth(cmd)
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().Bool("metrics", false, "print metrics in the prometheus text format after the snapshot")
}

func checkHealth(cmd *cobra.Command) {
	logger, err := loggerFromFlags()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	matcher, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matching engine", zap.Error(err))
	}
	defer matcher.Close()

	scorer := matcher.engine.Scorer()
	snapshot := healthSnapshot{RemoteEnabled: scorer.RemoteEnabled()}

	if err := scorer.Probe(ctx); err != nil {
		snapshot.ProbeError = err.Error()
		logger.Warn("semantic analysis probe failed", zap.Error(err))
	} else {
		logger.Info("semantic analysis probe succeeded")
	}

	snapshot.Circuit = scorer.Health().State()
	snapshot.Errors = scorer.Errors().Report()

	if err := writeJSON(snapshot); err != nil {
		logger.Fatal("printing health snapshot", zap.Error(err))
	}

	if cmd.Flag("metrics").Value.String() == "true" {
		if err := matcher.metrics.WriteText(os.Stdout); err != nil {
			logger.Fatal("printing metrics", zap.Error(err))
		}
	}
}

// writeJSON prints v as indented JSON to stdout.
func writeJSON(v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(pretty))
	return err
}
