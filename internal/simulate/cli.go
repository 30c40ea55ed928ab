package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/showcase/pkg/logger"
)

// Default flag values.
const (
	defaultBaseURL          = "http://localhost:9080"
	defaultUsers            = 50
	defaultEventsPerUser    = 40
	defaultTimeout          = 10 * time.Second
	defaultSettleTimeout    = 2 * time.Minute
	defaultLimit            = 5
	defaultHistoryLimit     = 20
	defaultInteractionLimit = 50
	logFilePermission       = 0o600
)

// NewCommand builds the simulate CLI.
func NewCommand() *cobra.Command {
	cfg := &Config{}
	var (
		logFile string
		level   string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a showcase service with synthetic users and verify its answers",
		Long: `simulate opens a session for every synthetic user, submits random
interactions, waits until the service recorded them and then checks each
profile and ranking against the retention caps and score bounds.`,
		Example: `  simulate --users 100 --events 60
  simulate --url http://localhost:8080 --workers 16 --verbose`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := SetupLogging(cmd.ErrOrStderr(), logFile); err != nil {
				return err
			}
			return logger.SetLevelString(level)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Users < 1 || cfg.EventsPerUser < 0 || cfg.Workers < 1 {
				return fmt.Errorf("users and workers must be positive, events must not be negative")
			}
			return Run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", defaultBaseURL, "Base URL of the service")
	f.IntVar(&cfg.Users, "users", defaultUsers, "Number of simulated users")
	f.IntVar(&cfg.EventsPerUser, "events", defaultEventsPerUser, "Interactions submitted per user")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "Number of concurrent HTTP workers")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.SettleTimeout, "settle", defaultSettleTimeout, "How long to wait for queued events to be recorded")
	f.IntVar(&cfg.Limit, "limit", defaultLimit, "Recommendations requested per user")
	f.IntVar(&cfg.HistoryLimit, "history-limit", defaultHistoryLimit, "Browsing history cap configured on the service")
	f.IntVar(&cfg.InteractionLimit, "interaction-limit", defaultInteractionLimit, "Interaction log cap configured on the service")
	f.StringVar(&cfg.OutputFile, "output", "", "Write the generated events to this JSON file")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&logFile, "log", "", "Also write logs to this file")
	cmd.PersistentFlags().StringVar(&level, "log-level", "info", "Log level: debug, info, warn, error")
	return cmd
}

// SetupLogging initializes the logger on out and, when logFile is set, also
// on that file.
func SetupLogging(out io.Writer, logFile string) error {
	if logFile == "" {
		if err := logger.InitWithWriter(out); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(out, file)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}
