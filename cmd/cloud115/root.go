package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	cloud115 "github.com/cloud115/cloud115-go"
	"github.com/cloud115/cloud115-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cloud115",
		Short:   "115 cloud storage CLI client",
		Long:    "A CLI for 115 cloud storage: browse files and manage offline download tasks.",
		Version: version,
		// Silence Cobra's default error/usage printing — main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogger()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newRenameCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newDuCmd())
	cmd.AddCommand(newTaskCmd())

	return cmd
}

// setupLogger configures the process-wide slog default: debug level with
// --verbose, errors only with --quiet, and a text handler when stderr is a
// terminal (JSON otherwise, for log collectors).
func setupLogger() {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	} else if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// configPath resolves the config file location: flag > env > default.
func configPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	if p := config.PathFromEnv(); p != "" {
		return p
	}

	return config.DefaultPath()
}

// newClient loads configuration and connects. Connect is purely local, so
// this fails only for missing or malformed credentials.
func newClient() (*cloud115.Client, error) {
	cfg, err := config.Resolve(configPath())
	if err != nil {
		return nil, err
	}

	cred := cloud115.Credential{UID: cfg.UID, CID: cfg.CID, SEID: cfg.SEID}
	if err := cred.Valid(); err != nil {
		return nil, fmt.Errorf("%w (run 'cloud115 login' first)", err)
	}

	opts := []cloud115.Option{cloud115.WithLogger(slog.Default())}

	if cfg.Network.UserAgent != "" {
		opts = append(opts, cloud115.WithUserAgent(cfg.Network.UserAgent))
	}

	if cfg.Network.PageSize > 0 {
		opts = append(opts, cloud115.WithPageSize(cfg.Network.PageSize))
	}

	if cfg.Network.RateLimit > 0 {
		opts = append(opts, cloud115.WithRateLimit(rate.Limit(cfg.Network.RateLimit), int(cfg.Network.RateLimit)+1))
	}

	if cfg.Network.CallTimeout != "" {
		d, parseErr := time.ParseDuration(cfg.Network.CallTimeout)
		if parseErr != nil {
			return nil, fmt.Errorf("config network.call_timeout: %w", parseErr)
		}

		opts = append(opts, cloud115.WithCallTimeout(d))
	}

	return cloud115.Connect(cred, opts...)
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
