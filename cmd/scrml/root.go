package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/graaaaa/scr-multilauncher/internal/appinfo"
	"github.com/graaaaa/scr-multilauncher/internal/config"
	"github.com/graaaaa/scr-multilauncher/internal/logbook"
	"github.com/graaaaa/scr-multilauncher/internal/logging"
	"github.com/graaaaa/scr-multilauncher/internal/version"
)

// rootFlags holds the flags shared by every command.
type rootFlags struct {
	configPath string
	logLevel   string
}

// loaded is the configuration a command runs with.
type loaded struct {
	path   string
	cfg    config.Config // with env overrides and flags applied
	raw    config.Config // as read from disk
	status config.LoadStatus
	err    error
}

func (f *rootFlags) load() (loaded, error) {
	path := f.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return loaded{}, fmt.Errorf("locate config: %w", err)
		}
		path = p
	}
	raw, status, err := config.LoadConfigFrom(path)
	cfg := config.ApplyEnvOverrides(raw)
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return loaded{path: path, cfg: cfg, raw: raw, status: status, err: err}, nil
}

// consoleLogger sets up console-only diagnostic logging for one-shot
// commands.
func consoleLogger(cfg config.Config) (*slog.Logger, io.Closer, error) {
	return logging.Setup(logging.Options{Level: cfg.LogLevel})
}

// printLines writes user-facing log lines stamped with the current time.
func printLines(w io.Writer, msgs ...string) {
	now := time.Now()
	for _, m := range msgs {
		fmt.Fprintln(w, logbook.Format(now, m))
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "scrml",
		Short: "Run several StarCraft: Remastered clients side by side",
		Long: appinfo.AppName + ` removes the single-instance lock held by each
running StarCraft: Remastered process so another client can start.

Without a subcommand it runs the scan-and-unlock loop (same as "scrml run").`,
		Version:       version.String(),
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, flags)
		},
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to conf.toml (default: data directory)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "diagnostic log level: debug, info, warn or error")

	cmd.AddCommand(
		newRunCmd(flags),
		newScanCmd(flags),
		newUnlockCmd(flags),
		newKillAllCmd(flags),
		newLaunchCmd(flags),
		newConfigCmd(flags),
	)
	return cmd
}
