package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/graaaaa/scr-multilauncher/internal/config"
	"github.com/graaaaa/scr-multilauncher/internal/handles"
	"github.com/graaaaa/scr-multilauncher/internal/procscan"
	"github.com/graaaaa/scr-multilauncher/internal/registry"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

// newSystem is replaced in tests.
var newSystem = sysapi.New

// newRegistry builds a registry for a single pass.
func newRegistry(sys sysapi.System, cfg config.Config, logger *slog.Logger) *registry.Registry {
	inspector := handles.NewInspector(sys,
		handles.WithSignature(cfg.LockSignature),
		handles.WithSkipTypes(cfg.SkipTypes...),
		handles.WithLogger(logger),
	)
	return registry.New(sys, inspector,
		registry.WithTarget(cfg.TargetExe),
		registry.WithMaxAttempts(1),
		registry.WithConcurrency(cfg.InspectConcurrency),
		registry.WithLogger(logger),
	)
}

func newScanner(sys sysapi.System, cfg config.Config, logger *slog.Logger) *procscan.Scanner {
	return procscan.New(sys,
		procscan.WithTarget(cfg.TargetExe),
		procscan.WithLogger(logger),
	)
}

// oneShot loads config and console logging for a command that does not
// run the engine.
func oneShot(flags *rootFlags) (config.Config, *slog.Logger, func(), error) {
	ld, err := flags.load()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, closer, err := consoleLogger(ld.cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if ld.status == config.ConfigFallback {
		logger.Warn("config unreadable, using defaults", "path", ld.path, "error", ld.err)
	}
	return ld.cfg, logger, func() { closer.Close() }, nil
}

func newScanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List running client processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, done, err := oneShot(flags)
			if err != nil {
				return err
			}
			defer done()

			found := newScanner(newSystem(), cfg, logger).Scan(cmd.Context())
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintf(out, "No %s processes found\n", cfg.TargetExe)
				return nil
			}
			for _, e := range found {
				fmt.Fprintf(out, "%s\t%d\n", cfg.TargetExe, e.PID)
			}
			return nil
		},
	}
}

func newUnlockCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock [pid...]",
		Short: "Remove the instance lock from the given processes, or from every running client",
		RunE: func(cmd *cobra.Command, args []string) error {
			pids, err := parsePIDs(args)
			if err != nil {
				return err
			}
			cfg, logger, done, err := oneShot(flags)
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			sys := newSystem()
			reg := newRegistry(sys, cfg, logger)
			if len(pids) > 0 {
				for _, pid := range pids {
					reg.Merge(registry.NewEntry(pid))
				}
			} else {
				reg.Observe(newScanner(sys, cfg, logger).Scan(ctx)...)
			}
			if reg.Len() == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s processes found\n", cfg.TargetExe)
				return nil
			}

			msgs := reg.Prune(ctx)
			unlockMsgs, _ := reg.ProcessUnprocessed(ctx)
			printLines(cmd.OutOrStdout(), append(msgs, unlockMsgs...)...)
			return nil
		},
	}
}

func parsePIDs(args []string) ([]uint32, error) {
	pids := make([]uint32, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseUint(a, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid pid %q", a)
		}
		pids = append(pids, uint32(n))
	}
	return pids, nil
}

func newKillAllCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "kill-all",
		Short: "Terminate every running client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, done, err := oneShot(flags)
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			sys := newSystem()
			reg := newRegistry(sys, cfg, logger)
			reg.Observe(newScanner(sys, cfg, logger).Scan(ctx)...)

			msgs, failed := reg.TerminateAll(ctx)
			printLines(cmd.OutOrStdout(), msgs...)
			if failed > 0 {
				return fmt.Errorf("%d of %d processes could not be terminated", failed, len(msgs))
			}
			return nil
		},
	}
}

func newLaunchCmd(flags *rootFlags) *cobra.Command {
	var arch string
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the configured 32- or 64-bit client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, done, err := oneShot(flags)
			if err != nil {
				return err
			}
			defer done()

			path, err := cfg.ExecutablePath(arch)
			if err != nil {
				return err
			}
			if path == "" {
				printLines(cmd.OutOrStdout(), fmt.Sprintf("No executable configured for %s-bit", arch))
				return fmt.Errorf("%s-bit: %w", arch, sysapi.ErrNoExecutable)
			}
			pid, err := launch(path, cfg.LaunchArgs...)
			if pid == 0 {
				printLines(cmd.OutOrStdout(), fmt.Sprintf("Failed to launch %s: %v", path, err))
				return err
			}
			printLines(cmd.OutOrStdout(), fmt.Sprintf("Launched %s (PID: %d)", path, pid))
			return nil
		},
	}
	cmd.Flags().StringVar(&arch, "arch", config.ArchX64, "client architecture: 32 or 64")
	return cmd
}

// launch is replaced in tests.
var launch = sysapi.Launch
