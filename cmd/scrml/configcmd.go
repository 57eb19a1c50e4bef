package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graaaaa/scr-multilauncher/internal/app"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change conf.toml",
	}
	cmd.AddCommand(newConfigShowCmd(flags), newConfigSetCmd(flags))
	return cmd
}

func configService(flags *rootFlags) (app.ConfigService, error) {
	ld, err := flags.load()
	if err != nil {
		return app.ConfigService{}, err
	}
	// A running engine picks the change up through its file watcher.
	return app.ConfigService{ConfigPath: ld.path}, nil
}

func newConfigShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := configService(flags)
			if err != nil {
				return err
			}
			resp, err := svc.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}

func newConfigSetCmd(flags *rootFlags) *cobra.Command {
	var (
		path32, path64, target, logDir string
		intervalMs, attempts, port     int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change configuration values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			var req app.ConfigUpdateRequest
			if f.Changed("path32") {
				req.Path32 = &path32
			}
			if f.Changed("path64") {
				req.Path64 = &path64
			}
			if f.Changed("target") {
				req.TargetExe = &target
			}
			if f.Changed("log-dir") {
				req.LogDir = &logDir
			}
			if f.Changed("interval-ms") {
				req.ScanIntervalMs = &intervalMs
			}
			if f.Changed("max-attempts") {
				req.MaxInspectAttempts = &attempts
			}
			if f.Changed("api-port") {
				req.APIPort = &port
			}
			if req == (app.ConfigUpdateRequest{}) {
				return errors.New("nothing to set; see --help")
			}

			svc, err := configService(flags)
			if err != nil {
				return err
			}
			resp, err := svc.UpdateConfig(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", svc.ConfigPath)
			if resp.RestartRequired {
				fmt.Fprintf(cmd.OutOrStdout(), "Restart to serve the API on port %d\n", resp.NewPort)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path32, "path32", "", "32-bit client executable")
	cmd.Flags().StringVar(&path64, "path64", "", "64-bit client executable")
	cmd.Flags().StringVar(&target, "target", "", "process image name to scan for")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory for saved daily logs")
	cmd.Flags().IntVar(&intervalMs, "interval-ms", 0, "scan interval in milliseconds")
	cmd.Flags().IntVar(&attempts, "max-attempts", 0, "inspections per process before giving up (0: unlimited)")
	cmd.Flags().IntVar(&port, "api-port", 0, "local API port")
	return cmd
}
