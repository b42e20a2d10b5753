package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"storyart/internal/kv"
	"storyart/internal/preflight"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run environment preflight checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			var store preflight.HealthChecker
			backend, err := kv.Open(filepath.Join(cfg.Paths.DataDir, "sessions.db"))
			if err == nil {
				defer backend.Close()
				store = backend
			}

			results := preflight.RunAll(cmd.Context(), cfg, store)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			failures := 0
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failures++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			if failures > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failures)
			}
			return nil
		},
	}
}
