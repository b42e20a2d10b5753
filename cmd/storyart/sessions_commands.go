package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyart/internal/config"
	"storyart/internal/services"
	"storyart/internal/session"
)

func newSessionsCommand(cmdCtx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain stored sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCommand(cmdCtx))
	sessionsCmd.AddCommand(newSessionsShowCommand(cmdCtx))
	sessionsCmd.AddCommand(newSessionsLatestCommand(cmdCtx))
	sessionsCmd.AddCommand(newSessionsImportCommand(cmdCtx))
	sessionsCmd.AddCommand(newSessionsSweepCommand(cmdCtx))

	return sessionsCmd
}

func newSessionsListCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withSessionStore(func(store *session.Store) error {
				summaries, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(summaries) == 0 {
					fmt.Fprintln(out, "No sessions stored")
					return nil
				}
				rows := make([][]string, 0, len(summaries))
				for _, summary := range summaries {
					rows = append(rows, []string{
						summary.Key,
						summary.SavedAt.Local().Format("2006-01-02 15:04:05"),
						fmt.Sprintf("%d", summary.EpisodeNumber),
						summary.Title,
						fmt.Sprintf("%d", summary.Beats),
						fmt.Sprintf("%d", summary.Results),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Key", "Saved", "Ep", "Title", "Beats", "Results"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newSessionsShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Show one stored session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withSessionStore(func(store *session.Store) error {
				sess, err := store.GetByKey(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if sess == nil {
					return services.Wrap(services.ErrNotFound, "cli", "show session",
						fmt.Sprintf("session %q not found", args[0]), nil)
				}
				printSession(cmd, args[0], sess)
				return nil
			})
		},
	}
}

func newSessionsLatestCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withSessionStore(func(store *session.Store) error {
				sess, key, err := store.GetLatest(cmd.Context())
				if err != nil {
					return err
				}
				if sess == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions stored")
					return nil
				}
				printSession(cmd, key, sess)
				return nil
			})
		},
	}
}

func newSessionsImportCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a session snapshot from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			payload, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read session file: %w", err)
			}
			var sess session.Session
			if err := json.Unmarshal(payload, &sess); err != nil {
				return fmt.Errorf("parse session file: %w", err)
			}
			if len(sess.Beats) == 0 {
				return fmt.Errorf("session file %s contains no beats", path)
			}
			return cmdCtx.withSessionStore(func(store *session.Store) error {
				key, err := store.Save(cmd.Context(), &sess)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported session as %s (%d beats)\n", key, len(sess.Beats))
				return nil
			})
		},
	}
}

func newSessionsSweepCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired sessions and orphaned index entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withSessionStore(func(store *session.Store) error {
				removed, err := store.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries\n", removed)
				return nil
			})
		},
	}
}

func printSession(cmd *cobra.Command, key string, sess *session.Session) {
	out := cmd.OutOrStdout()
	eligible, skipped := sess.EligibleBeats()

	fmt.Fprintf(out, "Key:      %s\n", key)
	fmt.Fprintf(out, "Episode:  %d %q\n", sess.EpisodeNumber, sess.Title)
	fmt.Fprintf(out, "Saved:    %s\n", sess.SavedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(out, "Beats:    %d (%d eligible, %d skipped)\n", len(sess.Beats), len(eligible), len(skipped))
	fmt.Fprintf(out, "Results:  %d\n", len(sess.Results))

	if len(sess.Beats) > 0 {
		rows := make([][]string, 0, len(sess.Beats))
		for _, beat := range sess.Beats {
			names := make([]string, 0, len(beat.Prompts))
			for name := range beat.Prompts {
				names = append(names, name)
			}
			sort.Strings(names)
			rows = append(rows, []string{
				beat.ID,
				fmt.Sprintf("%d", beat.Scene),
				string(beat.Decision),
				strings.Join(names, ", "),
				yesNo(beat.Eligible()),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Beat", "Scene", "Decision", "Prompts", "Eligible"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
		))
	}

	if len(sess.Results) > 0 {
		rows := make([][]string, 0, len(sess.Results))
		for _, result := range sess.Results {
			detail := fmt.Sprintf("%d file(s)", len(result.Paths))
			if !result.Success {
				detail = result.Error
			}
			rows = append(rows, []string{
				result.BeatID,
				result.PromptName,
				yesNo(result.Success),
				detail,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Beat", "Prompt", "OK", "Detail"},
			rows,
			nil,
		))
	}
}
