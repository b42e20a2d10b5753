package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storyart/internal/config"
	"storyart/internal/notifications"
	"storyart/internal/organizer"
	"storyart/internal/pipeline"
	"storyart/internal/resolve"
	"storyart/internal/services"
	"storyart/internal/services/render"
	"storyart/internal/session"
)

func newGenerateCommand(cmdCtx *commandContext) *cobra.Command {
	var sessionKey string
	var beatID string
	var formats []string
	var count int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate images for the latest (or a named) session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if count > 0 {
				override := *cfg
				override.Pipeline.ImagesPerPrompt = count
				cfg = &override
			}
			return cmdCtx.withSessionStore(func(store *session.Store) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				sess, key, err := loadSession(ctx, store, sessionKey)
				if err != nil {
					return err
				}
				if len(formats) > 0 {
					sess, err = filterSessionFormats(sess, formats)
					if err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session %s: episode %d %q, %d beats\n", key, sess.EpisodeNumber, sess.Title, len(sess.Beats))

				orch := buildOrchestrator(cmdCtx, cfg, store)
				if beatID != "" {
					report, err := orch.RunBeat(ctx, sess, beatID)
					if err != nil {
						return err
					}
					printReport(out, report)
					return reportError(report)
				}

				run, err := orch.Start(ctx, sess)
				if err != nil {
					return err
				}

				// first interrupt cancels cooperatively; in-flight calls finish
				go func() {
					<-ctx.Done()
					run.Cancel()
				}()

				for event := range run.Events() {
					line := fmt.Sprintf("[%d/%d] %s", event.Completed, event.Total, event.Label)
					if event.Err != "" {
						line += " FAILED: " + event.Err
					} else {
						line += " done"
					}
					if event.EstimatedRemaining > 0 {
						line += fmt.Sprintf(" (~%s remaining)", event.EstimatedRemaining.Round(time.Second))
					}
					fmt.Fprintln(out, line)
				}

				report, err := run.Wait()
				if err != nil {
					return err
				}
				printReport(out, report)
				return reportError(report)
			})
		},
	}

	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "Session key to generate from (defaults to the latest session)")
	cmd.Flags().StringVarP(&beatID, "beat", "b", "", "Generate a single beat by id")
	cmd.Flags().StringSliceVar(&formats, "formats", nil, "Restrict generation to the named formats (LongForm, ShortForm)")
	cmd.Flags().IntVar(&count, "count", 0, "Override the number of images generated per prompt")
	return cmd
}

// filterSessionFormats returns a copy of sess whose beats only carry prompts
// that render in one of the requested formats.
func filterSessionFormats(sess *session.Session, formats []string) (*session.Session, error) {
	want := make(map[organizer.Format]bool, len(formats))
	for _, raw := range formats {
		format := organizer.Format(strings.TrimSpace(raw))
		if !format.Valid() {
			return nil, fmt.Errorf("unknown format %q (expected %s or %s)", raw, organizer.FormatLongForm, organizer.FormatShortForm)
		}
		want[format] = true
	}

	filtered := *sess
	filtered.Beats = make([]session.Beat, 0, len(sess.Beats))
	for _, beat := range sess.Beats {
		kept := beat
		kept.Prompts = make(map[string]session.Prompt, len(beat.Prompts))
		for name, prompt := range beat.Prompts {
			format := organizer.Format(name)
			if !format.Valid() {
				format = organizer.FormatForAspect(prompt.Width, prompt.Height)
			}
			if want[format] {
				kept.Prompts[name] = prompt
			}
		}
		filtered.Beats = append(filtered.Beats, kept)
	}
	return &filtered, nil
}

func loadSession(ctx context.Context, store *session.Store, key string) (*session.Session, string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		sess, latestKey, err := store.GetLatest(ctx)
		if err != nil {
			return nil, "", err
		}
		if sess == nil {
			return nil, "", services.Wrap(services.ErrNotFound, "cli", "load session",
				"no session stored; import one with 'storyart sessions import'", nil)
		}
		return sess, latestKey, nil
	}
	sess, err := store.GetByKey(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return nil, "", services.Wrap(services.ErrNotFound, "cli", "load session",
			fmt.Sprintf("session %q not found", key), nil)
	}
	return sess, key, nil
}

func buildOrchestrator(cmdCtx *commandContext, cfg *config.Config, store *session.Store) *pipeline.Orchestrator {
	logger := cmdCtx.logger()

	client := render.NewClient(
		render.Config{
			BaseURL:         cfg.Render.BaseURL,
			Timeout:         time.Duration(cfg.Render.TimeoutSeconds) * time.Second,
			ExtendedTimeout: time.Duration(cfg.Render.ExtendedTimeoutSeconds) * time.Second,
		},
		render.WithLogger(logger),
		render.WithRetryMaxAttempts(cfg.Render.RetryMaxAttempts),
		render.WithRetryBackoff(
			time.Duration(cfg.Render.RetryBaseDelayMS)*time.Millisecond,
			time.Duration(cfg.Render.RetryMaxDelayMS)*time.Millisecond,
		),
	)

	var orgOpts []organizer.Option
	if cfg.Pipeline.CleanupRenderOutput {
		orgOpts = append(orgOpts, organizer.WithSourceCleanup())
	}

	return pipeline.NewOrchestrator(
		cfg,
		client,
		resolve.New(cfg.Paths.RenderOutputDir),
		store,
		organizer.NewOrganizer(cfg.Paths.ProjectsRoot, logger, orgOpts...),
		notifications.NewService(cfg),
		logger,
	)
}

func printReport(out io.Writer, report pipeline.Report) {
	rows := [][]string{
		{"Units", fmt.Sprintf("%d", report.TotalUnits)},
		{"Succeeded", fmt.Sprintf("%d", report.Succeeded)},
		{"Failed", fmt.Sprintf("%d", report.Failed)},
		{"Skipped beats", fmt.Sprintf("%d", report.SkippedBeats)},
		{"Assets filed", fmt.Sprintf("%d", report.Organize.Succeeded)},
		{"Cancelled", yesNo(report.Cancelled)},
		{"Elapsed", report.Elapsed.Round(time.Second).String()},
	}
	if report.SessionKey != "" {
		rows = append(rows, []string{"Saved as", report.SessionKey})
	}
	fmt.Fprintln(out, renderKVTable(rows))

	if len(report.Failures) > 0 {
		failureRows := make([][]string, 0, len(report.Failures))
		for _, failure := range report.Failures {
			failureRows = append(failureRows, []string{failure.BeatID, failure.PromptName, failure.Reason})
		}
		fmt.Fprintln(out, renderTable([]string{"Beat", "Prompt", "Reason"}, failureRows, nil))
	}
	for _, failure := range report.Organize.Failures {
		fmt.Fprintf(out, "organize failure: beat %s scene %d (%s): %s\n", failure.BeatID, failure.Scene, failure.Format, failure.Reason)
	}
}

func reportError(report pipeline.Report) error {
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d unit(s) failed", report.Failed, report.TotalUnits)
	}
	return nil
}
