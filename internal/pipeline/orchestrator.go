package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"storyart/internal/config"
	"storyart/internal/logging"
	"storyart/internal/organizer"
	"storyart/internal/resolve"
	"storyart/internal/services"
	"storyart/internal/services/render"
	"storyart/internal/session"
)

// Generator is the slice of the render client the orchestrator needs.
type Generator interface {
	InitSession(ctx context.Context) error
	Generate(ctx context.Context, req render.Request) (render.Result, error)
	EstimateRemaining(pendingItems int) time.Duration
}

// Notifier receives run lifecycle events. notifications.Service satisfies it.
type Notifier interface {
	NotifyRunStarted(ctx context.Context, episodeTitle string, beats int) error
	NotifyRunCompleted(ctx context.Context, episodeTitle string, succeeded, failed int, duration time.Duration) error
	NotifyOrganizeCompleted(ctx context.Context, episodeDir string, placed int) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
}

// unit is one prompt variant of one eligible beat: the scheduling granule.
type unit struct {
	beat       session.Beat
	promptName string
	prompt     session.Prompt
	format     organizer.Format
}

func (u unit) label() string {
	return u.beat.ID + "/" + u.promptName
}

// Event is one progress update streamed while a run executes.
type Event struct {
	Label              string
	Completed          int
	Total              int
	Succeeded          int
	Failed             int
	EstimatedRemaining time.Duration
	Err                string
}

// UnitFailure records one unit that did not produce a placed asset.
type UnitFailure struct {
	BeatID     string
	PromptName string
	Reason     string
}

// Report is the final accounting for one run.
type Report struct {
	TotalUnits   int
	Succeeded    int
	Failed       int
	SkippedBeats int
	Failures     []UnitFailure
	Organize     organizer.Report
	SessionKey   string
	Elapsed      time.Duration
	Cancelled    bool
}

// Orchestrator drives a full generation run: eligibility filtering, grouped
// concurrent generation, output resolution, asset organization, and session
// persistence.
type Orchestrator struct {
	cfg       *config.Config
	generator Generator
	resolver  *resolve.Resolver
	store     *session.Store
	organizer *organizer.Organizer
	notifier  Notifier
	logger    *slog.Logger
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(cfg *config.Config, generator Generator, resolver *resolve.Resolver, store *session.Store, org *organizer.Organizer, notifier Notifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		generator: generator,
		resolver:  resolver,
		store:     store,
		organizer: org,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run is the handle to an in-flight generation run.
type Run struct {
	events chan Event
	cancel *render.CancelFlag
	done   chan struct{}

	report Report
	err    error
}

// Events streams progress updates. The channel closes when the run finishes.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Cancel requests cooperative cancellation: the current group finishes, later
// groups never start.
func (r *Run) Cancel() {
	r.cancel.Set()
}

// Wait blocks until the run finishes and returns the final report. Callers
// that do not consume Events must still call Wait.
func (r *Run) Wait() (Report, error) {
	<-r.done
	return r.report, r.err
}

// Start validates the session, claims the run lock, performs the service
// handshake, and launches the run. Validation failures surface synchronously;
// everything after the handshake streams through the returned handle.
func (o *Orchestrator) Start(ctx context.Context, sess *session.Session) (*Run, error) {
	ctx = services.WithNewRequestID(ctx)

	eligible, skipped := sess.EligibleBeats()
	for _, beat := range skipped {
		o.logger.Warn("beat skipped by eligibility filter",
			logging.String(logging.FieldBeatID, beat.ID),
			logging.String("decision", string(beat.Decision)),
			logging.Int("prompts", len(beat.Prompts)),
		)
	}
	if len(eligible) == 0 {
		return nil, services.Wrap(services.ErrPrecondition, "pipeline", "start",
			"no beats eligible for generation; every beat is REUSE_IMAGE or has no prompts", nil)
	}

	lock := flock.New(filepath.Join(o.cfg.Paths.DataDir, "pipeline.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrPrecondition, "pipeline", "start", "acquire run lock", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrPrecondition, "pipeline", "start",
			"another generation run is already in progress", nil)
	}

	if err := o.generator.InitSession(ctx); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	units := buildUnits(eligible)
	run := &Run{
		events: make(chan Event, len(units)+1),
		cancel: render.NewCancelFlag(),
		done:   make(chan struct{}),
	}

	if o.notifier != nil {
		if err := o.notifier.NotifyRunStarted(ctx, sess.Title, len(eligible)); err != nil {
			o.logger.Warn("run start notification failed", logging.Error(err))
		}
	}

	go o.execute(ctx, sess, units, len(skipped), run, lock)
	return run, nil
}

// buildUnits expands eligible beats into prompt-variant units, ordered by
// beat then prompt name so runs are deterministic.
func buildUnits(beats []session.Beat) []unit {
	var units []unit
	for _, beat := range beats {
		names := make([]string, 0, len(beat.Prompts))
		for name := range beat.Prompts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			prompt := beat.Prompts[name]
			units = append(units, unit{
				beat:       beat,
				promptName: name,
				prompt:     prompt,
				format:     formatFor(name, prompt),
			})
		}
	}
	return units
}

// formatFor derives the delivery format from the prompt variant name when it
// names a format directly, falling back to the render aspect ratio.
func formatFor(promptName string, prompt session.Prompt) organizer.Format {
	if f := organizer.Format(strings.TrimSpace(promptName)); f.Valid() {
		return f
	}
	return organizer.FormatForAspect(prompt.Width, prompt.Height)
}

type unitOutcome struct {
	unit       unit
	result     session.GenerationResult
	placements []organizer.Placement
	err        error
}

func (o *Orchestrator) execute(ctx context.Context, sess *session.Session, units []unit, skippedBeats int, run *Run, lock *flock.Flock) {
	defer close(run.done)
	defer close(run.events)
	defer func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	start := time.Now()
	logger := logging.WithContext(ctx, o.logger)
	report := Report{TotalUnits: len(units), SkippedBeats: skippedBeats}

	groupSize := o.cfg.Pipeline.GroupSize
	if groupSize <= 0 {
		groupSize = 1
	}

	var (
		mu       sync.Mutex
		outcomes []unitOutcome
		done     int
	)

	for groupStart := 0; groupStart < len(units); groupStart += groupSize {
		if ctx.Err() != nil || run.cancel.IsSet() {
			report.Cancelled = true
			logger.Info("run cancelled; remaining groups skipped",
				logging.Int("completed", done),
				logging.Int("total", len(units)),
			)
			break
		}

		groupEnd := groupStart + groupSize
		if groupEnd > len(units) {
			groupEnd = len(units)
		}

		var wg sync.WaitGroup
		for _, u := range units[groupStart:groupEnd] {
			wg.Add(1)
			go func(u unit) {
				defer wg.Done()
				outcome := o.processUnit(ctx, start, u)

				mu.Lock()
				outcomes = append(outcomes, outcome)
				done++
				if outcome.err != nil {
					report.Failed++
					report.Failures = append(report.Failures, UnitFailure{
						BeatID:     u.beat.ID,
						PromptName: u.promptName,
						Reason:     outcome.err.Error(),
					})
				} else {
					report.Succeeded++
				}
				event := Event{
					Label:              u.label(),
					Completed:          done,
					Total:              len(units),
					Succeeded:          report.Succeeded,
					Failed:             report.Failed,
					EstimatedRemaining: o.generator.EstimateRemaining(len(units) - done),
				}
				if outcome.err != nil {
					event.Err = outcome.err.Error()
				}
				// sent under mu so consumers observe Completed strictly
				// increasing; the channel is buffered for every unit and
				// never blocks
				run.events <- event
				mu.Unlock()
			}(u)
		}
		wg.Wait()
	}

	report.Organize = o.organize(ctx, sess, outcomes, logger)

	results := make([]session.GenerationResult, 0, len(outcomes))
	for _, outcome := range outcomes {
		results = append(results, outcome.result)
	}
	if key, err := o.store.Save(ctx, sess.WithResults(results)); err != nil {
		logger.Warn("failed to persist run results", logging.Error(err))
	} else {
		report.SessionKey = key
	}

	report.Elapsed = time.Since(start)
	run.report = report

	logger.Info("run completed",
		logging.Int("units", report.TotalUnits),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("skipped_beats", report.SkippedBeats),
		logging.Bool("cancelled", report.Cancelled),
		logging.Duration("elapsed", report.Elapsed),
	)

	if o.notifier != nil {
		if err := o.notifier.NotifyRunCompleted(ctx, sess.Title, report.Succeeded, report.Failed, report.Elapsed); err != nil {
			logger.Warn("run completion notification failed", logging.Error(err))
		}
	}
}

// processUnit renders one prompt variant and resolves its outputs on disk.
func (o *Orchestrator) processUnit(ctx context.Context, runStart time.Time, u unit) unitOutcome {
	unitCtx := services.WithBeatID(ctx, u.beat.ID)
	logger := logging.WithContext(unitCtx, o.logger)

	outcome := unitOutcome{
		unit: u,
		result: session.GenerationResult{
			BeatID:     u.beat.ID,
			PromptName: u.promptName,
			At:         time.Now().UTC(),
		},
	}

	req := render.Request{
		Label:    u.label(),
		Prompt:   u.prompt.Text,
		Width:    u.prompt.Width,
		Height:   u.prompt.Height,
		Model:    u.prompt.Model,
		Guidance: u.prompt.Guidance,
		Steps:    u.prompt.Steps,
		Seed:     u.prompt.Seed,
		Count:    o.cfg.Pipeline.ImagesPerPrompt,
	}

	result, err := o.generator.Generate(unitCtx, req)
	if err != nil {
		outcome.err = err
		outcome.result.Error = err.Error()
		logger.Warn("generation failed",
			logging.String("label", u.label()),
			logging.Error(err),
		)
		return outcome
	}

	var resolved []string
	for _, file := range result.Files {
		path, resolveErr := o.resolver.Resolve(file, runStart)
		if resolveErr != nil {
			logger.Warn("generated file not found on disk",
				logging.String("label", u.label()),
				logging.String("file", file),
				logging.Error(resolveErr),
			)
			continue
		}
		resolved = append(resolved, path)
	}
	if len(resolved) == 0 {
		outcome.err = fmt.Errorf("none of %d generated file(s) could be located on disk", len(result.Files))
		outcome.result.Error = outcome.err.Error()
		return outcome
	}

	outcome.result.Success = true
	outcome.result.Paths = resolved
	for _, path := range resolved {
		outcome.placements = append(outcome.placements, organizer.Placement{
			Scene:      u.beat.Scene,
			BeatID:     u.beat.ID,
			Format:     u.format,
			SourcePath: path,
		})
	}
	return outcome
}

func (o *Orchestrator) organize(ctx context.Context, sess *session.Session, outcomes []unitOutcome, logger *slog.Logger) organizer.Report {
	var placements []organizer.Placement
	for _, outcome := range outcomes {
		placements = append(placements, outcome.placements...)
	}
	if len(placements) == 0 {
		return organizer.Report{}
	}
	meta := organizer.EpisodeMeta{Number: sess.EpisodeNumber, Title: sess.Title}
	// Cancellation stops generation but already-rendered assets still get
	// filed, so a resumed run never leaves loose files behind.
	report, err := o.organizer.Organize(context.WithoutCancel(ctx), meta, placements)
	if err != nil {
		logger.Warn("asset organization failed", logging.Error(err))
		if o.notifier != nil {
			if notifyErr := o.notifier.NotifyError(ctx, err, "organize"); notifyErr != nil {
				logger.Debug("organize error notification failed", logging.Error(notifyErr))
			}
		}
		return report
	}
	if report.Succeeded > 0 && o.notifier != nil {
		if notifyErr := o.notifier.NotifyOrganizeCompleted(ctx, o.organizer.EpisodeDir(meta), report.Succeeded); notifyErr != nil {
			logger.Debug("organize completion notification failed", logging.Error(notifyErr))
		}
	}
	return report
}

// RunBeat generates a single beat synchronously, draining progress events
// internally. Used by the CLI for targeted retries.
func (o *Orchestrator) RunBeat(ctx context.Context, sess *session.Session, beatID string) (Report, error) {
	var target *session.Beat
	for i := range sess.Beats {
		if sess.Beats[i].ID == beatID {
			target = &sess.Beats[i]
			break
		}
	}
	if target == nil {
		return Report{}, services.Wrap(services.ErrNotFound, "pipeline", "run beat",
			fmt.Sprintf("beat %q not present in session", beatID), nil)
	}

	single := *sess
	single.Beats = []session.Beat{*target}
	run, err := o.Start(ctx, &single)
	if err != nil {
		return Report{}, err
	}
	for range run.Events() {
	}
	return run.Wait()
}
