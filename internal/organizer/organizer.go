package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"storyart/internal/fileutil"
	"storyart/internal/logging"
	"storyart/internal/services"
	"storyart/internal/textutil"
)

// Format tags an asset with the delivery layout it was rendered for.
type Format string

const (
	FormatLongForm  Format = "LongForm"
	FormatShortForm Format = "ShortForm"
)

// FormatForAspect maps render dimensions to a delivery format: portrait
// frames belong to the short-form vertical layout, everything else to the
// long-form widescreen layout.
func FormatForAspect(width, height int) Format {
	if height > width {
		return FormatShortForm
	}
	return FormatLongForm
}

// Valid reports whether the format is one of the known delivery layouts.
func (f Format) Valid() bool {
	return f == FormatLongForm || f == FormatShortForm
}

// EpisodeMeta names the episode the assets belong to.
type EpisodeMeta struct {
	Number int
	Title  string
}

// Placement is one generated asset waiting to be filed into the episode tree.
type Placement struct {
	Scene      int
	BeatID     string
	Format     Format
	SourcePath string
}

// PlacedAsset records where a placement landed.
type PlacedAsset struct {
	Placement
	TargetPath string
	Version    int
}

// Failure records one placement that could not be filed.
type Failure struct {
	Scene  int
	BeatID string
	Format Format
	Reason string
}

// Report summarizes an organize run.
type Report struct {
	Attempted int
	Succeeded int
	Failed    int
	Placed    []PlacedAsset
	Failures  []Failure
}

// Organizer files generated assets into the episode directory tree. Existing
// files are never overwritten: a placement that collides with an existing
// version gets the next free version suffix. Sources are copied by default;
// WithSourceCleanup switches to moving them out of the render output
// directory.
type Organizer struct {
	root        string
	logger      *slog.Logger
	moveSources bool
}

// Option adjusts organizer behavior.
type Option func(*Organizer)

// WithSourceCleanup makes the organizer move sources into the episode tree
// instead of copying them, so filed assets no longer accumulate in the render
// output directory.
func WithSourceCleanup() Option {
	return func(o *Organizer) { o.moveSources = true }
}

// NewOrganizer constructs an organizer rooted at the projects directory.
func NewOrganizer(projectsRoot string, logger *slog.Logger, opts ...Option) *Organizer {
	org := &Organizer{
		root:   strings.TrimSpace(projectsRoot),
		logger: logging.NewComponentLogger(logger, "organizer"),
	}
	for _, opt := range opts {
		opt(org)
	}
	return org
}

// EpisodeDir returns the directory for an episode, for example
// "Episode_07_The_Lost_City".
func (o *Organizer) EpisodeDir(meta EpisodeMeta) string {
	segment := textutil.TitleSegment(meta.Title)
	if segment == "" {
		segment = "Untitled"
	}
	return filepath.Join(o.root, fmt.Sprintf("Episode_%02d_%s", meta.Number, segment))
}

// sceneDir returns the directory one placement files into:
// {episode}/01_Assets/Images/{Format}/Scene_{NN}.
func (o *Organizer) sceneDir(meta EpisodeMeta, p Placement) string {
	return filepath.Join(
		o.EpisodeDir(meta),
		"01_Assets", "Images",
		string(p.Format),
		fmt.Sprintf("Scene_%02d", p.Scene),
	)
}

// Organize files every placement, collecting per-item failures instead of
// aborting: one bad source never blocks the rest of the batch.
func (o *Organizer) Organize(ctx context.Context, meta EpisodeMeta, placements []Placement) (Report, error) {
	logger := logging.WithContext(ctx, o.logger)
	if o.root == "" {
		return Report{}, services.Wrap(services.ErrConfiguration, "organizer", "organize",
			"projects root not configured; set projects_root in your storyart config.toml", nil)
	}

	report := Report{Attempted: len(placements)}
	for _, p := range placements {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		placed, err := o.place(meta, p)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				Scene:  p.Scene,
				BeatID: p.BeatID,
				Format: p.Format,
				Reason: err.Error(),
			})
			logger.Warn("asset placement failed",
				logging.String(logging.FieldBeatID, p.BeatID),
				logging.Int(logging.FieldScene, p.Scene),
				logging.String(logging.FieldFormat, string(p.Format)),
				logging.Error(err),
			)
			continue
		}
		report.Succeeded++
		report.Placed = append(report.Placed, placed)
		logger.Debug("asset placed",
			logging.String(logging.FieldBeatID, p.BeatID),
			logging.String("target", placed.TargetPath),
			logging.Int("version", placed.Version),
		)
	}

	logger.Info("organize completed",
		logging.String("episode_dir", o.EpisodeDir(meta)),
		logging.Int("attempted", report.Attempted),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
	)
	return report, nil
}

func (o *Organizer) place(meta EpisodeMeta, p Placement) (PlacedAsset, error) {
	if strings.TrimSpace(p.BeatID) == "" {
		return PlacedAsset{}, errors.New("placement missing beat id")
	}
	if !p.Format.Valid() {
		return PlacedAsset{}, fmt.Errorf("unknown format %q", p.Format)
	}
	source := strings.TrimSpace(p.SourcePath)
	if source == "" {
		return PlacedAsset{}, errors.New("placement missing source path")
	}
	if info, err := os.Stat(source); err != nil {
		return PlacedAsset{}, fmt.Errorf("source unavailable: %w", err)
	} else if info.IsDir() {
		return PlacedAsset{}, fmt.Errorf("source %s is a directory", source)
	}

	dir := o.sceneDir(meta, p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PlacedAsset{}, fmt.Errorf("ensure scene dir: %w", err)
	}

	ext := filepath.Ext(source)
	if ext == "" {
		ext = ".png"
	}
	target, version, err := nextVersionPath(dir, p.BeatID, p.Format, ext)
	if err != nil {
		return PlacedAsset{}, err
	}
	if o.moveSources {
		if err := fileutil.MoveFile(source, target); err != nil {
			return PlacedAsset{}, fmt.Errorf("move asset: %w", err)
		}
	} else if err := fileutil.CopyFileVerified(source, target); err != nil {
		return PlacedAsset{}, fmt.Errorf("copy asset: %w", err)
	}
	return PlacedAsset{Placement: p, TargetPath: target, Version: version}, nil
}

// nextVersionPath finds the first free versioned filename in dir:
// {beatID}_{format}_v{NN}{ext}, starting at v01.
func nextVersionPath(dir, beatID string, format Format, ext string) (string, int, error) {
	const maxVersions = 10000
	for version := 1; version <= maxVersions; version++ {
		name := fmt.Sprintf("%s_%s_v%02d%s", beatID, format, version, ext)
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return candidate, version, nil
			}
			return "", 0, err
		}
	}
	return "", 0, fmt.Errorf("exhausted version slots for %s in %s", beatID, dir)
}
