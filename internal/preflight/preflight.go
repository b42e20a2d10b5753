package preflight

import (
	"context"
	"strings"

	"storyart/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// HealthChecker is implemented by the session store backend.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// RunAll executes the preflight checks for the given config. The store is
// optional; pass nil when the session database has not been opened.
func RunAll(ctx context.Context, cfg *config.Config, store HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Render output", cfg.Paths.RenderOutputDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	if strings.TrimSpace(cfg.Paths.ProjectsRoot) != "" {
		results = append(results, CheckDirectoryAccess("Projects root", cfg.Paths.ProjectsRoot))
	}

	results = append(results, CheckRenderService(ctx, cfg.Render.BaseURL))

	if store != nil {
		results = append(results, CheckStore(ctx, store))
	}

	return results
}

// Passed reports whether every result in the set passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
