package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const dateDirLayout = "2006-01-02"

// NotFoundError reports a resolution miss along with every path attempted,
// so drift between the caller's clock and the service's date partitioning
// stays diagnosable. "Not yet written" is an expected state, so callers
// should branch on this type rather than treat it as fatal.
type NotFoundError struct {
	Filename  string
	Attempted []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %q not found after %d attempts (tried: %s)",
		e.Filename, len(e.Attempted), strings.Join(e.Attempted, ", "))
}

// PathInfo annotates one candidate path with its on-disk state.
type PathInfo struct {
	Path     string
	Exists   bool
	Absolute string
	Size     int64
}

// Resolver searches the render output root for generated files.
type Resolver struct {
	outputRoot string
	now        func() time.Time
}

// New constructs a resolver over the given output root.
func New(outputRoot string) *Resolver {
	return &Resolver{outputRoot: outputRoot, now: time.Now}
}

// SetClock overrides the time source (used in tests for rollover cases).
func (r *Resolver) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Resolve locates filename on disk. Search order: today's date directory,
// the directory for the date the job started, yesterday's directory
// (midnight rollover), then the input treated as a direct path. Each
// directory is probed with an exact join first and a fragment scan second,
// since the service may alter casing or append a suffix.
func (r *Resolver) Resolve(filename string, startedAt time.Time) (string, error) {
	filename = normalizeSeparators(strings.TrimSpace(filename))
	if filename == "" {
		return "", &NotFoundError{Filename: filename, Attempted: []string{"<empty filename>"}}
	}

	var attempted []string
	base := filepath.Base(filename)

	for _, dir := range r.candidateDirs(startedAt) {
		exact := filepath.Join(dir, base)
		if found, ok := statFile(exact); ok {
			return found, nil
		}
		attempted = append(attempted, exact)

		if match, ok := fragmentScan(dir, base); ok {
			return match, nil
		}
	}

	// Direct path: the caller may already hold an absolute or relative path.
	direct := filename
	if !filepath.IsAbs(direct) {
		if abs, err := filepath.Abs(direct); err == nil {
			direct = abs
		}
	}
	if found, ok := statFile(direct); ok {
		return found, nil
	}
	attempted = append(attempted, direct)

	return "", &NotFoundError{Filename: filename, Attempted: attempted}
}

// candidateDirs returns the date directories to probe, deduplicated while
// preserving the today, start date, yesterday order.
func (r *Resolver) candidateDirs(startedAt time.Time) []string {
	today := r.now()
	dates := []time.Time{today}
	if !startedAt.IsZero() {
		dates = append(dates, startedAt)
	}
	dates = append(dates, today.AddDate(0, 0, -1))

	seen := map[string]struct{}{}
	var dirs []string
	for _, date := range dates {
		dir := filepath.Join(r.outputRoot, date.Format(dateDirLayout))
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

// EnhanceWithMetadata annotates a batch of candidate paths with existence
// and resolved absolute paths. One missing path never fails the batch.
func (r *Resolver) EnhanceWithMetadata(paths []string) []PathInfo {
	infos := make([]PathInfo, 0, len(paths))
	for _, path := range paths {
		info := PathInfo{Path: path}
		normalized := normalizeSeparators(path)
		abs := normalized
		if !filepath.IsAbs(abs) {
			if resolved, err := filepath.Abs(abs); err == nil {
				abs = resolved
			}
		}
		if stat, err := os.Stat(abs); err == nil && !stat.IsDir() {
			info.Exists = true
			info.Absolute = abs
			info.Size = stat.Size()
		}
		infos = append(infos, info)
	}
	return infos
}

// fragmentScan looks for a directory entry whose name contains the wanted
// filename's stem, case-insensitively.
func fragmentScan(dir, base string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Name()), stem) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}

func statFile(path string) (string, bool) {
	stat, err := os.Stat(path)
	if err != nil || stat.IsDir() {
		return "", false
	}
	return path, true
}

// normalizeSeparators converts foreign path separators so paths recorded on
// another platform still resolve.
func normalizeSeparators(path string) string {
	if filepath.Separator == '/' {
		return strings.ReplaceAll(path, "\\", "/")
	}
	return strings.ReplaceAll(path, "/", string(filepath.Separator))
}
