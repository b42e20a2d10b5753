package session

import "time"

// Decision is the per-beat image decision made upstream.
type Decision string

const (
	DecisionNewImage   Decision = "NEW_IMAGE"
	DecisionReuseImage Decision = "REUSE_IMAGE"
)

// Prompt is one named generation-instruction variant for a beat. The text
// and parameters are produced upstream and treated as opaque here.
type Prompt struct {
	Text     string  `json:"text"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Model    string  `json:"model,omitempty"`
	Guidance float64 `json:"guidance,omitempty"`
	Steps    int     `json:"steps,omitempty"`
	Seed     int64   `json:"seed,omitempty"`
}

// Beat is one narrative unit with its decision and prompt variants.
type Beat struct {
	ID       string            `json:"id"`
	Scene    int               `json:"scene"`
	Decision Decision          `json:"decision"`
	Prompts  map[string]Prompt `json:"prompts,omitempty"`
}

// Eligible reports whether the beat qualifies for generation: a NEW_IMAGE
// decision with at least one prompt variant.
func (b Beat) Eligible() bool {
	return b.Decision == DecisionNewImage && len(b.Prompts) > 0
}

// GenerationResult records the outcome of rendering one prompt variant.
type GenerationResult struct {
	BeatID     string    `json:"beatId"`
	PromptName string    `json:"promptName"`
	Success    bool      `json:"success"`
	Paths      []string  `json:"paths,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Session is an immutable snapshot of an episode's generation state.
type Session struct {
	EpisodeNumber int                `json:"episodeNumber"`
	Title         string             `json:"title"`
	Script        string             `json:"script,omitempty"`
	Context       string             `json:"context,omitempty"`
	Beats         []Beat             `json:"beats"`
	Results       []GenerationResult `json:"results,omitempty"`
	SavedAt       time.Time          `json:"savedAt"`
}

// EligibleBeats returns the beats that qualify for generation and, second,
// the beats skipped by the eligibility filter.
func (s *Session) EligibleBeats() (eligible, skipped []Beat) {
	for _, beat := range s.Beats {
		if beat.Eligible() {
			eligible = append(eligible, beat)
		} else {
			skipped = append(skipped, beat)
		}
	}
	return eligible, skipped
}

// WithResults returns a copy of the session carrying the supplied results.
// The receiver is left untouched; saving the copy produces a new key.
func (s *Session) WithResults(results []GenerationResult) *Session {
	clone := *s
	clone.Results = make([]GenerationResult, len(results))
	copy(clone.Results, results)
	return &clone
}

// Summary is the listing row for one stored session.
type Summary struct {
	Key           string    `json:"key"`
	SavedAt       time.Time `json:"savedAt"`
	EpisodeNumber int       `json:"episodeNumber"`
	Title         string    `json:"title"`
	Beats         int       `json:"beats"`
	Results       int       `json:"results"`
}
