// Package organizer files generated assets into the deterministic episode
// layout: Episode_{NN}_{Title}/01_Assets/Images/{Format}/Scene_{NN}. Runs
// are non-destructive; repeated placements of the same beat allocate
// incrementing version suffixes instead of overwriting.
package organizer
