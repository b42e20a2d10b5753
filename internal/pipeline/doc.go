// Package pipeline orchestrates generation runs: it filters eligible beats,
// renders prompt variants in bounded concurrent groups, resolves outputs on
// disk, files them through the organizer, and persists the run as a new
// session snapshot. Progress streams through the Run handle; cancellation is
// cooperative at group boundaries.
package pipeline
