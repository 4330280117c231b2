// Package consolidation implements the Consolidation Engine (component G):
// duplicate detection, atomic merge and rollback, stale-duplicate cleanup,
// and a scheduler that runs the pipeline on a cadence.
package consolidation
