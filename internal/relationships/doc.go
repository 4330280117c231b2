// Package relationships implements the Relationship Engine: extraction,
// merge, conflict resolution, bidirectional validation, and BFS traversal
// over the typed relationship graph denormalized on memory records.
package relationships
