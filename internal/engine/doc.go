// Package engine implements the Orchestration Facade (component H): the
// single entry point that wires the Store Context, State Manager, Memory
// Manager, Relationship Engine, Search Strategies, FTS Index Manager, and
// Consolidation Engine together behind the storeChat, storeMemory,
// searchMemories, byRelationship, relatedTo, storeRelationships,
// resolveConflicts, getMemoryState, transitionMemoryState, and stats verbs.
//
// It owns the lifecycle of every background scheduler (FTS health/optimize/
// backup, consolidation) and tears them down from Close, mirroring the base
// repo's ai.Manager coordinator-of-managers shape.
package engine
