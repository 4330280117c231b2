// Package memory implements the Memory Manager: validation, persistence,
// and lifecycle-state wiring for memory records, plus a standalone
// session-id detector. Nothing on the ingest path calls the detector, so
// chatId is not defaulted from it.
package memory
