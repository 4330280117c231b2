// Package httpapi is the optional HTTP surface over the Orchestration
// Facade (internal/engine). It is carried because the base repo ships a
// REST API and the ambient-stack rule keeps outer surfaces even when the
// core spec treats them as external (§1 non-goal); it is thin by design —
// one handler per facade verb, no business logic of its own — and is
// exercised only by its own handler tests, never by the core engine tests.
package httpapi
