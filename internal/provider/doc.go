// Package provider implements the model provider contract (§6): the single
// dependency the engine has outside its own store. A Client answers
// chatCompletion requests; Parse turns its JSON content into an
// ExtractionResult, falling back to a deterministic record on failure.
package provider
