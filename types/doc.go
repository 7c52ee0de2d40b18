// Package types provides unified type definitions for the RagFlow engine.
//
// This is the lowest-level package with no internal dependencies, so the
// document model, evidence model, message model and the error taxonomy all
// live here to avoid circular imports between the retrieval, memory and
// pipeline packages.
package types
