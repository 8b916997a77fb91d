// Package ident provides the core identification-data types: opaque
// references into a registry, processing-step and score-type descriptors,
// and the scored result ledger built on them.
//
// The center of the package is ScoredProcessingResult: an append-only
// ledger of applied processing steps, each carrying the scores it
// produced, plus a metadata side-table. The ledger keeps two consistent
// views of the same records:
//
//   - application order: the sequence in which steps were recorded
//   - step key: at most one record per processing step, where "no step"
//     (NoStep) counts as one distinct key
//
// All mutation routes through AddProcessingStep, which either appends a
// record under a new step key or merges scores into the existing record
// without moving it. Score resolution (Score, ScoreAndStep) scans the
// ledger most-recent-first: a later step's value for a score type
// supersedes an earlier one.
//
// References (ScoreTypeRef, ProcessingStepRef, ...) are plain uint32
// handles owned by a registry elsewhere. The ledger stores and compares
// them but never resolves them; results stay cheap to copy and carry no
// ownership of the descriptors behind the handles.
//
// Nothing here locks. A result instance requires exclusive access for the
// duration of any mutating call; callers partition results across
// goroutines rather than sharing one.
//
// This package imports only internal/meta.
package ident
