package ident

// References are dense handles into registry arenas. Valid handles start
// at 1; the zero value means "absent" and never addresses an entry. The
// ledger compares handles by value and never dereferences them; handles
// are only meaningful while the registry that issued them is alive.

// ScoreTypeRef identifies a score type (e.g. "q-value", "XCorr").
type ScoreTypeRef uint32

// ProcessingStepRef identifies a data processing step. The zero value
// (NoStep) marks scores not attached to any specific step.
type ProcessingStepRef uint32

// NoStep is the absent-step key. A ledger holds at most one record under
// it, same as any other step key.
const NoStep ProcessingStepRef = 0

// SoftwareRef identifies a processing software descriptor.
type SoftwareRef uint32

// InputFileRef identifies an input file descriptor.
type InputFileRef uint32
