// Package store provides SQLite-backed persistence for result banks.
//
// A bank is saved as normalized rows: descriptor tables mirroring the
// registry arenas (score_types, software, input_files, processing_steps),
// one results row per entity, applied_steps rows in application order,
// and applied_scores holding the score maps. Saving is idempotent: every
// write is an upsert keyed on content identity (names, paths, step
// digests), so saving the same bank twice changes nothing.
//
// Ordering invariants:
//
//   - applied_steps.position records ledger application order and is
//     never rewritten; re-saving a grown bank appends new positions.
//   - At most one applied_steps row exists per (result, step-or-absent)
//     pair, matching the ledger's step-key uniqueness.
//   - Every query carries an ORDER BY with a binary-collated tiebreaker
//     so loads and listings are deterministic.
//
// Each results row carries the content hash of its canonical form at
// save time. VerifyBank recomputes hashes after a load and reports any
// drift.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Content hashes and step digests are computed in internal/ident using
// canonical JSON and SHA-256 with domain separation.
package store
