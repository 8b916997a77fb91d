// Package registry owns the descriptors behind the opaque refs the
// ledger stores: score types, processing software, input files, and
// processing steps live in append-only arenas here, and refs are dense
// 1-based indices into them. A ref issued by a Registry stays valid for
// the Registry's lifetime; nothing is ever removed.
//
// Registration deduplicates by content identity: score types by
// NFC-normalized name, software by (name, version), input files by path,
// and steps by their content digest. Re-registering identical content
// returns the existing ref; registering different content under the same
// identity is a conflict error.
//
// Bank groups one Registry with the scored results keyed by entity, and
// is the unit of persistence and merging. Bank.Merge re-registers the
// other bank's descriptors, remaps refs, and replays records through the
// ledger's deduplicating insert, so folding independently produced banks
// never loses a step or score.
package registry
