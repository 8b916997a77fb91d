// Package filter evaluates score predicates over banks.
//
// A predicate compares one score type's current value against a
// threshold, e.g. "q-value <= 0.05"; a filter is a conjunction of
// predicates separated by ";". "Current value" means the same
// most-recent-wins resolution the ledger's score lookup uses, so
// filtering and querying never disagree about which value counts.
//
// Filters run two ways: Apply walks an in-memory bank, and CompileSQL
// produces the equivalent parameterized query over the store's tables
// for listing without loading the bank.
package filter
