// Package meta provides the key/value side-table attached to scored results.
//
// Keys are small interned integers handed out by a Registry; the table
// itself (Info) never stores names. This keeps per-result storage compact
// when thousands of results share the same few attribute names, and makes
// key comparison a plain integer compare.
//
// Values are a sealed set of types (Value): String, Int, Float and their
// list forms. Nothing else satisfies the interface, so consumers can
// switch over the full set without a default arm for unknown kinds.
//
// This package imports nothing internal. All other internal packages may
// import meta.
package meta
