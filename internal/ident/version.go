package ident

// Version constants for the on-disk schema and the tool itself.
const (
	// SchemaVersion is the store and snapshot format version.
	SchemaVersion = 1

	// ToolVersion is the omsid release version.
	ToolVersion = "0.1.0"
)
