package sourcemap

import "github.com/parcel-bundler/fast-source-map/mapping"

// Segment is a mapping table entry in its raw, id-form representation:
// internal 0-based generated/original coordinates and interned source/name
// ids rather than resolved strings. AllMappings returns segments in this
// form, since resolving every id to a string is wasted work for callers
// that only want to inspect structure.
type Segment = mapping.Segment

// Position is a 1-based line, 0-based column pair, the external coordinate
// convention used everywhere in this package's public API.
type Position struct {
	Line   int
	Column int
}

// IndexedMapping is one caller-supplied mapping: a required generated
// position, and an optional original position with the source path (and,
// if present, the symbol name) it resolves to. Original, if non-nil,
// requires a non-empty Source.
type IndexedMapping struct {
	Generated Position
	Original  *Position
	Source    string
	Name      string
}

// ResolvedMapping is FindClosestMapping's result: a generated position and,
// if one was recorded, the source/original position/name it maps to.
type ResolvedMapping struct {
	Generated   Position
	HasOriginal bool
	Source      string
	Original    Position
	HasName     bool
	Name        string
}

// VLQResult is the Source Map v3-shaped output of ToVLQ: the encoded
// mappings string alongside the sources, their contents, and names it
// references by position.
type VLQResult struct {
	Mappings       string
	Sources        []string
	SourcesContent []string
	Names          []string
}
