package errors

import "kestrel/pkg/source"

// Position represents a specific location in a source unit.
// Line and column are 1-based for human-readable diagnostics; the byte
// offsets are 0-based and exist for tooling.
type Position struct {
	Line     int          // 1-based line number
	Column   int          // 1-based column number (rune index within the line)
	StartPos int          // 0-based byte offset of the start of the span
	EndPos   int          // 0-based byte offset of the end of the span (exclusive)
	Unit     *source.Unit // Reference to the source unit
}
