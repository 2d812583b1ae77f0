package batch

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Equal reports whether a and b have the same schema (field names, types and
// nullability, in order) and the same element values in every column.
//
// Buffer identity, offsets, padding and schema metadata are ignored, so a
// batch compares equal to its decoded copy whichever codec produced it.
func Equal(a, b *Batch) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !SchemaEqual(a.Schema(), b.Schema()) {
		return false
	}
	if a.NumRows() != b.NumRows() {
		return false
	}
	for i := 0; i < a.NumCols(); i++ {
		if !array.Equal(a.Column(i), b.Column(i)) {
			return false
		}
	}
	return true
}

// SchemaEqual compares field names, types and nullability in order
func SchemaEqual(a, b *arrow.Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.NumFields() != b.NumFields() {
		return false
	}
	for i := 0; i < a.NumFields(); i++ {
		fa, fb := a.Field(i), b.Field(i)
		if fa.Name != fb.Name || fa.Nullable != fb.Nullable || !arrow.TypeEqual(fa.Type, fb.Type) {
			return false
		}
	}
	return true
}
