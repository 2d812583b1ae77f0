// Package batch provides the columnar batch model carried over the bus.
//
// A Batch is an immutable Arrow record: an ordered schema plus one value
// buffer per field, every buffer holding exactly NumRows elements. The
// producer side builds batches with Generate; the consumer side receives
// them from a codec's Decode. Neither side mutates a batch after it has
// been built, so a Batch may be read from any number of goroutines.
package batch

import (
	"fmt"
	"math/rand/v2"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

const (
	// RandField is the name of the single field carried by generated batches
	RandField = "rand"
	// ElementWidth is the byte width of one uint64 element
	ElementWidth = 8
)

// RandSchema returns the fixed schema of generated batches: a single
// non-nullable uint64 field named "rand".
func RandSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: RandField, Type: arrow.PrimitiveTypes.Uint64, Nullable: false},
	}, nil)
}

// Batch is an immutable columnar batch
type Batch struct {
	rec arrow.Record
}

// New validates schema and columns and assembles them into a Batch.
//
// Every column must match its field's type, all columns must have the same
// length, and non-nullable fields must not contain nulls. The returned Batch
// retains the columns; the caller keeps ownership of its own references.
func New(schema *arrow.Schema, columns []arrow.Array) (*Batch, error) {
	if schema == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "schema is required")
	}
	if len(columns) != schema.NumFields() {
		return nil, errors.New(errors.ErrorTypeValidation, "column count does not match schema").
			WithDetail("fields", schema.NumFields()).
			WithDetail("columns", len(columns))
	}

	rows := 0
	for i, col := range columns {
		field := schema.Field(i)
		if col == nil {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q is nil", field.Name)
		}
		if !arrow.TypeEqual(col.DataType(), field.Type) {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q has type %s, schema declares %s",
				field.Name, col.DataType(), field.Type)
		}
		if i == 0 {
			rows = col.Len()
		} else if col.Len() != rows {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q has %d rows, expected %d",
				field.Name, col.Len(), rows).
				WithDetail("field", field.Name)
		}
		if !field.Nullable && col.NullN() > 0 {
			return nil, errors.Newf(errors.ErrorTypeValidation, "non-nullable column %q contains %d nulls",
				field.Name, col.NullN())
		}
	}

	return &Batch{rec: array.NewRecord(schema, columns, int64(rows))}, nil
}

// FromRecord validates rec and wraps it in a Batch. The Batch takes its own
// reference on rec.
func FromRecord(rec arrow.Record) (*Batch, error) {
	if rec == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "record is nil")
	}
	return New(rec.Schema(), rec.Columns())
}

// Generate returns a batch of rows independently drawn random values under
// RandSchema.
func Generate(rows int) *Batch {
	return generate(rows, rand.Uint64)
}

// GenerateWithSource is Generate drawing from src, for reproducible batches.
func GenerateWithSource(rows int, src rand.Source) *Batch {
	r := rand.New(src)
	return generate(rows, r.Uint64)
}

func generate(rows int, next func() uint64) *Batch {
	if rows < 0 {
		rows = 0
	}

	values := make([]uint64, rows)
	for i := range values {
		values[i] = next()
	}

	col := Uint64Column(values)
	defer col.Release()

	b, err := New(RandSchema(), []arrow.Array{col})
	if err != nil {
		// RandSchema and a single uint64 column always validate
		panic(fmt.Sprintf("batch: generated batch failed validation: %v", err))
	}
	return b
}

// Uint64Column wraps values, without copying, as a non-null uint64 array.
// values must not be modified afterwards.
func Uint64Column(values []uint64) arrow.Array {
	return newUint64Array(arrow.Uint64Traits.CastToBytes(values), len(values))
}

// Uint64ColumnFromBytes wraps buf, without copying, as a non-null uint64
// array in native byte order. len(buf) must be a multiple of ElementWidth.
func Uint64ColumnFromBytes(buf []byte) (arrow.Array, error) {
	if len(buf)%ElementWidth != 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "buffer length %d is not a multiple of %d",
			len(buf), ElementWidth)
	}
	return newUint64Array(buf, len(buf)/ElementWidth), nil
}

func newUint64Array(buf []byte, rows int) arrow.Array {
	data := array.NewData(arrow.PrimitiveTypes.Uint64, rows,
		[]*memory.Buffer{nil, memory.NewBufferBytes(buf)}, nil, 0, 0)
	defer data.Release()
	return array.NewUint64Data(data)
}

// Schema returns the batch schema
func (b *Batch) Schema() *arrow.Schema {
	return b.rec.Schema()
}

// NumRows returns the number of rows shared by every column
func (b *Batch) NumRows() int {
	return int(b.rec.NumRows())
}

// NumCols returns the number of columns
func (b *Batch) NumCols() int {
	return int(b.rec.NumCols())
}

// Column returns column i
func (b *Batch) Column(i int) arrow.Array {
	return b.rec.Column(i)
}

// Record returns the underlying Arrow record. Callers must not release it
// unless they retained it first.
func (b *Batch) Record() arrow.Record {
	return b.rec
}

// Uint64Values returns the values of column i, which must be a uint64 column
func (b *Batch) Uint64Values(i int) ([]uint64, error) {
	if i < 0 || i >= b.NumCols() {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column index %d out of range", i)
	}
	col, ok := b.rec.Column(i).(*array.Uint64)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %q is %s, not uint64",
			b.rec.ColumnName(i), b.rec.Column(i).DataType())
	}
	return col.Uint64Values(), nil
}

// ValueBytes returns the raw element bytes of uint64 column i in native byte
// order, sliced to the column's offset and length. The slice aliases the
// column buffer and must not be modified.
func (b *Batch) ValueBytes(i int) ([]byte, error) {
	values, err := b.Uint64Values(i)
	if err != nil {
		return nil, err
	}
	return arrow.Uint64Traits.CastToBytes(values), nil
}

// Release drops the batch's reference on its record
func (b *Batch) Release() {
	if b != nil && b.rec != nil {
		b.rec.Release()
	}
}
