package codec

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

// Table slots of the Arrow metadata flatbuffers (Message.fbs, Schema.fbs).
const (
	messageSlotHeaderType     = 1
	messageSlotHeader         = 2
	messageSlotBodyLength     = 3
	messageSlotCustomMetadata = 4

	schemaSlotFields         = 1
	schemaSlotCustomMetadata = 2
	schemaSlotFeatures       = 3

	fieldSlotName           = 0
	fieldSlotTypeType       = 2
	fieldSlotType           = 3
	fieldSlotDictionary     = 4
	fieldSlotChildren       = 5
	fieldSlotCustomMetadata = 6

	keyValueSlotKey   = 0
	keyValueSlotValue = 1

	dictionaryEncodingSlotIndexType = 1

	recordBatchSlotLength        = 0
	recordBatchSlotNodes         = 1
	recordBatchSlotBuffers       = 2
	recordBatchSlotCompression   = 3
	recordBatchSlotVariadicCount = 4

	dictionaryBatchSlotData = 1

	timestampSlotTimezone = 1
	unionSlotTypeIDs      = 1
)

// Inline struct sizes of RecordBatch vectors, and walk limits.
const (
	fieldNodeSize  = 16
	bufferSize     = 16
	maxFieldDepth  = 64
	typeUnionLimit = 26 // LargeListView
)

// Type union tags that always carry a values buffer of at least one bit per row.
var fixedWidthTypes = map[uint8]bool{
	2: true, 3: true, 6: true, 7: true, 8: true, // Int FloatingPoint Bool Decimal Date
	9: true, 10: true, 11: true, 15: true, 18: true, // Time Timestamp Interval FixedSizeBinary Duration
}

const (
	typeTimestamp = 10
	typeUnion     = 14
)

// tableReader follows offsets inside one metadata flatbuffer using the same
// arithmetic as the generated Arrow accessors, so a table that passes here
// reads the same bytes when the Arrow reader decodes it. Every table visit is
// charged against a budget proportional to the buffer size, which bounds the
// walk even when corrupted offsets alias or form cycles.
type tableReader struct {
	buf    []byte
	budget int
}

func newTableReader(buf []byte) *tableReader {
	return &tableReader{buf: buf, budget: len(buf)/4 + 1}
}

func (r *tableReader) fits(pos flatbuffers.UOffsetT, size int) bool {
	return int64(pos)+int64(size) <= int64(len(r.buf))
}

func (r *tableReader) root() (flatbuffers.Table, error) {
	if len(r.buf) < flatbuffers.SizeUOffsetT {
		return flatbuffers.Table{}, errors.New(errors.ErrorTypeFormat, "metadata shorter than root offset")
	}
	return r.table(flatbuffers.GetUOffsetT(r.buf))
}

// table validates the table header and vtable found at pos.
func (r *tableReader) table(pos flatbuffers.UOffsetT) (flatbuffers.Table, error) {
	t := flatbuffers.Table{Bytes: r.buf, Pos: pos}
	if r.budget--; r.budget < 0 {
		return t, errors.New(errors.ErrorTypeFormat, "metadata references more tables than it can hold")
	}
	if !r.fits(pos, flatbuffers.SizeSOffsetT) {
		return t, errors.New(errors.ErrorTypeFormat, "table offset out of range").
			WithDetail("table", pos)
	}
	vtable := flatbuffers.UOffsetT(flatbuffers.SOffsetT(t.Pos) - t.GetSOffsetT(t.Pos))
	if !r.fits(vtable, 2*flatbuffers.SizeVOffsetT) {
		return t, errors.New(errors.ErrorTypeFormat, "vtable offset out of range").
			WithDetail("vtable", vtable)
	}
	if n := t.GetVOffsetT(vtable); n < 2*flatbuffers.SizeVOffsetT || !r.fits(vtable, int(n)) {
		return t, errors.New(errors.ErrorTypeFormat, "vtable length out of range").
			WithDetail("vtable_length", n)
	}
	return t, nil
}

// field returns the absolute position of a slot's value, or 0 when the slot
// is absent. A slot is present whenever its vtable entry starts inside the
// declared vtable length, which is how flatbuffers.Table.Offset decides.
func (r *tableReader) field(t flatbuffers.Table, slot, size int) (flatbuffers.UOffsetT, error) {
	entry := flatbuffers.VOffsetT(4 + 2*slot)
	vtable := flatbuffers.UOffsetT(flatbuffers.SOffsetT(t.Pos) - t.GetSOffsetT(t.Pos))
	if entry >= t.GetVOffsetT(vtable) {
		return 0, nil
	}
	if !r.fits(vtable+flatbuffers.UOffsetT(entry), flatbuffers.SizeVOffsetT) {
		return 0, errors.New(errors.ErrorTypeFormat, "vtable entry out of range").WithDetail("slot", slot)
	}
	off := t.Offset(entry)
	if off == 0 {
		return 0, nil
	}
	pos := t.Pos + flatbuffers.UOffsetT(off)
	if !r.fits(pos, size) {
		return 0, errors.New(errors.ErrorTypeFormat, "field out of range").WithDetail("slot", slot)
	}
	return pos, nil
}

func (r *tableReader) uint8Field(t flatbuffers.Table, slot int) (uint8, error) {
	pos, err := r.field(t, slot, 1)
	if err != nil || pos == 0 {
		return 0, err
	}
	return t.GetUint8(pos), nil
}

func (r *tableReader) int64Field(t flatbuffers.Table, slot int) (int64, error) {
	pos, err := r.field(t, slot, 8)
	if err != nil || pos == 0 {
		return 0, err
	}
	return t.GetInt64(pos), nil
}

// child follows a table-valued slot (a plain table or a union member).
func (r *tableReader) child(t flatbuffers.Table, slot int) (flatbuffers.Table, bool, error) {
	pos, err := r.field(t, slot, flatbuffers.SizeUOffsetT)
	if err != nil || pos == 0 {
		return flatbuffers.Table{}, false, err
	}
	c, err := r.table(t.Indirect(pos))
	return c, err == nil, err
}

// vector follows a vector-valued slot and checks that n elements of elemSize
// bytes fit in the buffer. It returns the position of the first element.
func (r *tableReader) vector(t flatbuffers.Table, slot, elemSize int) (flatbuffers.UOffsetT, int, error) {
	pos, err := r.field(t, slot, flatbuffers.SizeUOffsetT)
	if err != nil || pos == 0 {
		return 0, 0, err
	}
	header := t.Indirect(pos)
	if !r.fits(header, flatbuffers.SizeUOffsetT) {
		return 0, 0, errors.New(errors.ErrorTypeFormat, "vector offset out of range").WithDetail("slot", slot)
	}
	n := int64(t.GetUOffsetT(header))
	start := header + flatbuffers.SizeUOffsetT
	if int64(start)+n*int64(elemSize) > int64(len(r.buf)) {
		return 0, 0, errors.New(errors.ErrorTypeFormat, "vector length exceeds metadata").
			WithDetail("slot", slot).
			WithDetail("length", n)
	}
	return start, int(n), nil
}

// tables walks a vector of tables, calling fn for each element.
func (r *tableReader) tables(t flatbuffers.Table, slot int, fn func(flatbuffers.Table) error) error {
	start, n, err := r.vector(t, slot, flatbuffers.SizeUOffsetT)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		c, err := r.table(t.Indirect(start + flatbuffers.UOffsetT(i*flatbuffers.SizeUOffsetT)))
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *tableReader) keyValues(t flatbuffers.Table, slot int) error {
	return r.tables(t, slot, func(kv flatbuffers.Table) error {
		if _, _, err := r.vector(kv, keyValueSlotKey, 1); err != nil {
			return err
		}
		_, _, err := r.vector(kv, keyValueSlotValue, 1)
		return err
	})
}

// message is a parsed Message table.
type message struct {
	header    messageHeader
	bodyLen   int64
	table     flatbuffers.Table
	hasHeader bool
	r         *tableReader
}

// parseMessage reads header_type, header and bodyLength from a flatbuffer
// Message table, bounds-checking every offset it follows.
func parseMessage(meta []byte) (message, error) {
	r := newTableReader(meta)
	msg := message{r: r}

	root, err := r.root()
	if err != nil {
		return msg, err
	}
	kind, err := r.uint8Field(root, messageSlotHeaderType)
	if err != nil {
		return msg, err
	}
	msg.header = messageHeader(kind)
	if msg.bodyLen, err = r.int64Field(root, messageSlotBodyLength); err != nil {
		return msg, err
	}
	if msg.table, msg.hasHeader, err = r.child(root, messageSlotHeader); err != nil {
		return msg, err
	}
	if err := r.keyValues(root, messageSlotCustomMetadata); err != nil {
		return msg, err
	}
	return msg, nil
}

func (m message) headerTable() (flatbuffers.Table, error) {
	if !m.hasHeader {
		return m.table, errors.New(errors.ErrorTypeFormat, "message has no header table")
	}
	return m.table, nil
}

// schemaShape is what later record batches are checked against.
type schemaShape struct {
	// fixedWidth is set when some top-level column stores at least one bit
	// per row in the body.
	fixedWidth bool
}

func (m message) checkSchema() (schemaShape, error) {
	var shape schemaShape
	t, err := m.headerTable()
	if err != nil {
		return shape, err
	}
	err = m.r.tables(t, schemaSlotFields, func(f flatbuffers.Table) error {
		fixed, err := m.checkField(f, 0)
		shape.fixedWidth = shape.fixedWidth || fixed
		return err
	})
	if err != nil {
		return shape, err
	}
	if err := m.r.keyValues(t, schemaSlotCustomMetadata); err != nil {
		return shape, err
	}
	_, _, err = m.r.vector(t, schemaSlotFeatures, 8)
	return shape, err
}

// checkField validates a Field table and its children. It reports whether
// the field's column stores fixed-width values.
func (m message) checkField(f flatbuffers.Table, depth int) (bool, error) {
	if depth > maxFieldDepth {
		return false, errors.New(errors.ErrorTypeFormat, "field nesting too deep").WithDetail("depth", depth)
	}
	r := m.r
	if _, _, err := r.vector(f, fieldSlotName, 1); err != nil {
		return false, err
	}

	kind, err := r.uint8Field(f, fieldSlotTypeType)
	if err != nil {
		return false, err
	}
	if kind > typeUnionLimit {
		return false, errors.Newf(errors.ErrorTypeFormat, "unknown field type %d", kind)
	}
	if typ, ok, err := r.child(f, fieldSlotType); err != nil {
		return false, err
	} else if ok {
		switch kind {
		case typeTimestamp:
			_, _, err = r.vector(typ, timestampSlotTimezone, 1)
		case typeUnion:
			_, _, err = r.vector(typ, unionSlotTypeIDs, 4)
		}
		if err != nil {
			return false, err
		}
	}

	fixed := fixedWidthTypes[kind]
	if dict, ok, err := r.child(f, fieldSlotDictionary); err != nil {
		return false, err
	} else if ok {
		if _, _, err := r.child(dict, dictionaryEncodingSlotIndexType); err != nil {
			return false, err
		}
		fixed = true
	}

	err = r.tables(f, fieldSlotChildren, func(c flatbuffers.Table) error {
		_, err := m.checkField(c, depth+1)
		return err
	})
	if err != nil {
		return false, err
	}
	return fixed, r.keyValues(f, fieldSlotCustomMetadata)
}

func (m message) checkDictionaryBatch() error {
	t, err := m.headerTable()
	if err != nil {
		return err
	}
	data, ok, err := m.r.child(t, dictionaryBatchSlotData)
	if err != nil || !ok {
		return err
	}
	return m.checkBatchTable(data, false)
}

func (m message) checkRecordBatch(fixedWidth bool) error {
	t, err := m.headerTable()
	if err != nil {
		return err
	}
	return m.checkBatchTable(t, fixedWidth)
}

// checkBatchTable validates a RecordBatch table against the message body:
// row counts, node counts, buffer extents and variadic buffer counts.
func (m message) checkBatchTable(t flatbuffers.Table, fixedWidth bool) error {
	r := m.r

	length, err := r.int64Field(t, recordBatchSlotLength)
	if err != nil {
		return err
	}
	if length < 0 || (fixedWidth && length/8 > m.bodyLen) {
		return errors.New(errors.ErrorTypeFormat, "record batch length exceeds body").
			WithDetail("rows", length).
			WithDetail("body_bytes", m.bodyLen)
	}

	start, n, err := r.vector(t, recordBatchSlotNodes, fieldNodeSize)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		node := start + flatbuffers.UOffsetT(i*fieldNodeSize)
		rows, nulls := t.GetInt64(node), t.GetInt64(node+8)
		if rows < 0 || nulls < 0 || nulls > rows {
			return errors.New(errors.ErrorTypeFormat, "invalid field node").
				WithDetail("node", i).
				WithDetail("rows", rows).
				WithDetail("nulls", nulls)
		}
	}

	start, buffers, err := r.vector(t, recordBatchSlotBuffers, bufferSize)
	if err != nil {
		return err
	}
	for i := 0; i < buffers; i++ {
		buf := start + flatbuffers.UOffsetT(i*bufferSize)
		off, size := t.GetInt64(buf), t.GetInt64(buf+8)
		if off < 0 || size < 0 || off > m.bodyLen || size > m.bodyLen-off {
			return errors.New(errors.ErrorTypeFormat, "buffer exceeds body").
				WithDetail("buffer", i).
				WithDetail("buffer_offset", off).
				WithDetail("buffer_length", size).
				WithDetail("body_bytes", m.bodyLen)
		}
	}

	if pos, err := r.field(t, recordBatchSlotCompression, flatbuffers.SizeUOffsetT); err != nil {
		return err
	} else if pos != 0 {
		return errors.New(errors.ErrorTypeFormat, "compressed record batches are not supported")
	}

	start, n, err = r.vector(t, recordBatchSlotVariadicCount, 8)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if c := t.GetInt64(start + flatbuffers.UOffsetT(i*8)); c < 0 || c > int64(buffers) {
			return errors.New(errors.ErrorTypeFormat, "variadic buffer count exceeds buffers").
				WithDetail("count", c)
		}
	}
	return nil
}
