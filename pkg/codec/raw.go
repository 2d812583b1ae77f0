package codec

import (
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

// RawCodec transmits only the element bytes of the contract's uint64 field,
// in native byte order. A payload for a contract of n rows is exactly n*8
// bytes; anything else is rejected with a length mismatch error.
type RawCodec struct {
	contract Contract
	schema   *arrow.Schema
}

// NewRawCodec creates a raw codec bound to contract
func NewRawCodec(contract Contract) (*RawCodec, error) {
	if err := contract.Validate(); err != nil {
		return nil, err
	}
	return &RawCodec{contract: contract, schema: contract.Schema()}, nil
}

// Name implements Codec
func (c *RawCodec) Name() Kind { return KindRaw }

// ContentType implements Codec
func (c *RawCodec) ContentType() string { return ContentTypeRaw }

// Contract returns the contract the codec is bound to
func (c *RawCodec) Contract() Contract { return c.contract }

// Encode copies the element bytes of b's single column. b must carry the
// contract schema and exactly RowCount rows.
func (c *RawCodec) Encode(b *batch.Batch) ([]byte, error) {
	if b == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "cannot encode nil batch")
	}
	if !batch.SchemaEqual(b.Schema(), c.schema) {
		return nil, errors.New(errors.ErrorTypeContract, "batch schema does not match contract").
			WithDetail("schema", b.Schema().String()).
			WithDetail("contract", c.contract.String())
	}
	if b.NumRows() != c.contract.RowCount {
		return nil, c.mismatch("batch row count does not match contract", b.NumRows()*batch.ElementWidth).
			WithDetail("batch_rows", b.NumRows())
	}

	values, err := b.ValueBytes(0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read column bytes")
	}

	out := make([]byte, len(values))
	copy(out, values)
	return out, nil
}

// Decode wraps payload as a batch under the contract schema. The returned
// batch aliases payload, which the caller must not modify afterwards. If
// payload is not 8-byte aligned it is copied into an aligned buffer first.
func (c *RawCodec) Decode(payload []byte) (*batch.Batch, error) {
	if len(payload) != c.contract.PayloadSize() {
		err := c.mismatch("payload length does not match contract", len(payload))
		if len(payload)%batch.ElementWidth != 0 {
			err = err.WithDetail("trailing_bytes", len(payload)%batch.ElementWidth)
		}
		return nil, err
	}

	buf := payload
	if !aligned(buf) {
		values := make([]uint64, c.contract.RowCount)
		copy(arrow.Uint64Traits.CastToBytes(values), payload)
		buf = arrow.Uint64Traits.CastToBytes(values)
	}

	col, err := batch.Uint64ColumnFromBytes(buf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLengthMismatch, "payload is not whole elements")
	}
	defer col.Release()

	return batch.New(c.schema, []arrow.Array{col})
}

func (c *RawCodec) mismatch(msg string, actual int) *errors.Error {
	return errors.New(errors.ErrorTypeLengthMismatch, msg).
		WithDetail("expected_bytes", c.contract.PayloadSize()).
		WithDetail("actual_bytes", actual).
		WithDetail("row_count", c.contract.RowCount).
		WithDetail("contract_version", c.contract.Version)
}

func aligned(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))%batch.ElementWidth == 0
}
