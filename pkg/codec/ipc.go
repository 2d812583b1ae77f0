package codec

import (
	"bytes"
	stderrors "errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

// ErrEmptyStream is returned by IPCCodec.Decode for a well-formed stream that
// carries a schema but no record batch.
var ErrEmptyStream = stderrors.New("codec: stream carries no record batch")

// IPCOption configures an IPCCodec
type IPCOption func(*IPCCodec)

// WithAllocator sets the allocator used for decoded buffers
func WithAllocator(mem memory.Allocator) IPCOption {
	return func(c *IPCCodec) {
		if mem != nil {
			c.mem = mem
		}
	}
}

// IPCCodec encodes batches in the Arrow IPC stream format
type IPCCodec struct {
	mem memory.Allocator
}

// NewIPCCodec creates an IPC stream codec
func NewIPCCodec(opts ...IPCOption) *IPCCodec {
	c := &IPCCodec{mem: memory.DefaultAllocator}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Codec
func (c *IPCCodec) Name() Kind { return KindIPC }

// ContentType implements Codec
func (c *IPCCodec) ContentType() string { return ContentTypeIPC }

// Encode writes b as a schema message, one record batch message and the
// end-of-stream marker.
func (c *IPCCodec) Encode(b *batch.Batch) ([]byte, error) {
	if b == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "cannot encode nil batch")
	}

	var buf bytes.Buffer
	buf.Grow(ipcSizeHint(b))

	w := ipc.NewWriter(&buf, ipc.WithSchema(b.Schema()), ipc.WithAllocator(c.mem))
	if err := w.Write(b.Record()); err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to write record batch")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to close ipc stream")
	}

	return buf.Bytes(), nil
}

// Decode reads the schema and the first record batch of an IPC stream.
// Any further batches are ignored, even when malformed. Every declared length
// and metadata offset up to the first batch is checked against the payload
// before the Arrow reader sees it, and a malformed stream yields a format
// error rather than a partial batch.
func (c *IPCCodec) Decode(payload []byte) (b *batch.Batch, err error) {
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = errors.New(errors.ErrorTypeFormat, fmt.Sprintf("malformed ipc stream: %v", r))
		}
	}()

	frames, err := scanFrames(payload)
	if err != nil {
		return nil, err
	}

	// The reader only sees the frames that were checked.
	if last := frames[len(frames)-1]; last.header == headerRecordBatch {
		payload = payload[:last.end()]
	}

	rdr, err := ipc.NewReader(bytes.NewReader(payload), ipc.WithAllocator(c.mem))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read schema message")
	}
	defer rdr.Release()

	if !rdr.Next() {
		if rerr := rdr.Err(); rerr != nil {
			return nil, errors.Wrap(rerr, errors.ErrorTypeFormat, "failed to read record batch")
		}
		return nil, errors.Wrap(ErrEmptyStream, errors.ErrorTypeData, "no record batch in stream").
			WithDetail("messages", len(frames))
	}

	b, err = batch.FromRecord(rdr.Record())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "record batch violates its schema")
	}
	return b, nil
}

// ipcSizeHint estimates the encoded size: element bytes plus a fixed
// allowance for the schema message, batch metadata and stream markers.
func ipcSizeHint(b *batch.Batch) int {
	const framingAllowance = 512
	return b.NumRows()*b.NumCols()*batch.ElementWidth + framingAllowance
}
