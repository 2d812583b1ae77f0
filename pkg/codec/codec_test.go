package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
	"github.com/ajitpratap0/arrowbus/pkg/testutil"
)

var roundTripSizes = []int{0, 1, 100, 1000, 1_000_000}

func seeded(rows int) *batch.Batch {
	return testutil.SeededBatch(rows, uint64(rows))
}

func rawCodec(t testing.TB, rows int) *RawCodec {
	t.Helper()
	c, err := NewRawCodec(Contract{Version: 1, Field: batch.RandField, RowCount: rows})
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	for _, rows := range roundTripSizes {
		for _, kind := range []Kind{KindIPC, KindRaw} {
			t.Run(fmt.Sprintf("%s/%d", kind, rows), func(t *testing.T) {
				if rows >= 1_000_000 && testing.Short() {
					t.Skip("large batch in short mode")
				}

				var c Codec = NewIPCCodec()
				if kind == KindRaw {
					c = rawCodec(t, rows)
				}

				in := seeded(rows)
				defer in.Release()

				payload, err := c.Encode(in)
				require.NoError(t, err)

				out, err := c.Decode(payload)
				require.NoError(t, err)
				defer out.Release()

				assert.True(t, batch.Equal(in, out))
				assert.Equal(t, rows, out.NumRows())
			})
		}
	}
}

func TestDecodeIsIdempotent(t *testing.T) {
	in := seeded(100)
	for _, c := range []Codec{NewIPCCodec(), rawCodec(t, 100)} {
		t.Run(c.Name().String(), func(t *testing.T) {
			payload, err := c.Encode(in)
			require.NoError(t, err)
			snapshot := bytes.Clone(payload)

			first, err := c.Decode(payload)
			require.NoError(t, err)
			second, err := c.Decode(payload)
			require.NoError(t, err)

			assert.True(t, batch.Equal(first, second))
			assert.True(t, batch.Equal(in, second))
			assert.Equal(t, snapshot, payload, "decode must not modify the payload")
		})
	}
}

func TestEncodeDoesNotModifyBatch(t *testing.T) {
	in := seeded(100)
	before, err := in.Uint64Values(0)
	require.NoError(t, err)
	snapshot := append([]uint64(nil), before...)

	for _, c := range []Codec{NewIPCCodec(), rawCodec(t, 100)} {
		_, err := c.Encode(in)
		require.NoError(t, err)
	}

	after, err := in.Uint64Values(0)
	require.NoError(t, err)
	assert.Equal(t, snapshot, after)
}

func TestRawPayloadSize(t *testing.T) {
	c, err := NewRawCodec(DefaultContract())
	require.NoError(t, err)

	in := batch.Generate(100)
	payload, err := c.Encode(in)
	require.NoError(t, err)
	assert.Len(t, payload, 800)

	out, err := c.Decode(payload)
	require.NoError(t, err)
	assert.True(t, batch.Equal(in, out))
	assert.Equal(t, batch.RandField, out.Schema().Field(0).Name)
	assert.False(t, out.Schema().Field(0).Nullable)
}

func TestRawPayloadHoldsNativeElements(t *testing.T) {
	in := seeded(4)
	payload, err := rawCodec(t, 4).Encode(in)
	require.NoError(t, err)

	values, err := in.Uint64Values(0)
	require.NoError(t, err)
	for i, v := range values {
		assert.Equal(t, v, binary.NativeEndian.Uint64(payload[i*8:]))
	}
}

func TestRawDecodeLengthMismatch(t *testing.T) {
	c := rawCodec(t, 100)

	cases := []struct {
		name     string
		size     int
		trailing bool
	}{
		{"empty", 0, false},
		{"one byte short", 799, true},
		{"one byte over", 801, true},
		{"one element short", 792, false},
		{"one element over", 808, false},
		{"half element", 4, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := c.Decode(make([]byte, tc.size))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, IsLengthMismatch(err))
			assert.False(t, IsFormatError(err))

			var e *errors.Error
			require.True(t, errors.As(err, &e))
			expected, _ := e.Detail("expected_bytes")
			actual, _ := e.Detail("actual_bytes")
			assert.Equal(t, 800, expected)
			assert.Equal(t, tc.size, actual)

			_, hasTrailing := e.Detail("trailing_bytes")
			assert.Equal(t, tc.trailing, hasTrailing)
		})
	}
}

func TestRawDecodeZeroRowContract(t *testing.T) {
	c := rawCodec(t, 0)

	out, err := c.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.NumRows())

	_, err = c.Decode(make([]byte, 8))
	assert.True(t, IsLengthMismatch(err))
}

func TestRawDecodeUnalignedPayload(t *testing.T) {
	in := seeded(16)
	c := rawCodec(t, 16)
	payload, err := c.Encode(in)
	require.NoError(t, err)

	backing := make([]byte, len(payload)+1)
	shifted := backing[1:]
	copy(shifted, payload)

	out, err := c.Decode(shifted)
	require.NoError(t, err)
	assert.True(t, batch.Equal(in, out))
}

func TestRawEncodeRejectsContractViolations(t *testing.T) {
	c := rawCodec(t, 100)

	t.Run("row count", func(t *testing.T) {
		_, err := c.Encode(seeded(99))
		assert.True(t, IsLengthMismatch(err))
	})

	t.Run("schema", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{{Name: "other", Type: arrow.PrimitiveTypes.Uint64}}, nil)
		col := batch.Uint64Column(make([]uint64, 100))
		defer col.Release()
		b, err := batch.New(schema, []arrow.Array{col})
		require.NoError(t, err)

		_, err = c.Encode(b)
		assert.True(t, errors.IsType(err, errors.ErrorTypeContract))
	})

	t.Run("nil batch", func(t *testing.T) {
		_, err := c.Encode(nil)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestIPCIsLargerThanRaw(t *testing.T) {
	for _, rows := range []int{0, 1, 100, 1000} {
		in := seeded(rows)
		ipcPayload, err := NewIPCCodec().Encode(in)
		require.NoError(t, err)
		rawPayload, err := rawCodec(t, rows).Encode(in)
		require.NoError(t, err)

		assert.Len(t, rawPayload, rows*batch.ElementWidth)
		assert.Greater(t, len(ipcPayload), len(rawPayload))
	}
}

func TestIPCDecodeCorruptedFirstByte(t *testing.T) {
	payload, err := NewIPCCodec().Encode(seeded(100))
	require.NoError(t, err)

	payload[0] ^= 0xFF
	out, err := NewIPCCodec().Decode(payload)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, IsFormatError(err))
}

func TestIPCDecodeTruncated(t *testing.T) {
	c := NewIPCCodec()
	payload, err := c.Encode(seeded(100))
	require.NoError(t, err)

	const eosSize = 8
	for n := 0; n < len(payload); n++ {
		out, err := c.Decode(payload[:n])
		if n >= len(payload)-eosSize {
			require.NoError(t, err, "stream with a missing or partial end-of-stream marker")
			assert.Equal(t, 100, out.NumRows())
			continue
		}
		require.Error(t, err, "prefix of %d bytes", n)
		assert.Nil(t, out)
	}

	_, err = c.Decode(payload[:len(payload)/2])
	assert.True(t, IsFormatError(err))
}

func TestIPCDecodeOversizedDeclaredLength(t *testing.T) {
	c := NewIPCCodec()
	payload, err := c.Encode(seeded(10))
	require.NoError(t, err)

	binary.LittleEndian.PutUint32(payload[4:], 0x7FFFFFF0)
	_, err = c.Decode(payload)
	assert.True(t, IsFormatError(err))

	binary.LittleEndian.PutUint32(payload[4:], 0xFFFFFFF0)
	_, err = c.Decode(payload)
	assert.True(t, IsFormatError(err))
}

func TestIPCDecodeRejectsForeignBytes(t *testing.T) {
	c := NewIPCCodec()
	raw, err := rawCodec(t, 100).Encode(seeded(100))
	require.NoError(t, err)

	for name, payload := range map[string][]byte{
		"empty":       {},
		"raw payload": raw,
		"text":        []byte("definitely not arrow"),
		"eos only":    {0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(payload)
			assert.True(t, IsFormatError(err), "%v", err)
		})
	}
}

func TestIPCDecodeEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(batch.RandSchema()))
	require.NoError(t, w.Close())

	_, err := NewIPCCodec().Decode(buf.Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyStream))
	assert.False(t, IsFormatError(err))
}

func TestIPCDecodeReadsFirstBatchOnly(t *testing.T) {
	first, second := seeded(10), seeded(20)

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(batch.RandSchema()))
	require.NoError(t, w.Write(first.Record()))
	require.NoError(t, w.Write(second.Record()))
	require.NoError(t, w.Close())

	out, err := NewIPCCodec().Decode(buf.Bytes())
	require.NoError(t, err)
	assert.True(t, batch.Equal(first, out))
}

func TestIPCDecodeIgnoresDamageAfterFirstBatch(t *testing.T) {
	first, second := seeded(10), seeded(20)

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(batch.RandSchema()))
	require.NoError(t, w.Write(first.Record()))
	firstEnd := buf.Len()
	require.NoError(t, w.Write(second.Record()))
	require.NoError(t, w.Close())
	stream := buf.Bytes()

	cases := map[string][]byte{
		"truncated second batch": stream[:firstEnd+40],
		"trailing garbage":       append(bytes.Clone(stream[:firstEnd]), 0xde, 0xad, 0xbe, 0xef),
		"garbage after eos":      append(bytes.Clone(stream), 0xde, 0xad, 0xbe, 0xef),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := NewIPCCodec().Decode(payload)
			require.NoError(t, err)
			assert.True(t, batch.Equal(first, out))
		})
	}
}

// decodeCorrupted decodes payload and checks the outcome is either a format
// error, an empty stream, or a batch whose values can be read.
func decodeCorrupted(t testing.TB, c *IPCCodec, payload []byte) {
	t.Helper()
	out, err := c.Decode(payload)
	if err != nil {
		assert.Nil(t, out)
		assert.True(t, IsFormatError(err) || errors.Is(err, ErrEmptyStream), "%v", err)
		return
	}
	defer out.Release()
	assert.GreaterOrEqual(t, out.NumRows(), 0)
	if batch.SchemaEqual(out.Schema(), batch.RandSchema()) {
		values, err := out.Uint64Values(0)
		require.NoError(t, err)
		assert.Len(t, values, out.NumRows())
	}
}

func TestIPCDecodeSurvivesByteFlips(t *testing.T) {
	c := NewIPCCodec()
	payload, err := c.Encode(seeded(100))
	require.NoError(t, err)

	for i := range payload {
		for _, mask := range []byte{0x01, 0x80, 0xFF} {
			corrupted := bytes.Clone(payload)
			corrupted[i] ^= mask
			decodeCorrupted(t, c, corrupted)
		}
	}
}

func FuzzIPCDecode(f *testing.F) {
	c := NewIPCCodec()
	for _, rows := range []int{0, 1, 100} {
		payload, err := c.Encode(seeded(rows))
		require.NoError(f, err)
		f.Add(payload)
	}
	f.Add(framed(oddVtableMessage))
	f.Add(framed(schemaMessage(0x0FFFFFFF)))

	f.Fuzz(func(t *testing.T, payload []byte) {
		decodeCorrupted(t, c, payload)
	})
}

func TestIPCDecodeReleasesMemory(t *testing.T) {
	c := NewIPCCodec(WithAllocator(testutil.CheckedAllocator(t)))
	in := seeded(1000)
	payload, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(payload)
	require.NoError(t, err)
	assert.True(t, batch.Equal(in, out))
	out.Release()
}

func TestNew(t *testing.T) {
	c, err := New(KindIPC, Contract{})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeIPC, c.ContentType())

	c, err = New(KindRaw, DefaultContract())
	require.NoError(t, err)
	assert.Equal(t, ContentTypeRaw, c.ContentType())

	_, err = New(KindRaw, Contract{Field: "rand", RowCount: 1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeContract))

	_, err = New("protobuf", DefaultContract())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("raw")
	require.NoError(t, err)
	assert.Equal(t, KindRaw, k)

	_, err = ParseKind("RAW")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	ipcCodec, raw := NewIPCCodec(), rawCodec(t, 100)
	r := NewRegistry(ipcCodec, raw)

	got, ok := r.Lookup(ContentTypeRaw)
	require.True(t, ok)
	assert.Same(t, raw, got)

	_, ok = r.Lookup("application/json")
	assert.False(t, ok)

	assert.Equal(t, []string{ContentTypeIPC, ContentTypeRaw}, r.ContentTypes())
}

func TestContractFingerprint(t *testing.T) {
	base := DefaultContract()
	assert.Equal(t, base.Fingerprint(), DefaultContract().Fingerprint())

	for name, other := range map[string]Contract{
		"version": {Version: 2, Field: base.Field, RowCount: base.RowCount},
		"field":   {Version: base.Version, Field: "other", RowCount: base.RowCount},
		"rows":    {Version: base.Version, Field: base.Field, RowCount: 101},
	} {
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint(), name)
	}

	fp, err := ParseFingerprint(base.FingerprintHex())
	require.NoError(t, err)
	assert.Equal(t, base.Fingerprint(), fp)

	_, err = ParseFingerprint("zz")
	assert.True(t, errors.IsType(err, errors.ErrorTypeContract))
}

func TestContractValidate(t *testing.T) {
	assert.NoError(t, DefaultContract().Validate())
	assert.Error(t, Contract{Field: "rand"}.Validate())
	assert.Error(t, Contract{Version: 1}.Validate())
	assert.Error(t, Contract{Version: 1, Field: "rand", RowCount: -1}.Validate())
	assert.Equal(t, 800, DefaultContract().PayloadSize())
}
