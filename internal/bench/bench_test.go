package bench

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowbus/pkg/codec"
)

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("runs testing.Benchmark")
	}

	for _, kind := range []codec.Kind{codec.KindIPC, codec.KindRaw} {
		t.Run(kind.String(), func(t *testing.T) {
			r, err := Run(kind, OpDecode, 100)
			require.NoError(t, err)
			assert.Equal(t, kind.String(), r.Codec)
			assert.Equal(t, OpDecode, r.Op)
			assert.Equal(t, 100, r.Rows)
			assert.Positive(t, r.Iterations)
			assert.Positive(t, r.MBPerSec)
			if kind == codec.KindRaw {
				assert.Equal(t, 800, r.PayloadBytes)
			} else {
				assert.Greater(t, r.PayloadBytes, 800)
			}
		})
	}
}

func TestRunUnknown(t *testing.T) {
	_, err := Run(codec.KindRaw, "compress", 1)
	assert.Error(t, err)

	_, err = Run("avro", OpEncode, 1)
	assert.Error(t, err)
}

func TestPayloadOverhead(t *testing.T) {
	out, err := PayloadOverhead([]int{0, 100, 1000})
	require.NoError(t, err)
	require.Len(t, out, 3)

	for _, o := range out {
		assert.Equal(t, o.ValueBytes, o.RawBytes, "raw carries values only")
		assert.Positive(t, o.IPCOverhead)
	}
	// metadata does not grow with the row count
	assert.InDelta(t, out[1].IPCOverhead, out[2].IPCOverhead, 16)
}

func TestParseSizes(t *testing.T) {
	sizes, err := ParseSizes("1, 100,1_000")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 100, 1000}, sizes)

	for _, bad := range []string{"", "x", "-1", " , "} {
		_, err := ParseSizes(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds("all")
	require.NoError(t, err)
	assert.Equal(t, []codec.Kind{codec.KindIPC, codec.KindRaw}, kinds)

	kinds, err = ParseKinds("raw")
	require.NoError(t, err)
	assert.Equal(t, []codec.Kind{codec.KindRaw}, kinds)

	_, err = ParseKinds("protobuf")
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	results := []Result{{Codec: "raw", Op: OpEncode, Rows: 100, PayloadBytes: 800, NsPerOp: 120, MBPerSec: 6666.7}}
	overhead, err := PayloadOverhead([]int{100})
	require.NoError(t, err)
	r := NewReport(results, overhead)

	var table bytes.Buffer
	require.NoError(t, r.WriteTable(&table))
	assert.Contains(t, table.String(), "ns/op")
	assert.Contains(t, table.String(), "ipc overhead")
	assert.True(t, strings.Contains(table.String(), "800"))

	path := filepath.Join(t.TempDir(), "bench.json")
	require.NoError(t, r.Save(path))

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))
	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, results, decoded.Results)
	assert.Equal(t, overhead, decoded.Overhead)
}
