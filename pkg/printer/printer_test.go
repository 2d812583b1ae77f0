package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
)

func fixed(t *testing.T, values ...uint64) *batch.Batch {
	t.Helper()
	col := batch.Uint64Column(values)
	defer col.Release()
	b, err := batch.New(batch.RandSchema(), []arrow.Array{col})
	require.NoError(t, err)
	return b
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, Options{}, fixed(t, 1, 18446744073709551615)))

	want := strings.Join([]string{
		"+----------------------+",
		"| rand                 |",
		"+----------------------+",
		"| 1                    |",
		"| 18446744073709551615 |",
		"+----------------------+",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestTableSpansBatchesAndTruncates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, Options{MaxRows: 2}, fixed(t, 1, 2, 3), fixed(t, 4)))

	out := buf.String()
	assert.Contains(t, out, "| 4    |")
	assert.NotContains(t, out, "| 3    |")
	assert.True(t, strings.HasSuffix(out, "... 1 more rows\n"))
}

func TestTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, Options{}))
	assert.Empty(t, buf.String())

	require.NoError(t, Table(&buf, Options{}, fixed(t)))
	assert.Equal(t, "+------+\n| rand |\n+------+\n+------+\n", buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, Options{}, fixed(t, 7, 1<<63)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"rand":7}`, lines[0])

	var row map[string]uint64
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Equal(t, uint64(1<<63), row["rand"])
}

func TestPrinter(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", Options{})
	assert.Error(t, err)

	var buf bytes.Buffer
	p, err := New(&buf, FormatNone, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Print(fixed(t, 1)))
	assert.Empty(t, buf.String())

	p, err = New(&buf, FormatJSON, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Print(fixed(t, 1)))
	assert.Equal(t, "{\"rand\":1}\n", buf.String())
}
