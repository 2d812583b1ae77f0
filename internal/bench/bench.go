// Package bench measures codec encode and decode cost across batch sizes.
// It backs the `arrowbus bench` command and reuses testing.Benchmark so the
// numbers match `go test -bench` output for the same operations.
package bench

import (
	"strconv"
	"strings"
	"testing"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/codec"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

// Op is a measured codec operation
type Op string

const (
	OpEncode Op = "encode"
	OpDecode Op = "decode"
)

// Sizes are the default row counts measured
var Sizes = []int{1, 100, 1_000, 10_000, 100_000, 1_000_000}

// Result is one measured (codec, op, rows) cell
type Result struct {
	Codec        string  `json:"codec"`
	Op           Op      `json:"op"`
	Rows         int     `json:"rows"`
	PayloadBytes int     `json:"payload_bytes"`
	Iterations   int     `json:"iterations"`
	NsPerOp      int64   `json:"ns_per_op"`
	MBPerSec     float64 `json:"mb_per_sec"`
	AllocsPerOp  int64   `json:"allocs_per_op"`
	BytesPerOp   int64   `json:"bytes_per_op"`
}

// Run measures op for a codec of kind over a seeded batch of rows values.
// The operation is executed once before timing so failures surface as errors.
func Run(kind codec.Kind, op Op, rows int) (Result, error) {
	c, err := codecFor(kind, rows)
	if err != nil {
		return Result{}, err
	}

	in := batch.Generate(rows)
	defer in.Release()

	payload, err := c.Encode(in)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeData, "benchmark encode failed").
			WithDetail("codec", kind).WithDetail("rows", rows)
	}
	check, err := c.Decode(payload)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeData, "benchmark decode failed").
			WithDetail("codec", kind).WithDetail("rows", rows)
	}
	check.Release()

	var fn func(b *testing.B)
	switch op {
	case OpEncode:
		fn = func(b *testing.B) {
			b.SetBytes(int64(rows * batch.ElementWidth))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = c.Encode(in)
			}
		}
	case OpDecode:
		fn = func(b *testing.B) {
			b.SetBytes(int64(rows * batch.ElementWidth))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if out, err := c.Decode(payload); err == nil {
					out.Release()
				}
			}
		}
	default:
		return Result{}, errors.Newf(errors.ErrorTypeValidation, "unknown benchmark op %q", op)
	}

	br := testing.Benchmark(fn)
	return Result{
		Codec:        kind.String(),
		Op:           op,
		Rows:         rows,
		PayloadBytes: len(payload),
		Iterations:   br.N,
		NsPerOp:      br.NsPerOp(),
		MBPerSec:     mbPerSec(br),
		AllocsPerOp:  br.AllocsPerOp(),
		BytesPerOp:   br.AllocedBytesPerOp(),
	}, nil
}

// Suite runs encode and decode for every kind and size
func Suite(kinds []codec.Kind, sizes []int, progress func(Result)) ([]Result, error) {
	var results []Result
	for _, kind := range kinds {
		for _, rows := range sizes {
			for _, op := range []Op{OpEncode, OpDecode} {
				r, err := Run(kind, op, rows)
				if err != nil {
					return results, err
				}
				if progress != nil {
					progress(r)
				}
				results = append(results, r)
			}
		}
	}
	return results, nil
}

// ParseKinds accepts ipc, raw or all
func ParseKinds(s string) ([]codec.Kind, error) {
	if s == "all" {
		return []codec.Kind{codec.KindIPC, codec.KindRaw}, nil
	}
	k, err := codec.ParseKind(s)
	if err != nil {
		return nil, err
	}
	return []codec.Kind{k}, nil
}

// ParseSizes parses a comma separated list of row counts
func ParseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ReplaceAll(part, "_", ""))
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, errors.Newf(errors.ErrorTypeValidation, "invalid size %q", part)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "no sizes given")
	}
	return sizes, nil
}

func codecFor(kind codec.Kind, rows int) (codec.Codec, error) {
	return codec.New(kind, codec.Contract{Version: 1, Field: batch.RandField, RowCount: rows})
}

func mbPerSec(br testing.BenchmarkResult) float64 {
	if br.Bytes <= 0 || br.T <= 0 {
		return 0
	}
	return float64(br.Bytes) * float64(br.N) / 1e6 / br.T.Seconds()
}
