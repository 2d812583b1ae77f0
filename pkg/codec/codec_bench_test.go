package codec

import (
	"fmt"
	"testing"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
)

var benchSizes = []int{1, 100, 1_000, 10_000, 100_000, 1_000_000}

func benchCodecs(b *testing.B, rows int) []Codec {
	return []Codec{NewIPCCodec(), rawCodec(b, rows)}
}

func BenchmarkEncode(b *testing.B) {
	for _, rows := range benchSizes {
		in := seeded(rows)
		for _, c := range benchCodecs(b, rows) {
			b.Run(fmt.Sprintf("%s/rows=%d", c.Name(), rows), func(b *testing.B) {
				b.SetBytes(int64(rows * batch.ElementWidth))
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := c.Encode(in); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	for _, rows := range benchSizes {
		in := seeded(rows)
		for _, c := range benchCodecs(b, rows) {
			payload, err := c.Encode(in)
			if err != nil {
				b.Fatal(err)
			}
			b.Run(fmt.Sprintf("%s/rows=%d", c.Name(), rows), func(b *testing.B) {
				b.SetBytes(int64(rows * batch.ElementWidth))
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					out, err := c.Decode(payload)
					if err != nil {
						b.Fatal(err)
					}
					out.Release()
				}
			})
		}
	}
}
