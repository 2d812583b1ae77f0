// Package arrowbus moves columnar record batches across a Kafka bus and
// compares two ways of putting them on the wire.
//
// # Codecs
//
// A batch is a single non-nullable uint64 column named "rand". It can be
// encoded two ways:
//
//   - ipc: an Arrow IPC stream (schema message, record batch message,
//     end-of-stream marker). Self-describing; any Arrow reader can decode it.
//     Malformed input is reported as a format error, never a partial batch.
//   - raw: the element bytes only, row_count*8 bytes in native byte order.
//     Both ends must agree on a Contract (version, field, row count).
//     A payload of the wrong size is reported as a length mismatch.
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/arrowbus/pkg/batch"
//	    "github.com/ajitpratap0/arrowbus/pkg/codec"
//	)
//
//	raw, _ := codec.NewRawCodec(codec.DefaultContract())
//	b := batch.Generate(100)
//	payload, _ := raw.Encode(b) // 800 bytes
//	out, _ := raw.Decode(payload)
//	batch.Equal(b, out) // true
//
// # Packages
//
//   - pkg/batch: the columnar batch, generation and equality
//   - pkg/codec: IPC and raw codecs, contracts, codec registry
//   - pkg/transport: sarama producer and consumer group handler
//   - pkg/config: YAML + environment configuration via viper
//   - pkg/metrics, pkg/observability: Prometheus collectors and OpenTelemetry tracing
//   - pkg/printer: table and JSON rendering of decoded batches
//   - internal/bench: codec benchmark harness
//
// # Command Line
//
//	arrowbus produce --brokers localhost:9092 --codec raw --rows 100
//	arrowbus consume --brokers localhost:9092 --format table
//	arrowbus run --count 10
//	arrowbus bench --codec all --json bench.json
package arrowbus
