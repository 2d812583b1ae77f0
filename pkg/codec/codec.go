// Package codec converts columnar batches to and from opaque bus payloads.
//
// Two strategies are provided:
//
//   - IPCCodec writes the Arrow IPC stream format: a schema message, one
//     record batch message and an end-of-stream marker. The payload is
//     self-describing and Decode validates every declared length before
//     handing bytes to the Arrow reader.
//   - RawCodec writes only the element bytes of the single uint64 column.
//     Schema and row count are not transmitted; both ends share them through
//     a Contract. Decode rejects any payload whose size differs from the
//     contract and otherwise wraps the bytes without copying.
//
// Codecs are stateless. Encode and Decode are pure functions of their input
// and may be called concurrently on shared batches and payloads.
package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

// Kind names a codec in configuration
type Kind string

const (
	// KindIPC selects the self-describing Arrow IPC stream codec
	KindIPC Kind = "ipc"
	// KindRaw selects the contract-bound raw element codec
	KindRaw Kind = "raw"
)

const (
	// ContentTypeIPC is the registered media type of the Arrow IPC stream format
	ContentTypeIPC = "application/vnd.apache.arrow.stream"
	// ContentTypeRaw identifies bare uint64 element payloads
	ContentTypeRaw = "application/x-arrowbus-raw-u64"
)

// Codec encodes a batch into a payload and decodes it back
type Codec interface {
	// Name returns the codec kind
	Name() Kind
	// ContentType returns the media type stamped on outgoing messages
	ContentType() string
	// Encode serializes b. It never modifies b.
	Encode(b *batch.Batch) ([]byte, error)
	// Decode reconstructs a batch from payload. Calling it repeatedly on the
	// same bytes yields equal batches.
	Decode(payload []byte) (*batch.Batch, error)
}

// New builds the codec named by kind. The contract is only used by KindRaw.
func New(kind Kind, contract Contract) (Codec, error) {
	switch kind {
	case KindIPC:
		return NewIPCCodec(), nil
	case KindRaw:
		return NewRawCodec(contract)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported codec: %q", kind)
	}
}

// IsFormatError reports whether err is a malformed self-describing payload
func IsFormatError(err error) bool {
	return errors.IsType(err, errors.ErrorTypeFormat)
}

// IsLengthMismatch reports whether err is a raw payload that broke the contract size
func IsLengthMismatch(err error) bool {
	return errors.IsType(err, errors.ErrorTypeLengthMismatch)
}

// Registry resolves codecs by content type
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates a registry holding codecs
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// Register adds c, replacing any codec with the same content type
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ContentType()] = c
}

// Lookup returns the codec registered for contentType
func (r *Registry) Lookup(contentType string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[contentType]
	return c, ok
}

// ContentTypes lists registered content types in sorted order
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.codecs))
	for ct := range r.codecs {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// ParseKind validates s as a codec kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindIPC, KindRaw:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown codec %q (want %q or %q)", s, KindIPC, KindRaw)
	}
}
