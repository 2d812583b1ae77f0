package codec

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

// Contract is the out-of-band agreement between the two ends of a raw
// codec: the single uint64 field's name and the exact row count per payload.
// Element byte order is the host's native order and is folded into the
// fingerprint, so peers of different endianness never share a fingerprint.
type Contract struct {
	Version  uint32 `yaml:"version" mapstructure:"version" json:"version"`
	Field    string `yaml:"field" mapstructure:"field" json:"field"`
	RowCount int    `yaml:"row_count" mapstructure:"row_count" json:"row_count"`
}

// DefaultContract matches the batches produced by batch.Generate(100)
func DefaultContract() Contract {
	return Contract{
		Version:  1,
		Field:    batch.RandField,
		RowCount: 100,
	}
}

// Validate checks the contract is usable
func (c Contract) Validate() error {
	if c.Version == 0 {
		return errors.New(errors.ErrorTypeContract, "contract version must be positive")
	}
	if c.Field == "" {
		return errors.New(errors.ErrorTypeContract, "contract field name is required")
	}
	if c.RowCount < 0 {
		return errors.Newf(errors.ErrorTypeContract, "contract row count %d is negative", c.RowCount)
	}
	return nil
}

// Schema returns the schema reconstructed on decode
func (c Contract) Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: c.Field, Type: arrow.PrimitiveTypes.Uint64, Nullable: false},
	}, nil)
}

// PayloadSize is the exact number of bytes a conforming payload carries
func (c Contract) PayloadSize() int {
	return c.RowCount * batch.ElementWidth
}

// Fingerprint hashes every term of the contract, including the host byte order
func (c Contract) Fingerprint() uint64 {
	return xxhash.Sum64String(c.canonical())
}

// FingerprintHex is Fingerprint formatted for message headers
func (c Contract) FingerprintHex() string {
	return strconv.FormatUint(c.Fingerprint(), 16)
}

// ParseFingerprint parses a FingerprintHex value
func ParseFingerprint(s string) (uint64, error) {
	fp, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeContract, "invalid contract fingerprint")
	}
	return fp, nil
}

func (c Contract) String() string {
	return fmt.Sprintf("v%d %s:uint64 x%d", c.Version, c.Field, c.RowCount)
}

func (c Contract) canonical() string {
	return fmt.Sprintf("arrowbus-raw/v%d;field=%s;type=uint64;nullable=false;rows=%d;width=%d;order=%s",
		c.Version, c.Field, c.RowCount, batch.ElementWidth, nativeOrder())
}

func nativeOrder() string {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return "le"
	}
	return "be"
}
