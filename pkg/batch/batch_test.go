package batch

import (
	"math/rand/v2"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowbus/pkg/errors"
)

func TestGenerate(t *testing.T) {
	for _, rows := range []int{0, 1, 100, 1000} {
		b := Generate(rows)
		defer b.Release()

		assert.Equal(t, rows, b.NumRows())
		assert.Equal(t, 1, b.NumCols())
		assert.True(t, SchemaEqual(RandSchema(), b.Schema()))
		assert.Zero(t, b.Column(0).NullN())

		values, err := b.Uint64Values(0)
		require.NoError(t, err)
		assert.Len(t, values, rows)
	}
}

func TestGenerateNegativeRowsYieldsEmptyBatch(t *testing.T) {
	b := Generate(-5)
	assert.Equal(t, 0, b.NumRows())
}

func TestGenerateWithSourceIsReproducible(t *testing.T) {
	a := GenerateWithSource(64, rand.NewPCG(1, 2))
	b := GenerateWithSource(64, rand.NewPCG(1, 2))
	c := GenerateWithSource(64, rand.NewPCG(3, 4))

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestNewValidation(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	u64 := func(vals ...uint64) arrow.Array {
		bldr := array.NewUint64Builder(mem)
		defer bldr.Release()
		bldr.AppendValues(vals, nil)
		return bldr.NewArray()
	}

	t.Run("nil schema", func(t *testing.T) {
		_, err := New(nil, nil)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("column count", func(t *testing.T) {
		_, err := New(RandSchema(), nil)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("type mismatch", func(t *testing.T) {
		bldr := array.NewInt64Builder(mem)
		defer bldr.Release()
		bldr.AppendValues([]int64{1, 2}, nil)
		col := bldr.NewArray()
		defer col.Release()

		_, err := New(RandSchema(), []arrow.Array{col})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("length mismatch across fields", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			{Name: "a", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "b", Type: arrow.PrimitiveTypes.Uint64},
		}, nil)
		a, b := u64(1, 2, 3), u64(1, 2)
		defer a.Release()
		defer b.Release()

		_, err := New(schema, []arrow.Array{a, b})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("nulls in non-nullable field", func(t *testing.T) {
		bldr := array.NewUint64Builder(mem)
		defer bldr.Release()
		bldr.Append(1)
		bldr.AppendNull()
		col := bldr.NewArray()
		defer col.Release()

		_, err := New(RandSchema(), []arrow.Array{col})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("valid", func(t *testing.T) {
		col := u64(7, 8, 9)
		defer col.Release()

		b, err := New(RandSchema(), []arrow.Array{col})
		require.NoError(t, err)
		defer b.Release()

		values, err := b.Uint64Values(0)
		require.NoError(t, err)
		assert.Equal(t, []uint64{7, 8, 9}, values)
	})
}

func TestUint64ColumnFromBytes(t *testing.T) {
	src := []uint64{1, 1 << 63, 42}
	col, err := Uint64ColumnFromBytes(arrow.Uint64Traits.CastToBytes(src))
	require.NoError(t, err)
	defer col.Release()
	assert.Equal(t, src, col.(*array.Uint64).Uint64Values())

	_, err = Uint64ColumnFromBytes(make([]byte, 12))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestValueBytes(t *testing.T) {
	b := GenerateWithSource(100, rand.NewPCG(9, 9))
	raw, err := b.ValueBytes(0)
	require.NoError(t, err)
	assert.Len(t, raw, 100*ElementWidth)

	_, err = b.ValueBytes(3)
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	a := Uint64Column([]uint64{1, 2, 3})
	b := Uint64Column([]uint64{1, 2, 3})
	c := Uint64Column([]uint64{1, 2, 4})

	ba, err := New(RandSchema(), []arrow.Array{a})
	require.NoError(t, err)
	bb, err := New(RandSchema(), []arrow.Array{b})
	require.NoError(t, err)
	bc, err := New(RandSchema(), []arrow.Array{c})
	require.NoError(t, err)

	assert.True(t, Equal(ba, ba))
	assert.True(t, Equal(ba, bb), "equal values in distinct buffers")
	assert.False(t, Equal(ba, bc))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(ba, nil))

	t.Run("field name differs", func(t *testing.T) {
		other := arrow.NewSchema([]arrow.Field{{Name: "other", Type: arrow.PrimitiveTypes.Uint64}}, nil)
		bo, err := New(other, []arrow.Array{a})
		require.NoError(t, err)
		assert.False(t, Equal(ba, bo))
	})

	t.Run("nullability differs", func(t *testing.T) {
		nullable := arrow.NewSchema([]arrow.Field{{Name: RandField, Type: arrow.PrimitiveTypes.Uint64, Nullable: true}}, nil)
		bn, err := New(nullable, []arrow.Array{a})
		require.NoError(t, err)
		assert.False(t, Equal(ba, bn))
	})

	t.Run("metadata ignored", func(t *testing.T) {
		md := arrow.NewMetadata([]string{"origin"}, []string{"test"})
		withMeta := arrow.NewSchema(RandSchema().Fields(), &md)
		bm, err := New(withMeta, []arrow.Array{b})
		require.NoError(t, err)
		assert.True(t, Equal(ba, bm))
	})

	t.Run("sliced column compares by value", func(t *testing.T) {
		long := Uint64Column([]uint64{0, 1, 2, 3, 9})
		sliced := array.NewSlice(long, 1, 4)
		defer sliced.Release()
		bs, err := New(RandSchema(), []arrow.Array{sliced})
		require.NoError(t, err)
		assert.True(t, Equal(ba, bs))
	})
}
