package tensor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFP64_RoundTripsValues(t *testing.T) {
	vals := []float64{-1.6685316675305422, -1.2990134593088984, 0.27464720361244455, -0.6036204360190907}
	x, err := New("X", FP64, []int64{1, 4}, vals)
	require.NoError(t, err)
	assert.Equal(t, int64(4), x.ElementCount())

	got, err := x.Float64s()
	require.NoError(t, err)
	assert.Equal(t, vals, got)
}

func TestNew_ShapeMismatch(t *testing.T) {
	_, err := New("X", FP32, []int64{2, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs 4 elements, got 3")
}

func TestValidate_RejectsOverflowingShape(t *testing.T) {
	huge := []int64{1 << 32, 1 << 32}

	_, err := New[float64]("X", FP64, huge, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many elements")

	_, err = FromJSON("X", FP64, huge, json.RawMessage("[]"))
	require.Error(t, err)

	_, err = FromBinary("X", FP32, huge, nil)
	require.Error(t, err)

	_, err = NewStrings("S", []int64{1 << 62, 4, 4}, nil)
	require.Error(t, err)

	x := &Tensor{Name: "X", Datatype: FP64, Shape: huge}
	assert.Equal(t, int64(-1), x.ElementCount())
}

func TestNew_RejectsNonPositiveDims(t *testing.T) {
	_, err := New("X", Int32, []int64{0, 1}, []int32{})
	require.Error(t, err)
}

func TestNew_RejectsBytesDatatype(t *testing.T) {
	_, err := New("X", Bytes, []int64{1}, []int64{1})
	require.Error(t, err)
}

func TestIntegerConversions(t *testing.T) {
	cases := []struct {
		dt   Datatype
		in   []int64
		want []int64
	}{
		{Int8, []int64{-128, 127}, []int64{-128, 127}},
		{Int16, []int64{-300, 300}, []int64{-300, 300}},
		{Int32, []int64{-70000, 70000}, []int64{-70000, 70000}},
		{Int64, []int64{-1 << 40, 1 << 40}, []int64{-1 << 40, 1 << 40}},
		{Uint8, []int64{0, 255}, []int64{0, 255}},
		{Uint16, []int64{1, 65535}, []int64{1, 65535}},
		{Uint32, []int64{1, 1 << 31}, []int64{1, 1 << 31}},
	}
	for _, c := range cases {
		x, err := New("v", c.dt, []int64{2}, c.in)
		require.NoError(t, err, c.dt)
		got, err := x.Int64s()
		require.NoError(t, err, c.dt)
		assert.Equal(t, c.want, got, c.dt)
	}
}

func TestFP16UsesHalfPrecision(t *testing.T) {
	x, err := New("h", FP16, []int64{3}, []float32{0.5, -2, 1.0009765625})
	require.NoError(t, err)
	assert.Len(t, x.Binary(), 6)

	got, err := x.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -2, 1.0009765625}, got)
}

func TestAccessorTypeMismatch(t *testing.T) {
	x, err := NewStrings("s", []int64{1}, []string{"a"})
	require.NoError(t, err)
	_, err = x.Float64s()
	assert.Error(t, err)
	_, err = x.Bools()
	assert.Error(t, err)

	f, err := New("f", FP64, []int64{1}, []float64{1})
	require.NoError(t, err)
	_, err = f.Float32s()
	assert.Error(t, err)
	_, err = f.Int64s()
	assert.Error(t, err)
}

func TestJSONData_Types(t *testing.T) {
	f32, _ := New("a", FP32, []int64{2}, []float32{1.5, 2})
	i64, _ := New("b", Int64, []int64{1}, []int64{7})
	u8, _ := New("c", Uint8, []int64{1}, []uint8{9})
	bl, _ := NewBool("d", []int64{2}, []bool{true, false})
	s, _ := NewStrings("e", []int64{1}, []string{"hi"})

	assert.Equal(t, []float32{1.5, 2}, f32.JSONData())
	assert.Equal(t, []int64{7}, i64.JSONData())
	assert.Equal(t, []uint64{9}, u8.JSONData())
	assert.Equal(t, []bool{true, false}, bl.JSONData())
	assert.Equal(t, []string{"hi"}, s.JSONData())

	raw, err := f32.MarshalData()
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5,2]`, string(raw))
}

func TestFromJSON_FlattensNestedArrays(t *testing.T) {
	x, err := FromJSON("p", FP64, []int64{2, 2}, json.RawMessage(`[[0.25,0.75],[1,0]]`))
	require.NoError(t, err)
	got, err := x.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.75, 1, 0}, got)
}

func TestFromJSON_TypeErrors(t *testing.T) {
	_, err := FromJSON("p", FP32, []int64{1}, json.RawMessage(`["x"]`))
	assert.Error(t, err)
	_, err = FromJSON("p", Bool, []int64{1}, json.RawMessage(`[1]`))
	assert.Error(t, err)
	_, err = FromJSON("p", Bytes, []int64{1}, json.RawMessage(`[true]`))
	assert.Error(t, err)
	_, err = FromJSON("p", Int8, []int64{1}, json.RawMessage(`[300]`))
	assert.Error(t, err)
}

func TestFromJSON_Int64KeepsPrecision(t *testing.T) {
	x, err := FromJSON("label", Int64, []int64{1}, json.RawMessage(`[9007199254740993]`))
	require.NoError(t, err)
	got, err := x.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{9007199254740993}, got)
}

func TestBinaryRoundTrip(t *testing.T) {
	x, err := New("X", FP64, []int64{1, 2}, []float64{3.25, -1})
	require.NoError(t, err)
	y, err := FromBinary("X", FP64, []int64{1, 2}, x.Binary())
	require.NoError(t, err)
	got, _ := y.Float64s()
	assert.Equal(t, []float64{3.25, -1}, got)

	s, err := NewStrings("s", []int64{2}, []string{"ab", ""})
	require.NoError(t, err)
	b := s.Binary()
	assert.Equal(t, []byte{2, 0, 0, 0, 'a', 'b', 0, 0, 0, 0}, b)
	s2, err := FromBinary("s", Bytes, []int64{2}, b)
	require.NoError(t, err)
	strs, _ := s2.Strings()
	assert.Equal(t, []string{"ab", ""}, strs)
}

func TestFromBinary_Truncated(t *testing.T) {
	_, err := FromBinary("x", FP32, []int64{2}, []byte{1, 2, 3})
	assert.Error(t, err)
	_, err = FromBinary("s", Bytes, []int64{1}, []byte{5, 0, 0, 0, 'a'})
	assert.Error(t, err)
}

func TestParseValues(t *testing.T) {
	x, err := ParseValues("X", FP32, []int64{1, 2}, []string{"0.5", "-1"})
	require.NoError(t, err)
	got, _ := x.Float32s()
	assert.Equal(t, []float32{0.5, -1}, got)

	_, err = ParseValues("X", Uint8, []int64{1}, []string{"-1"})
	assert.Error(t, err)

	b, err := ParseValues("B", Bool, []int64{2}, []string{"true", "0"})
	require.NoError(t, err)
	bools, _ := b.Bools()
	assert.Equal(t, []bool{true, false}, bools)
}

func TestParseDatatype(t *testing.T) {
	dt, err := ParseDatatype(" fp32 ")
	require.NoError(t, err)
	assert.Equal(t, FP32, dt)
	assert.Equal(t, 4, dt.Size())
	_, err = ParseDatatype("FP128")
	assert.Error(t, err)
}
