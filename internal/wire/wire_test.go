package wire

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferclient/internal/tensor"
	"inferclient/pkg/types"
)

func TestCompressRoundTrip(t *testing.T) {
	payload := []byte(`{"inputs":[{"name":"X","shape":[1,4],"datatype":"FP64","data":[1,2,3,4]}]}`)
	for _, alg := range []string{CompressionGzip, CompressionDeflate, "GZIP"} {
		enc, ce, err := Compress(alg, payload)
		require.NoError(t, err, alg)
		assert.NotEmpty(t, ce)
		got, err := Decompress(ce, enc, 0)
		require.NoError(t, err, alg)
		assert.Equal(t, payload, got, alg)
	}
}

func TestDecompress_EnforcesLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 1000)
	for _, alg := range []string{CompressionGzip, CompressionDeflate, CompressionNone} {
		enc, ce, err := Compress(alg, payload)
		require.NoError(t, err, alg)

		got, err := Decompress(ce, enc, int64(len(payload)))
		require.NoError(t, err, alg)
		assert.Len(t, got, len(payload))

		_, err = Decompress(ce, enc, int64(len(payload))-1)
		assert.ErrorIs(t, err, ErrBodyTooLarge, alg)
	}
}

func TestReadLimited(t *testing.T) {
	b, err := ReadLimited(strings.NewReader("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(b))

	_, err = ReadLimited(strings.NewReader("abcde"), 4)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	b, err = ReadLimited(strings.NewReader("abcde"), 0)
	require.NoError(t, err)
	assert.Len(t, b, 5)
}

func TestCompressNone(t *testing.T) {
	for _, alg := range []string{"", "none"} {
		b, ce, err := Compress(alg, []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, "", ce)
		assert.Equal(t, []byte("x"), b)
	}
}

func TestValidateAlgorithm(t *testing.T) {
	assert.NoError(t, ValidateAlgorithm("deflate"))
	assert.NoError(t, ValidateAlgorithm(""))
	assert.Error(t, ValidateAlgorithm("br"))
	_, _, err := Compress("zstd", []byte("x"))
	assert.Error(t, err)
	_, err = Decompress("br", []byte("x"), 0)
	assert.Error(t, err)
}

func TestAcceptEncoding(t *testing.T) {
	assert.Equal(t, "gzip", AcceptEncoding("gzip"))
	assert.Equal(t, "", AcceptEncoding("none"))
	assert.Equal(t, "", AcceptEncoding(""))
}

func TestSplit(t *testing.T) {
	body := []byte(`{"a":1}` + "\x01\x02")
	hdr, tail, err := Split(body, "7")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(hdr))
	assert.Equal(t, []byte{1, 2}, tail)

	hdr, tail, err = Split(body, "")
	require.NoError(t, err)
	assert.Equal(t, body, hdr)
	assert.Nil(t, tail)

	_, _, err = Split(body, "100")
	assert.Error(t, err)
	_, _, err = Split(body, "abc")
	assert.Error(t, err)
}

func TestEncodeReadBinaryAndJSON(t *testing.T) {
	x, err := tensor.New("X", tensor.FP32, []int64{1, 2}, []float32{1, 2})
	require.NoError(t, err)
	y, err := tensor.NewStrings("Y", []int64{1}, []string{"hello"})
	require.NoError(t, err)

	bx, cx, err := EncodeInput(x, true)
	require.NoError(t, err)
	jy, cy, err := EncodeInput(y, false)
	require.NoError(t, err)
	assert.Nil(t, cy)
	assert.JSONEq(t, `["hello"]`, string(jy.Data))

	// Round trip the header through JSON so parameters decode as float64,
	// like they do on the wire.
	hdr, err := json.Marshal(types.InferRequest{Inputs: []types.RequestInput{bx, jy}})
	require.NoError(t, err)
	body := Join(hdr, [][]byte{cx})

	h, tail, err := Split(body, strconv.Itoa(len(hdr)))
	require.NoError(t, err)
	var req types.InferRequest
	require.NoError(t, json.Unmarshal(h, &req))

	r := NewTensorReader(tail)
	var got []*tensor.Tensor
	for _, in := range req.Inputs {
		tt, err := r.Read(in.Name, in.Datatype, in.Shape, in.Parameters, in.Data)
		require.NoError(t, err)
		got = append(got, tt)
	}
	assert.Equal(t, 0, r.Remaining())
	f, _ := got[0].Float32s()
	assert.Equal(t, []float32{1, 2}, f)
	s, _ := got[1].Strings()
	assert.Equal(t, []string{"hello"}, s)
}

func TestTensorReader_Overrun(t *testing.T) {
	r := NewTensorReader([]byte{1, 2})
	_, err := r.Read("X", "FP32", []int64{1}, types.Parameters{ParamBinaryDataSize: float64(4)}, nil)
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	p := types.Parameters{"a": float64(3), "b": true, "c": json.Number("5")}
	n, ok := IntParam(p, "a")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	n, ok = IntParam(p, "c")
	assert.True(t, ok)
	assert.Equal(t, 5, n)
	_, ok = IntParam(p, "missing")
	assert.False(t, ok)
	assert.True(t, BoolParam(p, "b"))
	assert.False(t, BoolParam(p, "a"))
}
