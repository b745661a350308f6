// Package wire implements the body framing shared by the inference client
// and the fake server: JSON tensors, the binary data extension and
// request/response compression.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"inferclient/internal/tensor"
	"inferclient/pkg/types"
)

// HeaderContentLength carries the length of the JSON header when a body
// uses the binary data extension.
const HeaderContentLength = "Inference-Header-Content-Length"

// Parameter keys of the binary data and classification extensions.
const (
	ParamBinaryDataSize   = "binary_data_size"
	ParamBinaryData       = "binary_data"
	ParamBinaryDataOutput = "binary_data_output"
	ParamClassification   = "classification"
)

// Split separates the JSON header from the binary section. An empty
// headerLen means the whole body is JSON.
func Split(body []byte, headerLen string) (hdr, tail []byte, err error) {
	headerLen = strings.TrimSpace(headerLen)
	if headerLen == "" {
		return body, nil, nil
	}
	n, err := strconv.Atoi(headerLen)
	if err != nil || n < 0 {
		return nil, nil, fmt.Errorf("invalid %s %q", HeaderContentLength, headerLen)
	}
	if n > len(body) {
		return nil, nil, fmt.Errorf("%s %d exceeds body size %d", HeaderContentLength, n, len(body))
	}
	return body[:n], body[n:], nil
}

// Join appends binary chunks after the JSON header.
func Join(hdr []byte, chunks [][]byte) []byte {
	n := len(hdr)
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	out = append(out, hdr...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// IntParam reads an integer parameter. JSON numbers decode as float64.
func IntParam(p types.Parameters, key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// BoolParam reads a boolean parameter, false when absent.
func BoolParam(p types.Parameters, key string) bool {
	b, _ := p[key].(bool)
	return b
}

// TensorReader decodes tensors whose data is either inline JSON or the next
// slice of the binary section.
type TensorReader struct {
	tail []byte
	off  int
}

// NewTensorReader walks tail in declaration order.
func NewTensorReader(tail []byte) *TensorReader { return &TensorReader{tail: tail} }

// Read decodes one tensor.
func (r *TensorReader) Read(name, datatype string, shape []int64, params types.Parameters, data json.RawMessage) (*tensor.Tensor, error) {
	dt, err := tensor.ParseDatatype(datatype)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	size, binary := IntParam(params, ParamBinaryDataSize)
	if !binary {
		return tensor.FromJSON(name, dt, shape, data)
	}
	if size < 0 || r.off+size > len(r.tail) {
		return nil, fmt.Errorf("tensor %q: binary_data_size %d overruns binary section of %d bytes", name, size, len(r.tail)-r.off)
	}
	chunk := r.tail[r.off : r.off+size]
	r.off += size
	return tensor.FromBinary(name, dt, shape, chunk)
}

// Remaining reports unread bytes of the binary section.
func (r *TensorReader) Remaining() int { return len(r.tail) - r.off }

// EncodeInput renders t as a request input. With binary set the data is
// returned as a chunk for the binary section instead of inline JSON.
func EncodeInput(t *tensor.Tensor, binary bool) (types.RequestInput, []byte, error) {
	in := types.RequestInput{Name: t.Name, Shape: t.Shape, Datatype: t.Datatype.String()}
	if binary {
		chunk := t.Binary()
		in.Parameters = types.Parameters{ParamBinaryDataSize: len(chunk)}
		return in, chunk, nil
	}
	data, err := t.MarshalData()
	if err != nil {
		return in, nil, err
	}
	in.Data = data
	return in, nil, nil
}

// EncodeOutput renders t as a response output, see EncodeInput.
func EncodeOutput(t *tensor.Tensor, binary bool) (types.ResponseOutput, []byte, error) {
	out := types.ResponseOutput{Name: t.Name, Shape: t.Shape, Datatype: t.Datatype.String()}
	if binary {
		chunk := t.Binary()
		out.Parameters = types.Parameters{ParamBinaryDataSize: len(chunk)}
		return out, chunk, nil
	}
	data, err := t.MarshalData()
	if err != nil {
		return out, nil, err
	}
	out.Data = data
	return out, nil, nil
}
