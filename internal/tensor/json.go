package tensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONData returns the elements as a flat row-major slice suitable for the
// "data" member of a JSON tensor.
func (t *Tensor) JSONData() any {
	sz := t.Datatype.Size()
	n := t.Len()
	switch {
	case t.Datatype == Bool:
		v, _ := t.Bools()
		return v
	case t.Datatype == Bytes:
		v, _ := t.Strings()
		return v
	case t.Datatype == FP64:
		v, _ := t.Float64s()
		return v
	case t.Datatype.isFloat():
		v, _ := t.Float32s()
		return v
	case t.Datatype.isUnsigned():
		out := make([]uint64, n)
		for i := range out {
			out[i] = getUint64(t.Datatype, t.raw[i*sz:(i+1)*sz])
		}
		return out
	default:
		v, _ := t.Int64s()
		return v
	}
}

// MarshalData encodes the tensor elements as a JSON array.
func (t *Tensor) MarshalData() (json.RawMessage, error) {
	b, err := json.Marshal(t.JSONData())
	if err != nil {
		return nil, fmt.Errorf("tensor %q: encode data: %w", t.Name, err)
	}
	return b, nil
}

// FromJSON decodes a JSON "data" member. Nested arrays are flattened in
// row-major order.
func FromJSON(name string, dt Datatype, shape []int64, data json.RawMessage) (*Tensor, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("tensor %q: unsupported datatype %q", name, dt)
	}
	var root any
	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&root); err != nil {
			return nil, fmt.Errorf("tensor %q: decode data: %w", name, err)
		}
	}
	var flat []any
	flatten(root, &flat)

	switch dt {
	case Bool:
		vals := make([]bool, len(flat))
		for i, v := range flat {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("tensor %q: element %d is not a bool", name, i)
			}
			vals[i] = b
		}
		return NewBool(name, shape, vals)
	case Bytes:
		vals := make([]string, len(flat))
		for i, v := range flat {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("tensor %q: element %d is not a string", name, i)
			}
			vals[i] = s
		}
		return NewStrings(name, shape, vals)
	}

	strs := make([]string, len(flat))
	for i, v := range flat {
		num, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("tensor %q: element %d is not a number", name, i)
		}
		strs[i] = num.String()
	}
	return ParseValues(name, dt, shape, strs)
}

func flatten(v any, out *[]any) {
	switch x := v.(type) {
	case nil:
	case []any:
		for _, e := range x {
			flatten(e, out)
		}
	default:
		*out = append(*out, x)
	}
}

// ParseValues builds a tensor from textual element values, parsing each one
// according to dt.
func ParseValues(name string, dt Datatype, shape []int64, vals []string) (*Tensor, error) {
	switch {
	case dt == Bytes:
		return NewStrings(name, shape, vals)
	case dt == Bool:
		out := make([]bool, len(vals))
		for i, s := range vals {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("tensor %q: element %d: %w", name, i, err)
			}
			out[i] = b
		}
		return NewBool(name, shape, out)
	case dt.isFloat():
		out := make([]float64, len(vals))
		for i, s := range vals {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("tensor %q: element %d: %w", name, i, err)
			}
			out[i] = f
		}
		return New(name, dt, shape, out)
	case dt.isSigned():
		out := make([]int64, len(vals))
		for i, s := range vals {
			n, err := strconv.ParseInt(s, 10, dt.Size()*8)
			if err != nil {
				return nil, fmt.Errorf("tensor %q: element %d: %w", name, i, err)
			}
			out[i] = n
		}
		return New(name, dt, shape, out)
	case dt.isUnsigned():
		out := make([]uint64, len(vals))
		for i, s := range vals {
			n, err := strconv.ParseUint(s, 10, dt.Size()*8)
			if err != nil {
				return nil, fmt.Errorf("tensor %q: element %d: %w", name, i, err)
			}
			out[i] = n
		}
		return New(name, dt, shape, out)
	}
	return nil, fmt.Errorf("tensor %q: unsupported datatype %q", name, dt)
}
