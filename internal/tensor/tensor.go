// Package tensor holds the named, typed, shaped buffers exchanged with a
// model-serving endpoint.
//
// Fixed-size element types are stored as row-major little-endian bytes, the
// same layout the binary data extension puts on the wire. BYTES tensors keep
// one byte string per element.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Number is the set of Go element types accepted by New.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Tensor is a named, typed, shaped buffer. Build one with New, NewBool,
// NewBytes, NewStrings, ParseValues, FromJSON or FromBinary.
type Tensor struct {
	Name     string
	Datatype Datatype
	Shape    []int64

	raw   []byte
	elems [][]byte
}

// New converts data to the element type dt and returns a validated tensor.
func New[T Number](name string, dt Datatype, shape []int64, data []T) (*Tensor, error) {
	if !dt.isNumeric() {
		return nil, fmt.Errorf("tensor %q: datatype %s cannot hold numeric data", name, dt)
	}
	sz := dt.Size()
	t := &Tensor{Name: name, Datatype: dt, Shape: cloneShape(shape), raw: make([]byte, len(data)*sz)}
	for i, v := range data {
		b := t.raw[i*sz : (i+1)*sz]
		switch {
		case dt.isFloat():
			putFloat(dt, b, float64(v))
		case dt.isSigned():
			putInt(dt, b, int64(v))
		default:
			putUint(dt, b, uint64(v))
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewBool returns a validated BOOL tensor.
func NewBool(name string, shape []int64, data []bool) (*Tensor, error) {
	t := &Tensor{Name: name, Datatype: Bool, Shape: cloneShape(shape), raw: make([]byte, len(data))}
	for i, v := range data {
		if v {
			t.raw[i] = 1
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewBytes returns a validated BYTES tensor. Elements are copied.
func NewBytes(name string, shape []int64, data [][]byte) (*Tensor, error) {
	t := &Tensor{Name: name, Datatype: Bytes, Shape: cloneShape(shape), elems: make([][]byte, len(data))}
	for i, e := range data {
		t.elems[i] = append([]byte(nil), e...)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewStrings returns a validated BYTES tensor holding UTF-8 strings.
func NewStrings(name string, shape []int64, data []string) (*Tensor, error) {
	b := make([][]byte, len(data))
	for i, s := range data {
		b[i] = []byte(s)
	}
	return NewBytes(name, shape, b)
}

// Validate checks that the tensor is named, its dimensions are positive and
// the stored element count matches the product of the shape.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("nil tensor")
	}
	if t.Name == "" {
		return fmt.Errorf("tensor name is required")
	}
	if !t.Datatype.Valid() {
		return fmt.Errorf("tensor %q: unsupported datatype %q", t.Name, t.Datatype)
	}
	if len(t.Shape) == 0 {
		return fmt.Errorf("tensor %q: shape is required", t.Name)
	}
	for i, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("tensor %q: dimension %d must be positive, got %d", t.Name, i, d)
		}
	}
	want, ok := checkedCount(t.Shape)
	if !ok {
		return fmt.Errorf("tensor %q: shape %v has too many elements", t.Name, t.Shape)
	}
	if got := int64(t.Len()); got != want {
		return fmt.Errorf("tensor %q: shape %v needs %d elements, got %d", t.Name, t.Shape, want, got)
	}
	return nil
}

// ElementCount is the product of the shape dimensions, or -1 when the
// product does not fit in an int.
func (t *Tensor) ElementCount() int64 {
	n, ok := checkedCount(t.Shape)
	if !ok {
		return -1
	}
	return n
}

// Len returns the number of stored elements.
func (t *Tensor) Len() int {
	if t.Datatype == Bytes {
		return len(t.elems)
	}
	if sz := t.Datatype.Size(); sz > 0 {
		return len(t.raw) / sz
	}
	return 0
}

// Float64s returns the elements of any numeric tensor widened to float64.
func (t *Tensor) Float64s() ([]float64, error) {
	if !t.Datatype.isNumeric() {
		return nil, t.typeErr("float64")
	}
	out := make([]float64, t.Len())
	sz := t.Datatype.Size()
	for i := range out {
		out[i] = getFloat64(t.Datatype, t.raw[i*sz:(i+1)*sz])
	}
	return out, nil
}

// Float32s returns the elements of an FP16 or FP32 tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.Datatype != FP32 && t.Datatype != FP16 {
		return nil, t.typeErr("float32")
	}
	out := make([]float32, t.Len())
	sz := t.Datatype.Size()
	for i := range out {
		out[i] = float32(getFloat64(t.Datatype, t.raw[i*sz:(i+1)*sz]))
	}
	return out, nil
}

// Int64s returns the elements of an integer tensor widened to int64.
func (t *Tensor) Int64s() ([]int64, error) {
	if !t.Datatype.isSigned() && !t.Datatype.isUnsigned() {
		return nil, t.typeErr("int64")
	}
	out := make([]int64, t.Len())
	sz := t.Datatype.Size()
	for i := range out {
		out[i] = getInt64(t.Datatype, t.raw[i*sz:(i+1)*sz])
	}
	return out, nil
}

// Bools returns the elements of a BOOL tensor.
func (t *Tensor) Bools() ([]bool, error) {
	if t.Datatype != Bool {
		return nil, t.typeErr("bool")
	}
	out := make([]bool, len(t.raw))
	for i, b := range t.raw {
		out[i] = b != 0
	}
	return out, nil
}

// ByteElems returns the elements of a BYTES tensor.
func (t *Tensor) ByteElems() ([][]byte, error) {
	if t.Datatype != Bytes {
		return nil, t.typeErr("bytes")
	}
	out := make([][]byte, len(t.elems))
	for i, e := range t.elems {
		out[i] = append([]byte(nil), e...)
	}
	return out, nil
}

// Strings returns the elements of a BYTES tensor as strings.
func (t *Tensor) Strings() ([]string, error) {
	if t.Datatype != Bytes {
		return nil, t.typeErr("string")
	}
	out := make([]string, len(t.elems))
	for i, e := range t.elems {
		out[i] = string(e)
	}
	return out, nil
}

func (t *Tensor) typeErr(want string) error {
	return fmt.Errorf("tensor %q: datatype %s cannot be read as %s", t.Name, t.Datatype, want)
}

// checkedCount multiplies positive dimensions. ok is false when the
// product would exceed math.MaxInt, so int conversions stay exact.
func checkedCount(shape []int64) (n int64, ok bool) {
	if len(shape) == 0 {
		return 0, true
	}
	n = 1
	for _, d := range shape {
		if d <= 0 {
			return 0, true
		}
		if n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func cloneShape(shape []int64) []int64 {
	return append([]int64(nil), shape...)
}

func putFloat(dt Datatype, b []byte, v float64) {
	switch dt {
	case FP16:
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case FP32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case FP64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

func putInt(dt Datatype, b []byte, v int64) {
	switch dt {
	case Int8:
		b[0] = byte(int8(v))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

func putUint(dt Datatype, b []byte, v uint64) {
	switch dt {
	case Uint8:
		b[0] = byte(v)
	case Uint16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case Uint32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case Uint64:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func getFloat64(dt Datatype, b []byte) float64 {
	switch dt {
	case FP16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
	case FP32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case FP64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Uint8, Uint16, Uint32, Uint64:
		return float64(getUint64(dt, b))
	default:
		return float64(getInt64(dt, b))
	}
}

func getInt64(dt Datatype, b []byte) int64 {
	switch dt {
	case Int8:
		return int64(int8(b[0]))
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return int64(getUint64(dt, b))
	}
}

func getUint64(dt Datatype, b []byte) uint64 {
	switch dt {
	case Uint8:
		return uint64(b[0])
	case Uint16:
		return uint64(binary.LittleEndian.Uint16(b))
	case Uint32:
		return uint64(binary.LittleEndian.Uint32(b))
	case Uint64:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}
