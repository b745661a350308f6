package tensor

import (
	"fmt"
	"strings"
)

// Datatype is the wire name of a tensor element type as used by the
// KServe v2 / Triton inference protocol.
type Datatype string

const (
	Bool   Datatype = "BOOL"
	Uint8  Datatype = "UINT8"
	Uint16 Datatype = "UINT16"
	Uint32 Datatype = "UINT32"
	Uint64 Datatype = "UINT64"
	Int8   Datatype = "INT8"
	Int16  Datatype = "INT16"
	Int32  Datatype = "INT32"
	Int64  Datatype = "INT64"
	FP16   Datatype = "FP16"
	FP32   Datatype = "FP32"
	FP64   Datatype = "FP64"
	Bytes  Datatype = "BYTES"
)

var elemSizes = map[Datatype]int{
	Bool:   1,
	Uint8:  1,
	Uint16: 2,
	Uint32: 4,
	Uint64: 8,
	Int8:   1,
	Int16:  2,
	Int32:  4,
	Int64:  8,
	FP16:   2,
	FP32:   4,
	FP64:   8,
	Bytes:  0,
}

// ParseDatatype resolves a wire name (case-insensitive) to a Datatype.
func ParseDatatype(s string) (Datatype, error) {
	dt := Datatype(strings.ToUpper(strings.TrimSpace(s)))
	if !dt.Valid() {
		return "", fmt.Errorf("unsupported datatype %q", s)
	}
	return dt, nil
}

// Valid reports whether d is one of the known datatypes.
func (d Datatype) Valid() bool {
	_, ok := elemSizes[d]
	return ok
}

// Size returns the element size in bytes; 0 for variable length BYTES.
func (d Datatype) Size() int { return elemSizes[d] }

func (d Datatype) isFloat() bool { return d == FP16 || d == FP32 || d == FP64 }

func (d Datatype) isSigned() bool {
	return d == Int8 || d == Int16 || d == Int32 || d == Int64
}

func (d Datatype) isUnsigned() bool {
	return d == Uint8 || d == Uint16 || d == Uint32 || d == Uint64
}

func (d Datatype) isNumeric() bool { return d.isFloat() || d.isSigned() || d.isUnsigned() }

func (d Datatype) String() string { return string(d) }
