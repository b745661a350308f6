package tensor

import (
	"encoding/binary"
	"fmt"
)

// Binary returns the wire form used by the binary data extension. BYTES
// elements are each prefixed with a 4-byte little-endian length.
func (t *Tensor) Binary() []byte {
	if t.Datatype != Bytes {
		return append([]byte(nil), t.raw...)
	}
	n := 0
	for _, e := range t.elems {
		n += 4 + len(e)
	}
	out := make([]byte, 0, n)
	var prefix [4]byte
	for _, e := range t.elems {
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(e)))
		out = append(out, prefix[:]...)
		out = append(out, e...)
	}
	return out
}

// FromBinary decodes the binary data extension form of a tensor.
func FromBinary(name string, dt Datatype, shape []int64, b []byte) (*Tensor, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("tensor %q: unsupported datatype %q", name, dt)
	}
	if dt != Bytes {
		t := &Tensor{Name: name, Datatype: dt, Shape: cloneShape(shape), raw: append([]byte(nil), b...)}
		if len(b)%dt.Size() != 0 {
			return nil, fmt.Errorf("tensor %q: %d bytes is not a multiple of %s element size", name, len(b), dt)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return t, nil
	}
	var elems [][]byte
	for off := 0; off < len(b); {
		if off+4 > len(b) {
			return nil, fmt.Errorf("tensor %q: truncated length prefix at offset %d", name, off)
		}
		n := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		if off+n > len(b) {
			return nil, fmt.Errorf("tensor %q: element of %d bytes overruns buffer at offset %d", name, n, off)
		}
		elems = append(elems, b[off:off+n])
		off += n
	}
	return NewBytes(name, shape, elems)
}
