package cli

import (
	"strconv"
	"strings"

	"inferclient/internal/tensor"
)

// parseHeaders turns repeated Name:Value flags into a map. Later values win.
func parseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, usagef("header %q: want Name:Value", h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// parseInput reads NAME:DATATYPE:SHAPE:VALUES, for example
// X:FP64:1,4:0.1,0.2,0.3,0.4. BYTES values are taken literally, so they
// cannot contain commas.
func parseInput(spec string) (*tensor.Tensor, error) {
	parts := strings.SplitN(spec, ":", 4)
	if len(parts) != 4 {
		return nil, usagef("input %q: want NAME:DATATYPE:SHAPE:VALUES", spec)
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return nil, usagef("input %q: empty name", spec)
	}
	dt, err := tensor.ParseDatatype(parts[1])
	if err != nil {
		return nil, usagef("input %s: %v", name, err)
	}
	var shape []int64
	for _, d := range strings.Split(parts[2], ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(d), 10, 64)
		if err != nil || n <= 0 {
			return nil, usagef("input %s: bad dimension %q", name, d)
		}
		shape = append(shape, n)
	}
	var vals []string
	if parts[3] != "" {
		vals = strings.Split(parts[3], ",")
	}
	if dt != tensor.Bytes {
		for i := range vals {
			vals[i] = strings.TrimSpace(vals[i])
		}
	}
	t, err := tensor.ParseValues(name, dt, shape, vals)
	if err != nil {
		return nil, usagef("input %s: %v", name, err)
	}
	return t, nil
}
