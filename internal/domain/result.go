package domain

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Result is the structured payload an executor returns for a case.
// Keys are strings; values are scalars (integers, floats, strings, bytes,
// booleans) or lists of scalars.
type Result map[string]any

// Validate checks that every key is non-empty and every value is a scalar or
// a list of scalars.
func (r Result) Validate() error {
	for k, v := range r {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidResult)
		}
		if !isScalar(v) && !isScalarList(v) {
			return fmt.Errorf("%w: key %q has unsupported type %T", ErrInvalidResult, k, v)
		}
	}
	return nil
}

// Keys returns the result keys in no particular order.
func (r Result) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	return keys
}

// MarshalResult encodes a result as JSON.
// Non-finite floats, which JSON cannot carry, are stored as the strings
// "+Inf", "-Inf" and "NaN". Binary values are stored as an object with the
// single key "$bytes" holding their standard base64 encoding.
func MarshalResult(r Result) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil result", ErrInvalidResult)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = encodable(v)
	}
	return json.Marshal(out)
}

// UnmarshalResult decodes a JSON object into a Result.
// Whole numbers decode as int64, other numbers as float64, and "$bytes"
// objects as []byte.
func UnmarshalResult(data []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidResult)
	}

	r := make(Result, len(raw))
	for k, v := range raw {
		r[k] = fromJSON(v)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func isScalarList(v any) bool {
	switch l := v.(type) {
	case []string, []int, []int64, []float64, []bool:
		return true
	case []any:
		for _, e := range l {
			if !isScalar(e) {
				return false
			}
		}
		return true
	}
	return false
}

// bytesKey marks a binary value in the JSON encoding.
const bytesKey = "$bytes"

func encodable(v any) any {
	switch x := v.(type) {
	case []byte:
		if x == nil {
			return nil
		}
		return map[string]string{bytesKey: base64.StdEncoding.EncodeToString(x)}
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = finite(f)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodable(e)
		}
		return out
	}
	return v
}

func finite(f float64) any {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return f
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		if len(x) != 1 {
			return v
		}
		enc, ok := x[bytesKey].(string)
		if !ok {
			return v
		}
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return v
		}
		return b
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromJSON(e)
		}
		return out
	}
	return v
}
