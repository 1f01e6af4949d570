package hashing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical encodes v as canonical JSON: mapping keys sorted
// lexicographically, array order preserved, unset (Go zero-value with
// `omitempty`) fields omitted, null emitted for explicit nil. Two
// semantically equal values always produce byte-identical output.
//
// Implementation note: encoding/json already sorts map[string]any keys
// and honours `omitempty`/pointer-nil semantics on structs, which
// covers "unset fields are omitted". The second pass through
// marshalSorted defends against maps embedded inside `any` fields
// (e.g. Details bags) that came from a source which does not sort
// keys, and strips the trailing newline json.Encoder always adds.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}

	raw := bytes.TrimRight(buf.Bytes(), "\n")

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical reparse: %w", err)
	}

	var out bytes.Buffer
	if err := writeSorted(&out, generic); err != nil {
		return nil, fmt.Errorf("canonical sort: %w", err)
	}
	return out.Bytes(), nil
}

func writeSorted(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeSorted(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeSorted(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
