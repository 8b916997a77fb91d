package ident

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON used for content digests
// and snapshot bytes. Two trees with equal content always encode to
// identical bytes.
//
// Differences from standard json.Marshal:
//  1. Object keys NFC normalized and sorted bytewise
//  2. No HTML escaping (< > & stay literal)
//  3. Strings NFC normalized
//  4. Floats in shortest round-trip form (7.0 encodes as "7")
//  5. NaN and infinities rejected - a score that reaches encoding is
//     data, not an absence sentinel
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		return appendCanonicalString(buf, val)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("non-finite float %v is forbidden in canonical JSON", val)
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		return nil
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonicalString(buf, s); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case []float64:
		buf.WriteByte('[')
		for i, f := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonical(buf, f); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		return appendCanonicalObject(buf, val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func appendCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	normed := make(map[string]any, len(obj))
	keys := make([]string, 0, len(obj))
	for k, elem := range obj {
		nk := norm.NFC.String(k)
		if _, dup := normed[nk]; dup {
			return fmt.Errorf("object keys %q collide after NFC normalization", nk)
		}
		normed[nk] = elem
		keys = append(keys, nk)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendCanonicalString(buf, k); err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := appendCanonical(buf, normed[k]); err != nil {
			return fmt.Errorf("object[%q]: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// appendCanonicalString writes s as a JSON string: NFC normalized,
// minimal escaping, no HTML escapes.
func appendCanonicalString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8 in string %q", s)
	}
	s = norm.NFC.String(s)

	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}
