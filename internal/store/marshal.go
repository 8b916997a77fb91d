package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
)

// Metadata values are stored as a tagged canonical-JSON envelope,
// {"t": kind, "v": payload}, so the sealed value union survives the
// round trip without guessing kinds from JSON shapes.
const (
	tagString     = "string"
	tagInt        = "int"
	tagFloat      = "float"
	tagStringList = "strings"
	tagIntList    = "ints"
	tagFloatList  = "floats"
)

// marshalMetaValue converts a metadata value to canonical JSON TEXT for
// storage. Canonical encoding keeps the column byte-stable for equal
// values.
func marshalMetaValue(v meta.Value) (string, error) {
	var tag string
	var payload any

	switch val := v.(type) {
	case meta.String:
		tag, payload = tagString, string(val)
	case meta.Int:
		tag, payload = tagInt, int64(val)
	case meta.Float:
		tag, payload = tagFloat, float64(val)
	case meta.StringList:
		tag, payload = tagStringList, []string(val)
	case meta.IntList:
		items := make([]any, len(val))
		for i, x := range val {
			items[i] = x
		}
		tag, payload = tagIntList, items
	case meta.FloatList:
		tag, payload = tagFloatList, []float64(val)
	default:
		return "", fmt.Errorf("marshal meta value: unsupported kind %T", v)
	}

	data, err := ident.MarshalCanonical(map[string]any{"t": tag, "v": payload})
	if err != nil {
		return "", fmt.Errorf("marshal meta value: %w", err)
	}
	return string(data), nil
}

// unmarshalMetaValue parses a stored envelope back into a metadata value.
// Numbers decode via json.Number to avoid float64 precision loss for
// integer values > 2^53.
func unmarshalMetaValue(data string) (meta.Value, error) {
	var env struct {
		T string          `json:"t"`
		V json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("unmarshal meta value: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(env.V))
	dec.UseNumber()

	switch env.T {
	case tagString:
		var s string
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("unmarshal meta string: %w", err)
		}
		return meta.String(s), nil
	case tagInt:
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("unmarshal meta int: %w", err)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("unmarshal meta int: %w", err)
		}
		return meta.Int(i), nil
	case tagFloat:
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("unmarshal meta float: %w", err)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("unmarshal meta float: %w", err)
		}
		return meta.Float(f), nil
	case tagStringList:
		var list []string
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("unmarshal meta string list: %w", err)
		}
		return meta.StringList(list), nil
	case tagIntList:
		var nums []json.Number
		if err := dec.Decode(&nums); err != nil {
			return nil, fmt.Errorf("unmarshal meta int list: %w", err)
		}
		list := make(meta.IntList, len(nums))
		for i, n := range nums {
			x, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("unmarshal meta int list: %w", err)
			}
			list[i] = x
		}
		return list, nil
	case tagFloatList:
		var list []float64
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("unmarshal meta float list: %w", err)
		}
		return meta.FloatList(list), nil
	default:
		return nil, fmt.Errorf("unmarshal meta value: unknown kind %q", env.T)
	}
}

// marshalActions converts a step's action list to canonical JSON TEXT.
func marshalActions(actions []string) (string, error) {
	data, err := ident.MarshalCanonical(actions)
	if err != nil {
		return "", fmt.Errorf("marshal actions: %w", err)
	}
	return string(data), nil
}

// unmarshalActions parses a stored action list.
func unmarshalActions(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var actions []string
	if err := json.Unmarshal([]byte(data), &actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	return actions, nil
}
