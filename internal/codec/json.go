package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MarshalText serializes an encoded tagged value to JSON text for storage
// in a TEXT column. HTML escaping is disabled so the stored form matches
// the wire format byte for byte.
func MarshalText(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal tagged value: %w", err)
	}
	// Encoder adds a trailing newline, remove it.
	return strings.TrimSpace(buf.String()), nil
}

// UnmarshalText parses stored JSON text into the tagged form Decode
// expects. Numbers are read through json.Number so whole values survive
// as int64 instead of losing precision as float64.
func UnmarshalText(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse tagged value: %w", err)
	}
	return normalizeNumbers(raw)
}

// normalizeNumbers rewrites json.Number leaves into int64 when whole,
// float64 otherwise, recursing through arrays and objects.
func normalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		return f, nil
	case []any:
		for i, elem := range val {
			norm, err := normalizeNumbers(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			val[i] = norm
		}
		return val, nil
	case map[string]any:
		for k, elem := range val {
			norm, err := normalizeNumbers(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			val[k] = norm
		}
		return val, nil
	default:
		return v, nil
	}
}
