package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Wire tags for the {type, data} envelope. These are an on-disk contract:
// persisted databases must stay readable, so the tag strings never change.
const (
	tagMap       = "Map"
	tagByteArray = "ByteArray"
	tagUnknown   = "unknown"
	customPrefix = "custom-"
)

// ErrUnknownCustomType is returned when a custom-<Name> tag names a type
// absent from the registry. Decoding cannot proceed without it.
var ErrUnknownCustomType = errors.New("unknown custom type")

// ErrUnknownTaggedType is returned for a type tag outside the wire format.
var ErrUnknownTaggedType = errors.New("unknown tagged type")

// Codec encodes runtime values to a JSON-safe tagged form and back.
// The registry is owned by the codec and must be fully populated before
// the first Encode or Decode call.
type Codec struct {
	reg *Registry
}

// New creates a codec over the given registry.
func New(reg *Registry) *Codec {
	return &Codec{reg: reg}
}

// Registry returns the codec's custom-type registry.
func (c *Codec) Registry() *Registry {
	return c.reg
}

// Encode converts a runtime value into its JSON-representable tagged
// form. Scalars pass through (integers normalized to int64, floats to
// float64). Slices map element-wise and maps entry-wise, silently
// dropping unencodable elements. Struct fields named in ignored are
// stripped and permanently lost on the round trip.
func (c *Codec) Encode(v any, ignored ...string) (any, error) {
	ign := make(map[string]bool, len(ignored))
	for _, f := range ignored {
		ign[f] = true
	}
	out, ok, err := c.encodeValue(reflect.ValueOf(v), ign)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cannot encode value of type %T", v)
	}
	return out, nil
}

// encodeValue resolves the value's kind in fixed priority order: scalar,
// bytes, registered, mapping, sequence, plain struct. The second return
// is false for unencodable kinds, which callers drop when inside a
// container and reject at the top level.
func (c *Codec) encodeValue(rv reflect.Value, ignored map[string]bool) (any, bool, error) {
	if !rv.IsValid() {
		return nil, true, nil
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil, true, nil
		}
		return c.encodeValue(rv.Elem(), ignored)

	case reflect.Pointer:
		if rv.IsNil() {
			return nil, true, nil
		}
		return c.encodeValue(rv.Elem(), ignored)

	case reflect.Bool:
		return rv.Bool(), true, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			// Not representable in the wire format's integer range.
			return nil, false, nil
		}
		return int64(u), true, nil

	case reflect.Float32, reflect.Float64:
		return rv.Float(), true, nil

	case reflect.String:
		return rv.String(), true, nil

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			data := base64.StdEncoding.EncodeToString(rv.Bytes())
			return map[string]any{"type": tagByteArray, "data": data}, true, nil
		}
		return c.encodeSequence(rv)

	case reflect.Map:
		return c.encodeMapping(rv)

	case reflect.Struct:
		if reg, ok := c.reg.lookupByType(rv.Type()); ok {
			fields, err := c.encodeFields(rv, reg.Ignored)
			if err != nil {
				return nil, false, err
			}
			return map[string]any{"type": customPrefix + reg.Name, "data": fields}, true, nil
		}
		fields, err := c.encodeFields(rv, ignored)
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"type": tagUnknown, "data": fields}, true, nil

	default:
		// func, chan, complex, uintptr, unsafe pointer
		return nil, false, nil
	}
}

func (c *Codec) encodeSequence(rv reflect.Value) (any, bool, error) {
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, ok, err := c.encodeValue(rv.Index(i), nil)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		out = append(out, elem)
	}
	return out, true, nil
}

// encodeMapping renders a map as {type: "Map", data: [[k, v], ...]}.
// Entries are sorted by the JSON form of the encoded key so output is
// deterministic regardless of Go map iteration order.
func (c *Codec) encodeMapping(rv reflect.Value) (any, bool, error) {
	type entry struct {
		sortKey string
		pair    []any
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, ok, err := c.encodeValue(iter.Key(), nil)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		v, ok, err := c.encodeValue(iter.Value(), nil)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, false, fmt.Errorf("encode map key: %w", err)
		}
		entries = append(entries, entry{sortKey: string(keyJSON), pair: []any{k, v}})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].sortKey < entries[j].sortKey })

	data := make([]any, len(entries))
	for i, e := range entries {
		data[i] = e.pair
	}
	return map[string]any{"type": tagMap, "data": data}, true, nil
}

// encodeFields maps a struct field-wise. Field names follow the json tag
// when present; unexported, ignored, and unencodable fields are dropped.
func (c *Codec) encodeFields(rv reflect.Value, ignored map[string]bool) (map[string]any, error) {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "" || ignored[name] || ignored[f.Name] {
			continue
		}
		v, ok, err := c.encodeValue(rv.Field(i), nil)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if !ok {
			continue
		}
		out[name] = v
	}
	return out, nil
}

// fieldName returns the wire name for a struct field: the json tag when
// present, the Go name otherwise, "" when the field is tagged out.
func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// Decode is the exact inverse of Encode. Tagged envelopes reconstruct
// maps, byte buffers, and registered custom types; {type: "unknown"}
// yields the decoded data as a plain field map since the original type
// cannot be recovered.
func (c *Codec) Decode(j any) (any, error) {
	switch v := j.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", v, err)
		}
		return f, nil
	case int:
		return int64(v), nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			dec, err := c.Decode(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		return c.decodeEnvelope(v)
	default:
		return nil, fmt.Errorf("cannot decode value of type %T", j)
	}
}

func (c *Codec) decodeEnvelope(m map[string]any) (any, error) {
	tag, ok := m["type"].(string)
	if !ok {
		return c.decodeFieldMap(m)
	}

	switch {
	case tag == tagMap:
		return c.decodeMapping(m["data"])

	case tag == tagByteArray:
		text, ok := m["data"].(string)
		if !ok {
			return nil, fmt.Errorf("ByteArray data is %T, want base64 string", m["data"])
		}
		buf, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("decode ByteArray: %w", err)
		}
		return buf, nil

	case tag == tagUnknown:
		if fields, ok := m["data"].(map[string]any); ok {
			return c.decodeFieldMap(fields)
		}
		return c.Decode(m["data"])

	case strings.HasPrefix(tag, customPrefix):
		return c.decodeCustom(strings.TrimPrefix(tag, customPrefix), m["data"])

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaggedType, tag)
	}
}

func (c *Codec) decodeFieldMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		dec, err := c.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = dec
	}
	return out, nil
}

// decodeMapping rebuilds an associative container from a [[k, v], ...]
// entry list. When every key is a string the result is a map[string]any;
// otherwise map[any]any.
func (c *Codec) decodeMapping(data any) (any, error) {
	entries, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("Map data is %T, want entry array", data)
	}
	keys := make([]any, 0, len(entries))
	vals := make([]any, 0, len(entries))
	allStrings := true
	for i, e := range entries {
		pair, ok := e.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("Map entry %d is not a 2-element array", i)
		}
		k, err := c.Decode(pair[0])
		if err != nil {
			return nil, fmt.Errorf("Map entry %d key: %w", i, err)
		}
		v, err := c.Decode(pair[1])
		if err != nil {
			return nil, fmt.Errorf("Map entry %d value: %w", i, err)
		}
		if _, isString := k.(string); !isString {
			allStrings = false
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}

	if allStrings {
		out := make(map[string]any, len(keys))
		for i := range keys {
			out[keys[i].(string)] = vals[i]
		}
		return out, nil
	}
	out := make(map[any]any, len(keys))
	for i := range keys {
		if !reflect.TypeOf(keys[i]).Comparable() {
			return nil, fmt.Errorf("Map entry %d key of type %T is not usable as a map key", i, keys[i])
		}
		out[keys[i]] = vals[i]
	}
	return out, nil
}

// decodeCustom constructs a default instance of the registered type and
// overlays the decoded fields onto it. A missing registration is a hard
// failure: the stored data cannot be interpreted without it.
func (c *Codec) decodeCustom(name string, data any) (any, error) {
	reg, ok := c.reg.lookupByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCustomType, name)
	}
	fields, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("custom type %q: data is %T, want object", name, data)
	}
	decoded, err := c.decodeFieldMap(fields)
	if err != nil {
		return nil, fmt.Errorf("custom type %q: %w", name, err)
	}

	inst := reflect.New(reg.Type)
	if err := overlayStruct(inst.Elem(), decoded); err != nil {
		return nil, fmt.Errorf("custom type %q: %w", name, err)
	}
	if reg.Pointer {
		return inst.Interface(), nil
	}
	return inst.Elem().Interface(), nil
}

// AssignInto stores an already-decoded value into dst, which must be a
// non-nil pointer, converting between compatible kinds the same way
// custom-type overlay does. The mapper uses it to move deserialized
// column values onto typed row fields.
func AssignInto(dst any, v any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("assign target must be a non-nil pointer, got %T", dst)
	}
	return assignValue(rv.Elem(), v)
}

// overlayStruct assigns decoded field values onto a struct by wire name.
// Fields absent from the decoded map keep their zero value.
func overlayStruct(dst reflect.Value, fields map[string]any) error {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "" {
			continue
		}
		v, ok := fields[name]
		if !ok {
			continue
		}
		if err := assignValue(dst.Field(i), v); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// assignValue stores a decoded value into a typed destination, converting
// between compatible numeric kinds and recursing into pointers, structs,
// maps, and slices.
func assignValue(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Pointer:
		p := reflect.New(dst.Type().Elem())
		if err := assignValue(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil

	case reflect.Bool:
		if b, ok := v.(bool); ok {
			dst.SetBool(b)
			return nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch n := v.(type) {
		case int64:
			dst.SetInt(n)
			return nil
		case float64:
			if n == math.Trunc(n) {
				dst.SetInt(int64(n))
				return nil
			}
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, ok := v.(int64); ok && n >= 0 {
			dst.SetUint(uint64(n))
			return nil
		}

	case reflect.Float32, reflect.Float64:
		switch n := v.(type) {
		case float64:
			dst.SetFloat(n)
			return nil
		case int64:
			dst.SetFloat(float64(n))
			return nil
		}

	case reflect.String:
		if s, ok := v.(string); ok {
			dst.SetString(s)
			return nil
		}

	case reflect.Struct:
		if fields, ok := v.(map[string]any); ok {
			return overlayStruct(dst, fields)
		}

	case reflect.Map:
		return assignMap(dst, v)

	case reflect.Slice:
		if elems, ok := v.([]any); ok {
			out := reflect.MakeSlice(dst.Type(), len(elems), len(elems))
			for i, e := range elems {
				if err := assignValue(out.Index(i), e); err != nil {
					return fmt.Errorf("index %d: %w", i, err)
				}
			}
			dst.Set(out)
			return nil
		}

	case reflect.Interface:
		dst.Set(rv)
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
}

func assignMap(dst reflect.Value, v any) error {
	out := reflect.MakeMap(dst.Type())
	setEntry := func(k, val any) error {
		kv := reflect.New(dst.Type().Key()).Elem()
		if err := assignValue(kv, k); err != nil {
			return fmt.Errorf("key %v: %w", k, err)
		}
		vv := reflect.New(dst.Type().Elem()).Elem()
		if err := assignValue(vv, val); err != nil {
			return fmt.Errorf("value for key %v: %w", k, err)
		}
		out.SetMapIndex(kv, vv)
		return nil
	}
	switch m := v.(type) {
	case map[string]any:
		for k, val := range m {
			if err := setEntry(k, val); err != nil {
				return err
			}
		}
	case map[any]any:
		for k, val := range m {
			if err := setEntry(k, val); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
	}
	dst.Set(out)
	return nil
}
