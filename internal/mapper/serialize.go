package mapper

import (
	"fmt"
	"math"
	"reflect"

	"github.com/Blockzilla101/sqlite-orm/internal/codec"
	"github.com/Blockzilla101/sqlite-orm/internal/schema"
)

// serializeColumn converts a row field value into the shape bound as a
// SQL parameter for its declared column type. A runtime-kind mismatch is
// an INVALID_DATA error naming the column.
func (m *Mapper) serializeColumn(table string, col schema.Column, v any) (any, error) {
	phys := col.PhysicalName()
	if v == nil {
		if !col.Nullable && !col.AutoIncrement {
			return nil, invalidData(table, phys, "nil value for non-nullable column", nil)
		}
		return nil, nil
	}

	switch col.Type {
	case schema.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, kindMismatch(table, phys, "boolean", v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil

	case schema.TypeInteger:
		n, ok := asInt64(v)
		if !ok {
			return nil, kindMismatch(table, phys, "integer", v)
		}
		return n, nil

	case schema.TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		}
		if n, ok := asInt64(v); ok {
			return float64(n), nil
		}
		return nil, kindMismatch(table, phys, "number", v)

	case schema.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, kindMismatch(table, phys, "string", v)
		}
		return s, nil

	case schema.TypeBlob:
		b, ok := v.([]byte)
		if !ok {
			return nil, kindMismatch(table, phys, "blob", v)
		}
		return b, nil

	case schema.TypeJSON:
		encoded, err := m.codec.Encode(v)
		if err != nil {
			return nil, invalidData(table, phys, "encode json value", err)
		}
		text, err := codec.MarshalText(encoded)
		if err != nil {
			return nil, invalidData(table, phys, "marshal json value", err)
		}
		return text, nil

	default:
		return nil, invalidData(table, phys, fmt.Sprintf("unknown column type %q", col.Type), nil)
	}
}

// deserializeColumn converts a stored value back to the runtime shape
// for its declared column type. json columns round-trip through the
// codec; a parse or decode failure is INVALID_DATA.
func (m *Mapper) deserializeColumn(table string, col schema.Column, stored any) (any, error) {
	phys := col.PhysicalName()
	if stored == nil {
		return nil, nil
	}

	switch col.Type {
	case schema.TypeBoolean:
		switch b := stored.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
		return nil, kindMismatch(table, phys, "boolean", stored)

	case schema.TypeInteger:
		n, ok := asInt64(stored)
		if !ok {
			return nil, kindMismatch(table, phys, "integer", stored)
		}
		return n, nil

	case schema.TypeNumber:
		switch n := stored.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
		return nil, kindMismatch(table, phys, "number", stored)

	case schema.TypeString:
		switch s := stored.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return nil, kindMismatch(table, phys, "string", stored)

	case schema.TypeBlob:
		switch b := stored.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, kindMismatch(table, phys, "blob", stored)

	case schema.TypeJSON:
		var text string
		switch s := stored.(type) {
		case string:
			text = s
		case []byte:
			text = string(s)
		default:
			return nil, kindMismatch(table, phys, "json", stored)
		}
		raw, err := codec.UnmarshalText(text)
		if err != nil {
			return nil, invalidData(table, phys, "parse stored json", err)
		}
		decoded, err := m.codec.Decode(raw)
		if err != nil {
			return nil, invalidData(table, phys, "decode stored json", err)
		}
		return decoded, nil

	default:
		return nil, invalidData(table, phys, fmt.Sprintf("unknown column type %q", col.Type), nil)
	}
}

func kindMismatch(table, column, want string, got any) *Error {
	return invalidData(table, column, fmt.Sprintf("value of type %T does not match declared %s column", got, want), nil)
}

// asInt64 accepts the integer kinds plus whole floats, which SQLite can
// hand back for INTEGER columns touched by arithmetic.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// encodeRow serializes every declared column's current field value into
// the parameter map the builders consume.
func (m *Mapper) encodeRow(mod *model, row Row) (map[string]any, error) {
	rv := reflect.ValueOf(row).Elem()
	out := make(map[string]any, len(mod.table.Columns))
	for _, col := range mod.table.Columns {
		phys := col.PhysicalName()

		if col.AutoIncrement && row.IsNew() {
			// Let the store assign the rowid.
			out[phys] = nil
			continue
		}

		idx, ok := mod.fieldIndex[phys]
		if !ok {
			out[phys] = nil
			continue
		}
		field := rv.FieldByIndex(idx)
		v, err := m.serializeColumn(mod.table.Name, col, fieldValue(field))
		if err != nil {
			return nil, err
		}
		out[phys] = v
	}
	return out, nil
}

// decodeRow populates a row instance from a fetched column map.
func (m *Mapper) decodeRow(mod *model, rowData map[string]any, dst Row) error {
	rv := reflect.ValueOf(dst).Elem()
	for _, col := range mod.table.Columns {
		phys := col.PhysicalName()
		stored, ok := rowData[phys]
		if !ok {
			continue
		}
		idx, ok := mod.fieldIndex[phys]
		if !ok {
			continue
		}
		decoded, err := m.deserializeColumn(mod.table.Name, col, stored)
		if err != nil {
			return err
		}
		field := rv.FieldByIndex(idx)
		if err := codec.AssignInto(field.Addr().Interface(), decoded); err != nil {
			return invalidData(mod.table.Name, phys, "assign fetched value", err)
		}
	}
	dst.base().persisted = true
	return nil
}

// fieldValue unwraps a field for serialization, turning nil pointers and
// interfaces into nil.
func fieldValue(field reflect.Value) any {
	switch field.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if field.IsNil() {
			return nil
		}
	}
	return field.Interface()
}
