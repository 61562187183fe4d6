package mapper

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/Blockzilla101/sqlite-orm/internal/schema"
)

// model is the mapper's view of one registered row type: the declared
// table plus the field index for moving values between struct and store.
type model struct {
	table schema.Table
	typ   reflect.Type  // struct type, without the pointer
	proto reflect.Value // pointer to the default-populated prototype

	// fieldIndex maps physical column name to struct field index.
	// The id column maps to the embedded BaseRow's ID field.
	fieldIndex map[string][]int

	pk            schema.Column
	hasPK         bool
	autoIncrement bool
}

// ColumnOverride adjusts or replaces one inferred column descriptor at
// registration time. Name matches the inferred declared name.
type ColumnOverride struct {
	Name       string
	MappedTo   string
	Type       schema.ColumnType // "" keeps the inferred type
	Nullable   *bool
	Default    any
	PrimaryKey bool
	Ignore     bool // exclude the field from mapping entirely
}

// RegisterOption configures model registration.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	tableName string
	overrides []ColumnOverride
}

// WithTableName overrides the table name derived from the type name.
func WithTableName(name string) RegisterOption {
	return func(c *registerConfig) { c.tableName = name }
}

// WithColumn applies a descriptor override collected before the model is
// finalized.
func WithColumn(o ColumnOverride) RegisterOption {
	return func(c *registerConfig) { c.overrides = append(c.overrides, o) }
}

// buildModel derives the declared table from a prototype row instance.
// The prototype's field values become column defaults; field types drive
// type inference. Any violation is an INVALID_TABLE error raised before
// a single statement reaches the store.
func (m *Mapper) buildModel(proto Row, opts ...RegisterOption) (*model, error) {
	cfg := registerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	pv := reflect.ValueOf(proto)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Kind() != reflect.Struct {
		return nil, invalidTable("", fmt.Sprintf("prototype must be a non-nil struct pointer, got %T", proto), nil)
	}
	structType := pv.Elem().Type()

	tableName := cfg.tableName
	if tableName == "" {
		tableName = defaultTableName(structType.Name())
	}
	tableName = schema.NormalizeIdentifier(tableName)

	overrideByName := make(map[string]ColumnOverride, len(cfg.overrides))
	explicitPK := false
	for _, o := range cfg.overrides {
		if _, dup := overrideByName[o.Name]; dup {
			return nil, invalidTable(tableName, fmt.Sprintf("duplicate column override %q", o.Name), nil)
		}
		overrideByName[o.Name] = o
		if o.PrimaryKey && !o.Ignore {
			if explicitPK {
				return nil, invalidTable(tableName, "more than one column marked as primary key", nil)
			}
			explicitPK = true
		}
	}

	mod := &model{
		typ:        structType,
		proto:      pv,
		fieldIndex: make(map[string][]int),
	}
	var cols []schema.Column

	// The embedded BaseRow contributes the implicit id column: integer,
	// primary key, auto-increment, unless an override claims the key or
	// ignores id outright.
	idOverride, idOverridden := overrideByName["id"]
	includeID := !(idOverridden && idOverride.Ignore)
	if includeID {
		// Nullable keeps NOT NULL out of the definition; an INTEGER
		// PRIMARY KEY is implicitly non-null in SQLite, and inserting
		// NULL is how the store is asked to assign the rowid.
		idCol := schema.Column{Name: "id", Type: schema.TypeInteger, Nullable: true}
		if !explicitPK {
			idCol.PrimaryKey = true
			idCol.AutoIncrement = true
		}
		if idOverridden {
			applyOverride(&idCol, idOverride)
		}
		cols = append(cols, idCol)
	}

	for i := 0; i < structType.NumField(); i++ {
		f := structType.Field(i)
		if f.Anonymous && f.Type == reflect.TypeOf(BaseRow{}) {
			continue
		}
		if !f.IsExported() {
			continue
		}
		name := columnName(f)
		if name == "" {
			continue
		}
		o, overridden := overrideByName[name]
		if overridden && o.Ignore {
			continue
		}

		col, err := inferColumn(tableName, name, f, pv.Elem().Field(i))
		if err != nil {
			if !overridden || o.Type == "" {
				return nil, err
			}
			col = schema.Column{Name: name, Nullable: nilable(f.Type)}
		}
		if overridden {
			applyOverride(&col, o)
		}
		if col.Type == "" {
			return nil, invalidTable(tableName, fmt.Sprintf("cannot infer type for column %q", name), nil)
		}
		cols = append(cols, col)
		mod.fieldIndex[col.PhysicalName()] = f.Index
	}

	mod.table = schema.Table{Name: tableName, Columns: cols}
	if includeID {
		if idField, ok := structType.FieldByName("BaseRow"); ok {
			idIdx := append(append([]int{}, idField.Index...), 0)
			for _, c := range cols {
				if c.Name == "id" {
					mod.fieldIndex[c.PhysicalName()] = idIdx
				}
			}
		}
	}

	if err := mod.table.Validate(); err != nil {
		return nil, invalidTable(tableName, err.Error(), err)
	}
	if pk, ok := mod.table.PrimaryKey(); ok {
		mod.pk = pk
		mod.hasPK = true
		mod.autoIncrement = pk.AutoIncrement
	}
	return mod, nil
}

func applyOverride(col *schema.Column, o ColumnOverride) {
	if o.MappedTo != "" {
		col.MappedTo = o.MappedTo
	}
	if o.Type != "" {
		col.Type = o.Type
	}
	if o.Nullable != nil {
		col.Nullable = *o.Nullable
	}
	if o.Default != nil {
		col.Default = o.Default
	}
	if o.PrimaryKey {
		col.PrimaryKey = true
	}
}

// inferColumn derives a descriptor from a struct field and its prototype
// value. An interface field holding nil has no runtime kind to infer
// from and needs an explicit type override.
func inferColumn(table, name string, f reflect.StructField, protoVal reflect.Value) (schema.Column, error) {
	col := schema.Column{Name: name, Nullable: nilable(f.Type)}

	t := f.Type
	if t.Kind() == reflect.Interface {
		if protoVal.IsNil() {
			return schema.Column{}, invalidTable(table, fmt.Sprintf("cannot infer type for column %q", name), nil)
		}
		t = protoVal.Elem().Type()
		protoVal = protoVal.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		col.Type = schema.TypeString
	case reflect.Bool:
		col.Type = schema.TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		col.Type = schema.TypeInteger
	case reflect.Float32, reflect.Float64:
		col.Type = schema.TypeNumber
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			col.Type = schema.TypeBlob
		} else {
			col.Type = schema.TypeJSON
		}
	case reflect.Map, reflect.Struct, reflect.Array, reflect.Pointer:
		col.Type = schema.TypeJSON
	default:
		return schema.Column{}, invalidTable(table, fmt.Sprintf("cannot infer type for column %q from field kind %s", name, t.Kind()), nil)
	}

	if protoVal.IsValid() && !protoVal.IsZero() {
		col.Default = protoVal.Interface()
	}
	return col, nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// columnName resolves a field's declared column name: db tag, then json
// tag, then the field name with its first rune lowered.
func columnName(f reflect.StructField) string {
	if tag := f.Tag.Get("db"); tag != "" {
		if tag == "-" {
			return ""
		}
		name, _, _ := strings.Cut(tag, ",")
		return name
	}
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	runes := []rune(f.Name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// defaultTableName lowers the leading rune of the type name, matching
// the declared-name convention for columns.
func defaultTableName(typeName string) string {
	if typeName == "" {
		return typeName
	}
	runes := []rune(typeName)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// freshInstance clones the prototype into dst, resetting bookkeeping so
// the result is an unsaved row with default field values.
func (mod *model) freshInstance(dst Row) {
	dv := reflect.ValueOf(dst).Elem()
	dv.Set(mod.proto.Elem())
	base := dst.base()
	base.ID = UnsavedID
	base.persisted = false
}
