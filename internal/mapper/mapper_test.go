package mapper_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockzilla101/sqlite-orm/internal/codec"
	"github.com/Blockzilla101/sqlite-orm/internal/mapper"
	"github.com/Blockzilla101/sqlite-orm/internal/schema"
	"github.com/Blockzilla101/sqlite-orm/internal/sqlbuild"
	"github.com/Blockzilla101/sqlite-orm/internal/store"
	"github.com/Blockzilla101/sqlite-orm/internal/testutil"
)

type Foo struct {
	mapper.BaseRow
	Foo string         `json:"foo"`
	Bar map[string]any `json:"bar"`
}

func fooPrototype() *Foo {
	return &Foo{Foo: "bar", Bar: map[string]any{"a": int64(1)}}
}

func newMapper(t *testing.T) (*mapper.Mapper, *store.MemoryBlobStore) {
	t.Helper()
	st := testutil.MemoryStore(t)
	blobs := store.NewMemoryBlobStore()
	cdc := codec.New(codec.NewRegistry())
	return mapper.New(st, blobs, cdc), blobs
}

func registerFoo(t *testing.T, m *mapper.Mapper) *mapper.RegisterReport {
	t.Helper()
	report, err := m.Register(context.Background(), fooPrototype())
	require.NoError(t, err)
	return report
}

func TestRegister_CreatesTable(t *testing.T) {
	m, _ := newMapper(t)

	report := registerFoo(t, m)
	assert.Equal(t, "foo", report.Table)
	assert.True(t, report.Created)
	require.Len(t, report.Statements, 1)
	assert.Contains(t, report.Statements[0], `CREATE TABLE "foo"`)
	assert.Contains(t, report.Statements[0], `"id" INTEGER PRIMARY KEY`)
	assert.Contains(t, report.Statements[0], `"foo" TEXT NOT NULL DEFAULT 'bar'`)
	assert.Contains(t, report.Statements[0], `"bar" TEXT`)
	assert.Equal(t, []string{"id", "foo", "bar"}, report.AddedColumns)
}

func TestRegister_DuplicateType(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)

	_, err := m.Register(context.Background(), fooPrototype())
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidTable(err))
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegister_DuplicateTable(t *testing.T) {
	type Other struct {
		mapper.BaseRow
		Name string `json:"name"`
	}
	m, _ := newMapper(t)
	registerFoo(t, m)

	_, err := m.Register(context.Background(), &Other{}, mapper.WithTableName("foo"))
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidTable(err))
	assert.Contains(t, err.Error(), "table already registered")
}

func TestRegister_NilAnyFieldNeedsOverride(t *testing.T) {
	type Loose struct {
		mapper.BaseRow
		Data any `json:"data"`
	}
	m, _ := newMapper(t)
	ctx := context.Background()

	_, err := m.Register(ctx, &Loose{})
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidTable(err))
	assert.Contains(t, err.Error(), "cannot infer type")

	// An explicit type override resolves the inference failure.
	_, err = m.Register(ctx, &Loose{}, mapper.WithColumn(mapper.ColumnOverride{
		Name: "data",
		Type: schema.TypeJSON,
	}))
	require.NoError(t, err)
}

func TestSave_InsertThenUpdate(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)
	ctx := context.Background()

	f := &Foo{Foo: "hello", Bar: map[string]any{"k": int64(2)}}
	require.True(t, f.IsNew())

	require.NoError(t, m.Save(ctx, f))
	assert.False(t, f.IsNew())
	assert.Equal(t, int64(1), f.ID)

	// A second save on the same instance is an update, not a new row.
	f.Foo = "world"
	require.NoError(t, m.Save(ctx, f))

	n, err := m.Count(ctx, &Foo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got Foo
	require.NoError(t, m.FindOne(ctx, &got, int64(1)))
	assert.Equal(t, int64(1), got.ID)
	assert.False(t, got.IsNew())
	assert.Equal(t, "world", got.Foo)
	assert.Equal(t, map[string]any{"k": int64(2)}, got.Bar)
}

func TestFindOne_ByQuery(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, &Foo{Foo: "first"}))
	require.NoError(t, m.Save(ctx, &Foo{Foo: "second"}))

	var got Foo
	err := m.FindOne(ctx, &got, sqlbuild.SelectQuery{
		Where: &sqlbuild.Where{Text: `"foo" = ?`, Args: []any{"second"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, "second", got.Foo)
}

func TestFindOne_NotFound(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)

	var got Foo
	err := m.FindOne(context.Background(), &got, int64(999))
	require.Error(t, err)
	assert.True(t, mapper.IsNotFound(err))
}

func TestFindOne_IDKindChecked(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)

	var got Foo
	err := m.FindOne(context.Background(), &got, "not-an-id")
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidData(err))
}

func TestFindOneOptional_MissingYieldsFreshInstance(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)

	var got Foo
	require.NoError(t, m.FindOneOptional(context.Background(), &got, int64(999)))
	assert.True(t, got.IsNew())
	assert.Equal(t, mapper.UnsavedID, got.ID)
	// Field values come from the prototype defaults.
	assert.Equal(t, "bar", got.Foo)
	assert.Equal(t, map[string]any{"a": int64(1)}, got.Bar)
}

func TestFindOneOptional_OtherErrorsPropagate(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)

	var got Foo
	err := m.FindOneOptional(context.Background(), &got, "not-an-id")
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidData(err))
}

func TestFindMany(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, m.Save(ctx, &Foo{Foo: name}))
	}

	var values []Foo
	err := m.FindMany(ctx, &values, sqlbuild.SelectQuery{
		Where: &sqlbuild.Where{Text: `"foo" != ?`, Args: []any{"b"}},
		Order: &sqlbuild.Order{Column: "id", Desc: true},
	})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "c", values[0].Foo)
	assert.Equal(t, "a", values[1].Foo)
	assert.False(t, values[0].IsNew())

	// Pointer element slices work too.
	var ptrs []*Foo
	require.NoError(t, m.FindMany(ctx, &ptrs, sqlbuild.SelectQuery{}))
	assert.Len(t, ptrs, 3)

	var none []Foo
	err = m.FindMany(ctx, &none, sqlbuild.SelectQuery{
		Where: &sqlbuild.Where{Text: `"foo" = ?`, Args: []any{"zzz"}},
	})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCount(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "b"} {
		require.NoError(t, m.Save(ctx, &Foo{Foo: name}))
	}

	n, err := m.Count(ctx, &Foo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = m.Count(ctx, &Foo{}, &sqlbuild.Where{Text: `"foo" = ?`, Args: []any{"b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAggregate(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "b"} {
		require.NoError(t, m.Save(ctx, &Foo{Foo: name}))
	}

	tuples, err := m.Aggregate(ctx, &Foo{}, sqlbuild.AggregateQuery{
		Expr:    `"foo", COUNT(*)`,
		GroupBy: []string{"foo"},
		Order:   &sqlbuild.Order{Column: "foo"},
	})
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, []any{"a", int64(1)}, tuples[0])
	assert.Equal(t, []any{"b", int64(2)}, tuples[1])
}

func TestDelete(t *testing.T) {
	m, _ := newMapper(t)
	registerFoo(t, m)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, m.Save(ctx, &Foo{Foo: name}))
	}

	err := m.Delete(ctx, &Foo{}, sqlbuild.DeleteQuery{
		Where: &sqlbuild.Where{Text: `"foo" = ?`, Args: []any{"b"}},
	})
	require.NoError(t, err)

	n, err := m.Count(ctx, &Foo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCRUDBeforeRegisterFails(t *testing.T) {
	m, _ := newMapper(t)
	ctx := context.Background()

	var got Foo
	err := m.FindOne(ctx, &got, int64(1))
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidTable(err))
	assert.Contains(t, err.Error(), "not registered")

	err = m.Save(ctx, &Foo{Foo: "x"})
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidTable(err))
}

func TestSave_KindMismatchIsInvalidData(t *testing.T) {
	type Loose struct {
		mapper.BaseRow
		Value any `json:"value"`
	}
	m, _ := newMapper(t)
	ctx := context.Background()

	// Inferred from the prototype's runtime kind: integer.
	_, err := m.Register(ctx, &Loose{Value: int64(5)})
	require.NoError(t, err)

	err = m.Save(ctx, &Loose{Value: "oops"})
	require.Error(t, err)
	assert.True(t, mapper.IsInvalidData(err))
	assert.Contains(t, err.Error(), "column=value")
}

func TestMappedToColumnRoundTrip(t *testing.T) {
	type Renamed struct {
		mapper.BaseRow
		Label string `json:"label"`
	}
	m, _ := newMapper(t)
	ctx := context.Background()

	report, err := m.Register(ctx, &Renamed{}, mapper.WithColumn(mapper.ColumnOverride{
		Name:     "label",
		MappedTo: "legacy_label",
	}))
	require.NoError(t, err)
	assert.Contains(t, report.Statements[0], `"legacy_label" TEXT`)

	require.NoError(t, m.Save(ctx, &Renamed{Label: "kept"}))

	var got Renamed
	require.NoError(t, m.FindOne(ctx, &got, int64(1)))
	assert.Equal(t, "kept", got.Label)
}

func TestCustomTypeColumnRoundTrip(t *testing.T) {
	type Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	type Marker struct {
		mapper.BaseRow
		Pos Point `json:"pos"`
	}

	st := testutil.MemoryStore(t)
	reg := codec.NewRegistry()
	require.NoError(t, reg.Register("Point", Point{}))
	m := mapper.New(st, store.NewMemoryBlobStore(), codec.New(reg))
	ctx := context.Background()

	_, err := m.Register(ctx, &Marker{})
	require.NoError(t, err)

	require.NoError(t, m.Save(ctx, &Marker{Pos: Point{X: 1.5, Y: -2}}))

	var got Marker
	require.NoError(t, m.FindOne(ctx, &got, int64(1)))
	assert.Equal(t, Point{X: 1.5, Y: -2}, got.Pos)
}

func TestRegister_SnapshotWritten(t *testing.T) {
	m, blobs := newMapper(t)
	registerFoo(t, m)

	data, ok, err := blobs.Load(":memory:.schema.json")
	require.NoError(t, err)
	require.True(t, ok)

	snap, err := schema.DecodeSnapshot(data)
	require.NoError(t, err)
	require.Contains(t, snap.Models, "foo")
	assert.Len(t, snap.Models["foo"].Columns, 3)
}

func TestRegister_SnapshotGrowsWithSchema(t *testing.T) {
	type FooV2 struct {
		mapper.BaseRow
		Foo   string         `json:"foo"`
		Bar   map[string]any `json:"bar"`
		Extra string         `json:"extra"`
	}

	st := testutil.MemoryStore(t)
	blobs := store.NewMemoryBlobStore()
	ctx := context.Background()

	m1 := mapper.New(st, blobs, codec.New(codec.NewRegistry()))
	_, err := m1.Register(ctx, fooPrototype())
	require.NoError(t, err)
	require.NoError(t, m1.Save(ctx, &Foo{Foo: "existing"}))

	// A later process declares one more column on the same table.
	m2 := mapper.New(st, blobs, codec.New(codec.NewRegistry()))
	report, err := m2.Register(ctx, &FooV2{Foo: "bar", Extra: "x"}, mapper.WithTableName("foo"))
	require.NoError(t, err)

	assert.False(t, report.Created)
	require.Len(t, report.Statements, 1)
	assert.Contains(t, report.Statements[0], `ALTER TABLE "foo" ADD COLUMN "extra" TEXT NOT NULL DEFAULT 'x'`)
	assert.Equal(t, []string{"extra"}, report.AddedColumns)
	assert.Empty(t, report.RemovedColumns)

	// Existing rows survive and pick up the declared default.
	var got FooV2
	require.NoError(t, m2.FindOne(ctx, &got, int64(1)))
	assert.Equal(t, "existing", got.Foo)
	assert.Equal(t, "x", got.Extra)

	data, ok, err := blobs.Load(":memory:.schema.json")
	require.NoError(t, err)
	require.True(t, ok)
	snap, err := schema.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Len(t, snap.Models["foo"].Columns, 4)
}

func TestRegister_SnapshotLegacyUpgrade(t *testing.T) {
	st := testutil.MemoryStore(t)
	blobs := store.NewMemoryBlobStore()
	require.NoError(t, blobs.Save(":memory:.schema.json", []byte(`{
		"bar": {"tableName": "bar", "columns": [{"name": "id", "type": "integer", "isPrimaryKey": true}]}
	}`)))

	m := mapper.New(st, blobs, codec.New(codec.NewRegistry()))
	registerFoo(t, m)

	data, ok, err := blobs.Load(":memory:.schema.json")
	require.NoError(t, err)
	require.True(t, ok)
	snap, err := schema.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, schema.SnapshotVersion, snap.Version)
	assert.Contains(t, snap.Models, "bar")
	assert.Contains(t, snap.Models, "foo")
}

func TestRegister_FileSnapshotAtDefaultKey(t *testing.T) {
	st, path := testutil.TempStore(t)
	m := mapper.New(st, store.FileBlobStore{}, codec.New(codec.NewRegistry()))

	_, err := m.Register(context.Background(), fooPrototype())
	require.NoError(t, err)

	data, err := os.ReadFile(path + ".schema.json")
	require.NoError(t, err)
	snap, err := schema.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Contains(t, snap.Models, "foo")
}

func TestWithSnapshotKey(t *testing.T) {
	st := testutil.MemoryStore(t)
	blobs := store.NewMemoryBlobStore()
	m := mapper.New(st, blobs, codec.New(codec.NewRegistry()), mapper.WithSnapshotKey("custom.json"))

	_, err := m.Register(context.Background(), fooPrototype())
	require.NoError(t, err)

	_, ok, err := blobs.Load("custom.json")
	require.NoError(t, err)
	assert.True(t, ok)
}
