package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockzilla101/sqlite-orm/internal/codec"
	"github.com/Blockzilla101/sqlite-orm/internal/schema"
	"github.com/Blockzilla101/sqlite-orm/internal/store"
	"github.com/Blockzilla101/sqlite-orm/internal/testutil"
)

func declaredUsers() schema.Table {
	return schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeInteger, Nullable: true, PrimaryKey: true, AutoIncrement: true},
			{Name: "name", Type: schema.TypeString, Default: "anon"},
			{Name: "score", Type: schema.TypeNumber, Nullable: true},
		},
	}
}

func apply(t *testing.T, st *store.Store, statements []string) {
	t.Helper()
	ctx := context.Background()
	for _, stmt := range statements {
		_, err := st.Exec(ctx, stmt)
		require.NoError(t, err)
	}
}

func TestPlan_CreatesMissingTable(t *testing.T) {
	cdc := codec.New(codec.NewRegistry())

	res, err := Plan(declaredUsers(), nil, cdc)
	require.NoError(t, err)

	assert.True(t, res.Created)
	require.Len(t, res.Statements, 1)
	assert.Contains(t, res.Statements[0], `CREATE TABLE "users"`)
	assert.Equal(t, []string{"id", "name", "score"}, res.AddedColumns)
	assert.Empty(t, res.Unmanaged)
	assert.Empty(t, res.Drift)
}

func TestPlan_Converges(t *testing.T) {
	st := testutil.MemoryStore(t)
	ctx := context.Background()
	cdc := codec.New(codec.NewRegistry())
	users := declaredUsers()

	live, err := st.TableInfo(ctx, users.Name)
	require.NoError(t, err)
	res, err := Plan(users, live, cdc)
	require.NoError(t, err)
	require.True(t, res.Created)
	apply(t, st, res.Statements)

	// A second plan over the created table is empty.
	live, err = st.TableInfo(ctx, users.Name)
	require.NoError(t, err)
	res, err = Plan(users, live, cdc)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, res.Statements)
	assert.Empty(t, res.AddedColumns)
	assert.Empty(t, res.Unmanaged)
	assert.Empty(t, res.Drift)
}

func TestPlan_AddsMissingColumns(t *testing.T) {
	st := testutil.MemoryStore(t)
	ctx := context.Background()
	cdc := codec.New(codec.NewRegistry())
	users := declaredUsers()

	live, err := st.TableInfo(ctx, users.Name)
	require.NoError(t, err)
	res, err := Plan(users, live, cdc)
	require.NoError(t, err)
	apply(t, st, res.Statements)

	grown := users
	grown.Columns = append(grown.Columns,
		schema.Column{Name: "bio", Type: schema.TypeString, Nullable: true},
		schema.Column{Name: "flags", MappedTo: "flag_bits", Type: schema.TypeInteger, Default: int64(0)},
	)

	live, err = st.TableInfo(ctx, grown.Name)
	require.NoError(t, err)
	res, err = Plan(grown, live, cdc)
	require.NoError(t, err)

	assert.False(t, res.Created)
	require.Len(t, res.Statements, 2)
	assert.Contains(t, res.Statements[0], `ALTER TABLE "users" ADD COLUMN "bio" TEXT`)
	assert.Contains(t, res.Statements[1], `ALTER TABLE "users" ADD COLUMN "flag_bits" INTEGER NOT NULL DEFAULT 0`)
	assert.Equal(t, []string{"bio", "flag_bits"}, res.AddedColumns)

	// Applying and replanning converges here too.
	apply(t, st, res.Statements)
	live, err = st.TableInfo(ctx, grown.Name)
	require.NoError(t, err)
	res, err = Plan(grown, live, cdc)
	require.NoError(t, err)
	assert.Empty(t, res.Statements)
}

func TestPlan_SkipsAlreadyLiveColumns(t *testing.T) {
	st := testutil.MemoryStore(t)
	ctx := context.Background()
	cdc := codec.New(codec.NewRegistry())
	users := declaredUsers()

	// Simulate a partially applied plan: the table exists and one of the
	// two new columns already landed.
	live, err := st.TableInfo(ctx, users.Name)
	require.NoError(t, err)
	res, err := Plan(users, live, cdc)
	require.NoError(t, err)
	apply(t, st, res.Statements)
	apply(t, st, []string{`ALTER TABLE "users" ADD COLUMN "bio" TEXT`})

	grown := users
	grown.Columns = append(grown.Columns,
		schema.Column{Name: "bio", Type: schema.TypeString, Nullable: true},
		schema.Column{Name: "age", Type: schema.TypeInteger, Nullable: true},
	)

	live, err = st.TableInfo(ctx, grown.Name)
	require.NoError(t, err)
	res, err = Plan(grown, live, cdc)
	require.NoError(t, err)

	require.Len(t, res.Statements, 1)
	assert.Contains(t, res.Statements[0], `"age"`)
	assert.Equal(t, []string{"age"}, res.AddedColumns)
}

func TestPlan_ReportsUnmanagedColumns(t *testing.T) {
	st := testutil.MemoryStore(t)
	ctx := context.Background()
	cdc := codec.New(codec.NewRegistry())

	apply(t, st, []string{
		`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY, "name" TEXT NOT NULL DEFAULT 'anon', "score" REAL, "legacy" TEXT)`,
	})

	live, err := st.TableInfo(ctx, "users")
	require.NoError(t, err)
	res, err := Plan(declaredUsers(), live, cdc)
	require.NoError(t, err)

	assert.Empty(t, res.Statements)
	assert.Equal(t, []string{"legacy"}, res.Unmanaged)
}

func TestPlan_ReportsDrift(t *testing.T) {
	st := testutil.MemoryStore(t)
	ctx := context.Background()
	cdc := codec.New(codec.NewRegistry())

	// name is live as INTEGER and nullable; declared wants TEXT NOT NULL.
	apply(t, st, []string{
		`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY, "name" INTEGER, "score" REAL)`,
	})

	live, err := st.TableInfo(ctx, "users")
	require.NoError(t, err)
	res, err := Plan(declaredUsers(), live, cdc)
	require.NoError(t, err)

	assert.Empty(t, res.Statements)
	require.Len(t, res.Drift, 2)

	kinds := map[DriftKind]Drift{}
	for _, d := range res.Drift {
		assert.Equal(t, "name", d.Column)
		kinds[d.Kind] = d
	}
	require.Contains(t, kinds, DriftType)
	assert.Equal(t, "TEXT", kinds[DriftType].Declared)
	assert.Equal(t, "INTEGER", kinds[DriftType].Live)
	require.Contains(t, kinds, DriftNullability)
	assert.Equal(t, "NOT NULL", kinds[DriftNullability].Declared)
	assert.Equal(t, "NULL", kinds[DriftNullability].Live)
}

func TestPlan_InvalidDeclaration(t *testing.T) {
	cdc := codec.New(codec.NewRegistry())
	bad := schema.Table{Name: "t", Columns: []schema.Column{
		{Name: "a", Type: "decimal"},
	}}
	_, err := Plan(bad, nil, cdc)
	require.Error(t, err)
}
