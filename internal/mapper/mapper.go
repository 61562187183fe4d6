package mapper

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Blockzilla101/sqlite-orm/internal/codec"
	"github.com/Blockzilla101/sqlite-orm/internal/reconcile"
	"github.com/Blockzilla101/sqlite-orm/internal/schema"
	"github.com/Blockzilla101/sqlite-orm/internal/sqlbuild"
	"github.com/Blockzilla101/sqlite-orm/internal/store"
)

// Mapper orchestrates model registration and CRUD against one embedded
// store. It is a single logical caller: no internal locking, no
// parallelism; callers serialize access or accept SQLite's own
// serialization.
type Mapper struct {
	store *store.Store
	blobs store.BlobStore
	codec *codec.Codec

	models      map[reflect.Type]*model
	byTable     map[string]*model
	snapshotKey string
	snapshot    *schema.Snapshot
	snapLoaded  bool
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithSnapshotKey overrides the key the schema snapshot is persisted
// under. The default is the store path plus ".schema.json".
func WithSnapshotKey(key string) Option {
	return func(m *Mapper) { m.snapshotKey = key }
}

// New creates a mapper over an open store, a blob store for the schema
// snapshot, and a codec whose registry is already populated.
func New(st *store.Store, blobs store.BlobStore, cdc *codec.Codec, opts ...Option) *Mapper {
	m := &Mapper{
		store:       st,
		blobs:       blobs,
		codec:       cdc,
		models:      make(map[reflect.Type]*model),
		byTable:     make(map[string]*model),
		snapshotKey: st.Path() + ".schema.json",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Codec returns the mapper's value codec.
func (m *Mapper) Codec() *codec.Codec {
	return m.codec
}

// RegisterReport describes what one registration changed, for
// diagnostics. Removed columns are reported, never acted on.
type RegisterReport struct {
	Table          string
	Created        bool
	Statements     []string
	AddedColumns   []string
	RemovedColumns []string
	Unmanaged      []string
	Drift          []reconcile.Drift
}

// Register finalizes a model from its prototype and overrides, brings
// the live table in line with it, and updates the persisted snapshot.
// It must run exactly once per row type, before any CRUD call for that
// type; declaration conflicts are fatal INVALID_TABLE errors.
func (m *Mapper) Register(ctx context.Context, proto Row, opts ...RegisterOption) (*RegisterReport, error) {
	mod, err := m.buildModel(proto, opts...)
	if err != nil {
		return nil, err
	}
	if _, dup := m.models[mod.typ]; dup {
		return nil, invalidTable(mod.table.Name, fmt.Sprintf("row type %s already registered", mod.typ), nil)
	}
	if prev, dup := m.byTable[mod.table.Name]; dup {
		return nil, invalidTable(mod.table.Name, fmt.Sprintf("table already registered by row type %s", prev.typ), nil)
	}

	live, err := m.store.TableInfo(ctx, mod.table.Name)
	if err != nil {
		return nil, fmt.Errorf("introspect table %q: %w", mod.table.Name, err)
	}
	plan, err := reconcile.Plan(mod.table, live, m.codec)
	if err != nil {
		return nil, invalidTable(mod.table.Name, "plan schema migration", err)
	}
	for _, stmt := range plan.Statements {
		if _, err := m.store.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema migration %q: %w", stmt, err)
		}
	}

	report := &RegisterReport{
		Table:      mod.table.Name,
		Created:    plan.Created,
		Statements: plan.Statements,
		Unmanaged:  plan.Unmanaged,
		Drift:      plan.Drift,
	}
	if err := m.updateSnapshot(mod, report); err != nil {
		return nil, err
	}

	m.models[mod.typ] = mod
	m.byTable[mod.table.Name] = mod
	return report, nil
}

// updateSnapshot records the declared schema under the table key,
// writing only when the column set actually changed.
func (m *Mapper) updateSnapshot(mod *model, report *RegisterReport) error {
	if err := m.loadSnapshot(); err != nil {
		return err
	}

	key := mod.table.Name
	prev, had := m.snapshot.Models[key]
	added, removed := schema.DiffColumns(prev, mod.table)
	report.AddedColumns = added
	report.RemovedColumns = removed

	if had && len(added) == 0 && len(removed) == 0 {
		return nil
	}
	m.snapshot.Models[key] = mod.table
	data, err := m.snapshot.Encode()
	if err != nil {
		return err
	}
	if err := m.blobs.Save(m.snapshotKey, data); err != nil {
		return fmt.Errorf("persist schema snapshot: %w", err)
	}
	return nil
}

func (m *Mapper) loadSnapshot() error {
	if m.snapLoaded {
		return nil
	}
	data, ok, err := m.blobs.Load(m.snapshotKey)
	if err != nil {
		return fmt.Errorf("load schema snapshot: %w", err)
	}
	if !ok {
		m.snapshot = schema.NewSnapshot()
		m.snapLoaded = true
		return nil
	}
	snap, err := schema.DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("load schema snapshot: %w", err)
	}
	m.snapshot = snap
	m.snapLoaded = true
	return nil
}

// modelFor resolves the registered model for a row value. CRUD on an
// unregistered type is a hard error, not undefined behavior.
func (m *Mapper) modelFor(row any) (*model, error) {
	t := reflect.TypeOf(row)
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, invalidTable("", fmt.Sprintf("row must be a struct pointer, got %T", row), nil)
	}
	mod, ok := m.models[t.Elem()]
	if !ok {
		return nil, invalidTable("", fmt.Sprintf("row type %s is not registered", t.Elem()), nil)
	}
	return mod, nil
}

// FindOne fetches exactly one row into dst. idOrQuery is either a
// scalar primary-key value, kind-checked against the declared key type,
// or a SelectQuery used with LIMIT 1 forced. Zero matches is NOT_FOUND.
func (m *Mapper) FindOne(ctx context.Context, dst Row, idOrQuery any) error {
	mod, err := m.modelFor(dst)
	if err != nil {
		return err
	}
	q, err := m.selectFor(mod, idOrQuery)
	if err != nil {
		return err
	}
	q.Limit = 1

	stmt, err := sqlbuild.Select(mod.table, q)
	if err != nil {
		return invalidData(mod.table.Name, "", "build select", err)
	}
	rowData, ok, err := m.store.QueryOne(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("find one in %q: %w", mod.table.Name, err)
	}
	if !ok {
		return notFound(mod.table.Name, "no matching row")
	}
	return m.decodeRow(mod, rowData, dst)
}

// FindOneOptional is FindOne with NOT_FOUND converted into a fresh,
// unsaved instance cloned from the prototype. Every other error still
// propagates.
func (m *Mapper) FindOneOptional(ctx context.Context, dst Row, idOrQuery any) error {
	err := m.FindOne(ctx, dst, idOrQuery)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return err
	}
	mod, merr := m.modelFor(dst)
	if merr != nil {
		return merr
	}
	mod.freshInstance(dst)
	return nil
}

// selectFor turns a scalar id or a SelectQuery into the final query.
func (m *Mapper) selectFor(mod *model, idOrQuery any) (sqlbuild.SelectQuery, error) {
	switch q := idOrQuery.(type) {
	case sqlbuild.SelectQuery:
		return q, nil
	case *sqlbuild.SelectQuery:
		return *q, nil
	}

	if !mod.hasPK {
		return sqlbuild.SelectQuery{}, invalidTable(mod.table.Name, "no primary key declared for id lookup", nil)
	}
	pkValue, err := m.serializeColumn(mod.table.Name, mod.pk, idOrQuery)
	if err != nil {
		return sqlbuild.SelectQuery{}, err
	}
	return sqlbuild.SelectQuery{
		Where: &sqlbuild.Where{
			Text: fmt.Sprintf("%q = ?", mod.pk.PhysicalName()),
			Args: []any{pkValue},
		},
	}, nil
}

// FindMany fetches every matching row into out, which must be a pointer
// to a slice of a registered row type (values or pointers). Iteration
// order is the store's row order for the issued statement; an empty
// result is a valid empty slice.
func (m *Mapper) FindMany(ctx context.Context, out any, q sqlbuild.SelectQuery) error {
	ov := reflect.ValueOf(out)
	if ov.Kind() != reflect.Pointer || ov.IsNil() || ov.Elem().Kind() != reflect.Slice {
		return invalidTable("", fmt.Sprintf("result must be a pointer to slice, got %T", out), nil)
	}
	sliceType := ov.Elem().Type()
	elemType := sliceType.Elem()
	ptrElems := elemType.Kind() == reflect.Pointer
	structType := elemType
	if ptrElems {
		structType = elemType.Elem()
	}
	mod, ok := m.models[structType]
	if !ok {
		return invalidTable("", fmt.Sprintf("row type %s is not registered", structType), nil)
	}

	stmt, err := sqlbuild.Select(mod.table, q)
	if err != nil {
		return invalidData(mod.table.Name, "", "build select", err)
	}
	rows, err := m.store.QueryAll(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("find many in %q: %w", mod.table.Name, err)
	}

	result := reflect.MakeSlice(sliceType, 0, len(rows))
	for _, rowData := range rows {
		inst := reflect.New(structType)
		row, ok := inst.Interface().(Row)
		if !ok {
			return invalidTable(mod.table.Name, fmt.Sprintf("row type %s does not embed BaseRow", structType), nil)
		}
		if err := m.decodeRow(mod, rowData, row); err != nil {
			return err
		}
		if ptrElems {
			result = reflect.Append(result, inst)
		} else {
			result = reflect.Append(result, inst.Elem())
		}
	}
	ov.Elem().Set(result)
	return nil
}

// Count returns the number of rows matching where; nil matches all.
func (m *Mapper) Count(ctx context.Context, proto Row, where *sqlbuild.Where) (int64, error) {
	mod, err := m.modelFor(proto)
	if err != nil {
		return 0, err
	}
	stmt, err := sqlbuild.CountWhere(mod.table, where)
	if err != nil {
		return 0, invalidData(mod.table.Name, "", "build count", err)
	}
	rows, err := m.store.QueryValues(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, fmt.Errorf("count in %q: %w", mod.table.Name, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	n, ok := asInt64(rows[0][0])
	if !ok {
		return 0, invalidData(mod.table.Name, "", fmt.Sprintf("count returned %T", rows[0][0]), nil)
	}
	return n, nil
}

// Aggregate runs an aggregate select and returns raw tuples; columns are
// interpreted positionally by the caller, not mapped into row instances.
func (m *Mapper) Aggregate(ctx context.Context, proto Row, q sqlbuild.AggregateQuery) ([][]any, error) {
	mod, err := m.modelFor(proto)
	if err != nil {
		return nil, err
	}
	stmt, err := sqlbuild.AggregateSelect(mod.table, q)
	if err != nil {
		return nil, invalidData(mod.table.Name, "", "build aggregate", err)
	}
	rows, err := m.store.QueryValues(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate in %q: %w", mod.table.Name, err)
	}
	return rows, nil
}

// Save inserts the row when it is new, otherwise updates it keyed on the
// current primary-key value. The same instance is mutated in place: a
// successful insert assigns the generated id and flips IsNew.
func (m *Mapper) Save(ctx context.Context, row Row) error {
	mod, err := m.modelFor(row)
	if err != nil {
		return err
	}
	values, err := m.encodeRow(mod, row)
	if err != nil {
		return err
	}

	if row.IsNew() {
		stmt, err := sqlbuild.Insert(mod.table, values)
		if err != nil {
			return invalidData(mod.table.Name, "", "build insert", err)
		}
		res, err := m.store.Exec(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return fmt.Errorf("insert into %q: %w", mod.table.Name, err)
		}
		var id int64
		if mod.autoIncrement {
			id, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("insert into %q: generated id: %w", mod.table.Name, err)
			}
		}
		row.base().markPersisted(id)
		return nil
	}

	if !mod.hasPK {
		return invalidTable(mod.table.Name, "cannot update a table with no primary key", nil)
	}
	stmt, err := sqlbuild.Update(mod.table, values)
	if err != nil {
		return invalidData(mod.table.Name, "", "build update", err)
	}
	if _, err := m.store.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
		return fmt.Errorf("update %q: %w", mod.table.Name, err)
	}
	return nil
}

// Delete removes every row matching the query. No row-count feedback is
// guaranteed beyond what the store reports.
func (m *Mapper) Delete(ctx context.Context, proto Row, q sqlbuild.DeleteQuery) error {
	mod, err := m.modelFor(proto)
	if err != nil {
		return err
	}
	stmt, err := sqlbuild.Delete(mod.table, q)
	if err != nil {
		return invalidData(mod.table.Name, "", "build delete", err)
	}
	if _, err := m.store.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
		return fmt.Errorf("delete from %q: %w", mod.table.Name, err)
	}
	return nil
}
