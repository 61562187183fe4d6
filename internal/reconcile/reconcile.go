// Package reconcile computes the minimal, additive migration that brings
// a live table shape in line with its declared schema. It only ever
// creates tables and adds columns; nothing live is dropped or rewritten.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/Blockzilla101/sqlite-orm/internal/codec"
	"github.com/Blockzilla101/sqlite-orm/internal/schema"
	"github.com/Blockzilla101/sqlite-orm/internal/sqlbuild"
	"github.com/Blockzilla101/sqlite-orm/internal/store"
)

// DriftKind labels a declared-vs-live mismatch that is reported but
// never auto-migrated.
type DriftKind string

const (
	DriftType        DriftKind = "type"
	DriftNullability DriftKind = "nullability"
	DriftPrimaryKey  DriftKind = "primary-key"
)

// Drift is a diagnostic for one column whose live definition differs
// from the declared one. Type-changing migrations are out of scope, so
// these are surfaced for logging only.
type Drift struct {
	Column   string
	Kind     DriftKind
	Declared string
	Live     string
}

// Result is a reconciliation plan: statements to execute in order, plus
// diagnostics about what was observed.
type Result struct {
	// Statements close the gap between live and declared. Empty when
	// the shapes already agree.
	Statements []string

	// Created is true when the plan is a single CREATE TABLE because no
	// live table existed.
	Created bool

	// AddedColumns lists the physical names the plan adds, in declared
	// order.
	AddedColumns []string

	// Unmanaged lists live columns absent from the declaration. They are
	// treated as still present, just unmanaged; old data is preserved.
	Unmanaged []string

	// Drift lists declared columns whose live definition disagrees.
	Drift []Drift
}

// Plan diffs a declared table against its introspected live column list.
// An empty live list yields exactly one CREATE TABLE. Otherwise every
// declared column with no live counterpart yields one ADD COLUMN, in
// declared order; a column already live is skipped, so re-running a
// partially applied plan is idempotent.
func Plan(declared schema.Table, live []store.ColumnInfo, cdc *codec.Codec) (Result, error) {
	if err := declared.Validate(); err != nil {
		return Result{}, err
	}

	if len(live) == 0 {
		stmt, err := sqlbuild.CreateTable(declared, cdc)
		if err != nil {
			return Result{}, err
		}
		added := make([]string, len(declared.Columns))
		for i, c := range declared.Columns {
			added[i] = c.PhysicalName()
		}
		return Result{Statements: []string{stmt}, Created: true, AddedColumns: added}, nil
	}

	liveByName := make(map[string]store.ColumnInfo, len(live))
	for _, c := range live {
		liveByName[schema.NormalizeIdentifier(c.Name)] = c
	}

	var res Result
	for _, c := range declared.Columns {
		phys := c.PhysicalName()
		info, ok := liveByName[schema.NormalizeIdentifier(phys)]
		if !ok {
			def, err := sqlbuild.ColumnDef(c, cdc)
			if err != nil {
				return Result{}, fmt.Errorf("table %q: %w", declared.Name, err)
			}
			res.Statements = append(res.Statements,
				fmt.Sprintf("ALTER TABLE %q ADD COLUMN %s", declared.Name, def))
			res.AddedColumns = append(res.AddedColumns, phys)
			continue
		}
		res.Drift = append(res.Drift, diffColumn(c, info)...)
	}

	declaredSet := make(map[string]bool, len(declared.Columns))
	for _, c := range declared.Columns {
		declaredSet[schema.NormalizeIdentifier(c.PhysicalName())] = true
	}
	for _, c := range live {
		if !declaredSet[schema.NormalizeIdentifier(c.Name)] {
			res.Unmanaged = append(res.Unmanaged, c.Name)
		}
	}

	return res, nil
}

// diffColumn compares one declared column with its live counterpart.
// The live store has no type-fidelity signal for the mapper's richer
// type set, so only the storage type token is compared.
func diffColumn(declared schema.Column, live store.ColumnInfo) []Drift {
	var drift []Drift
	phys := declared.PhysicalName()

	declType, err := schema.RenderColumnType(declared.Type)
	if err == nil {
		liveType := strings.ToUpper(strings.TrimSpace(live.DeclType))
		if liveType != "" && liveType != declType {
			drift = append(drift, Drift{Column: phys, Kind: DriftType, Declared: declType, Live: liveType})
		}
	}

	if live.NotNull == declared.Nullable {
		drift = append(drift, Drift{
			Column:   phys,
			Kind:     DriftNullability,
			Declared: nullability(!declared.Nullable),
			Live:     nullability(live.NotNull),
		})
	}

	if live.PrimaryKey != declared.PrimaryKey {
		drift = append(drift, Drift{
			Column:   phys,
			Kind:     DriftPrimaryKey,
			Declared: fmt.Sprintf("%t", declared.PrimaryKey),
			Live:     fmt.Sprintf("%t", live.PrimaryKey),
		})
	}

	return drift
}

func nullability(notNull bool) string {
	if notNull {
		return "NOT NULL"
	}
	return "NULL"
}
