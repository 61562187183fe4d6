package schema

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// ColumnType is the mapper-level type of a column. It is richer than
// SQLite's storage classes: boolean and json exist only on the mapper
// side and are stored as INTEGER and TEXT respectively.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeInteger ColumnType = "integer"
	TypeJSON    ColumnType = "json"
	TypeBlob    ColumnType = "blob"
)

// ValidType reports whether t is one of the declared column types.
func ValidType(t ColumnType) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeInteger, TypeJSON, TypeBlob:
		return true
	}
	return false
}

// Column describes one declared column.
//
// MappedTo lets the declared field name differ from the physical column
// name, so fields can be renamed without touching stored data.
type Column struct {
	Name          string     `json:"name" yaml:"name"`
	MappedTo      string     `json:"mappedTo,omitempty" yaml:"mappedTo,omitempty"`
	Type          ColumnType `json:"type" yaml:"type"`
	Nullable      bool       `json:"nullable" yaml:"nullable"`
	Default       any        `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	PrimaryKey    bool       `json:"isPrimaryKey" yaml:"isPrimaryKey"`
	AutoIncrement bool       `json:"autoIncrement" yaml:"autoIncrement"`
}

// PhysicalName returns the column name as it exists in the store:
// MappedTo when set, the declared name otherwise.
func (c Column) PhysicalName() string {
	if c.MappedTo != "" {
		return c.MappedTo
	}
	return c.Name
}

// Table is a declared table schema. Identity is Name; column order is
// declaration order and is preserved through every generated statement.
type Table struct {
	Name    string   `json:"tableName" yaml:"tableName"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// Column returns the declared column whose physical name matches name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.PhysicalName() == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the primary-key column, if one is declared.
func (t Table) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks the table invariants: at most one primary key, at most
// one auto-increment column (which must be the primary key), unique
// physical column names, and known column types.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	seen := make(map[string]bool, len(t.Columns))
	pk, autoinc := 0, 0
	for _, c := range t.Columns {
		phys := c.PhysicalName()
		if phys == "" {
			return fmt.Errorf("table %q: column with empty name", t.Name)
		}
		if seen[phys] {
			return fmt.Errorf("table %q: duplicate column %q", t.Name, phys)
		}
		seen[phys] = true
		if !ValidType(c.Type) {
			return fmt.Errorf("table %q: column %q has unknown type %q", t.Name, phys, c.Type)
		}
		if c.PrimaryKey {
			pk++
		}
		if c.AutoIncrement {
			autoinc++
			if !c.PrimaryKey {
				return fmt.Errorf("table %q: auto-increment column %q is not the primary key", t.Name, phys)
			}
		}
	}
	if pk > 1 {
		return fmt.Errorf("table %q: %d primary key columns declared, at most one allowed", t.Name, pk)
	}
	if autoinc > 1 {
		return fmt.Errorf("table %q: %d auto-increment columns declared, at most one allowed", t.Name, autoinc)
	}
	return nil
}

// RenderColumnType maps a ColumnType to its SQLite storage type token.
func RenderColumnType(t ColumnType) (string, error) {
	switch t {
	case TypeBoolean, TypeInteger:
		return "INTEGER", nil
	case TypeString, TypeJSON:
		return "TEXT", nil
	case TypeNumber:
		return "REAL", nil
	case TypeBlob:
		return "BLOB", nil
	default:
		return "", fmt.Errorf("unknown column type %q", t)
	}
}

// NormalizeIdentifier NFC-normalizes a table or column identifier so that
// visually identical declarations compare equal against introspected
// names regardless of Unicode composition.
func NormalizeIdentifier(s string) string {
	return norm.NFC.String(s)
}
