package sqlbuild

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Blockzilla101/sqlite-orm/internal/codec"
	"github.com/Blockzilla101/sqlite-orm/internal/schema"
)

// CreateTable renders one CREATE TABLE statement for a declared schema.
// Default values are embedded as literals; that is the single spot where
// text reaches the statement unbound, so it is restricted to trusted,
// schema-declared defaults and never sees user data.
func CreateTable(t schema.Table, cdc *codec.Codec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def, err := ColumnDef(c, cdc)
		if err != nil {
			return "", fmt.Errorf("table %q: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", ")), nil
}

// ColumnDef renders one column definition clause:
// <physicalName> <SQLTYPE> [NOT NULL] [DEFAULT <literal>] [PRIMARY KEY].
func ColumnDef(c schema.Column, cdc *codec.Codec) (string, error) {
	sqlType, err := schema.RenderColumnType(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", c.PhysicalName(), err)
	}

	var sb strings.Builder
	sb.WriteString(quoteIdent(c.PhysicalName()))
	sb.WriteByte(' ')
	sb.WriteString(sqlType)
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil && !c.AutoIncrement {
		lit, err := defaultLiteral(c, cdc)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c.PhysicalName(), err)
		}
		sb.WriteString(" DEFAULT ")
		sb.WriteString(lit)
	}
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	return sb.String(), nil
}

// defaultLiteral renders a declared default value as a SQL literal for
// its column type.
func defaultLiteral(c schema.Column, cdc *codec.Codec) (string, error) {
	switch c.Type {
	case schema.TypeBoolean:
		b, ok := c.Default.(bool)
		if !ok {
			return "", fmt.Errorf("default %v is not a boolean", c.Default)
		}
		if b {
			return "1", nil
		}
		return "0", nil

	case schema.TypeString:
		s, ok := c.Default.(string)
		if !ok {
			return "", fmt.Errorf("default %v is not a string", c.Default)
		}
		return quoteText(s), nil

	case schema.TypeInteger:
		switch n := c.Default.(type) {
		case int:
			return strconv.FormatInt(int64(n), 10), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		case float64:
			return strconv.FormatInt(int64(n), 10), nil
		}
		return "", fmt.Errorf("default %v is not an integer", c.Default)

	case schema.TypeNumber:
		switch n := c.Default.(type) {
		case int:
			return strconv.FormatInt(int64(n), 10), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		case float64:
			return strconv.FormatFloat(n, 'g', -1, 64), nil
		}
		return "", fmt.Errorf("default %v is not a number", c.Default)

	case schema.TypeJSON:
		if cdc == nil {
			return "", fmt.Errorf("json default needs a codec")
		}
		encoded, err := cdc.Encode(c.Default)
		if err != nil {
			return "", fmt.Errorf("encode json default: %w", err)
		}
		text, err := codec.MarshalText(encoded)
		if err != nil {
			return "", err
		}
		return quoteText(text), nil

	case schema.TypeBlob:
		buf, ok := c.Default.([]byte)
		if !ok {
			return "", fmt.Errorf("default %v is not a byte buffer", c.Default)
		}
		return "X'" + hex.EncodeToString(buf) + "'", nil

	default:
		return "", fmt.Errorf("unknown column type %q", c.Type)
	}
}

// quoteText single-quotes a trusted text literal, doubling embedded
// quotes per SQL.
func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
