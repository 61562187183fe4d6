package declfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockzilla101/sqlite-orm/internal/schema"
)

const validDecl = `
tables:
  - tableName: users
    columns:
      - name: id
        type: integer
        nullable: true
        isPrimaryKey: true
        autoIncrement: true
      - name: name
        type: string
        defaultValue: anon
      - name: profile
        mappedTo: profile_json
        type: json
        nullable: true
`

func TestParse_Valid(t *testing.T) {
	f, err := Parse([]byte(validDecl))
	require.NoError(t, err)
	require.Len(t, f.Tables, 1)

	users := f.Tables[0]
	assert.Equal(t, "users", users.Name)
	require.Len(t, users.Columns, 3)

	assert.Equal(t, schema.TypeInteger, users.Columns[0].Type)
	assert.True(t, users.Columns[0].PrimaryKey)
	assert.True(t, users.Columns[0].AutoIncrement)

	assert.Equal(t, "anon", users.Columns[1].Default)
	assert.False(t, users.Columns[1].Nullable)

	assert.Equal(t, "profile_json", users.Columns[2].PhysicalName())
}

func TestParse_UnknownColumnType(t *testing.T) {
	_, err := Parse([]byte(`
tables:
  - tableName: users
    columns:
      - name: id
        type: decimal
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declaration invalid")
	// The CUE failure names the offending field, not a Go decode error.
	assert.Contains(t, err.Error(), "type")
}

func TestParse_MissingTableName(t *testing.T) {
	_, err := Parse([]byte(`
tables:
  - columns:
      - name: id
        type: integer
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declaration invalid")
}

func TestParse_EmptyTables(t *testing.T) {
	_, err := Parse([]byte(`tables: []`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declaration invalid")
}

func TestParse_EmptyColumnName(t *testing.T) {
	_, err := Parse([]byte(`
tables:
  - tableName: users
    columns:
      - name: ""
        type: string
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declaration invalid")
}

func TestParse_DuplicatePhysicalNames(t *testing.T) {
	// Shape-valid per the schema, rejected by the table invariants.
	_, err := Parse([]byte(`
tables:
  - tableName: users
    columns:
      - name: a
        type: string
      - name: b
        mappedTo: a
        type: string
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("tables: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse declaration yaml")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDecl), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Tables, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read declaration file")
}
