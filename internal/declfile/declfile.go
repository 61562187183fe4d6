// Package declfile loads YAML table declaration files and validates
// them against an embedded CUE schema before handing the declared
// tables to tooling. It is the registration surface for tables that
// have no compiled-in row type.
package declfile

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/Blockzilla101/sqlite-orm/internal/schema"
)

//go:embed schema.cue
var schemaCUE string

// File is a parsed declaration file.
type File struct {
	Tables []schema.Table `yaml:"tables"`
}

// Load reads, validates, and parses a declaration file. Validation runs
// the raw YAML value through the embedded CUE schema first, so type
// errors carry the declared field names rather than Go decoding noise;
// the table invariants are checked after.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declaration file: %w", err)
	}
	return Parse(data)
}

// Parse validates and parses declaration file bytes.
func Parse(data []byte) (*File, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse declaration yaml: %w", err)
	}
	if err := validateCUE(raw); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode declaration yaml: %w", err)
	}
	for i := range f.Tables {
		f.Tables[i].Name = schema.NormalizeIdentifier(f.Tables[i].Name)
		if err := f.Tables[i].Validate(); err != nil {
			return nil, fmt.Errorf("declaration invalid: %w", err)
		}
	}
	return &f, nil
}

// validateCUE unifies the decoded YAML value with the #File definition.
func validateCUE(raw any) error {
	ctx := cuecontext.New()
	schemaVal := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("internal declaration schema: %w", err)
	}
	fileDef := schemaVal.LookupPath(cue.ParsePath("#File"))
	if err := fileDef.Err(); err != nil {
		return fmt.Errorf("internal declaration schema: %w", err)
	}

	dataVal := ctx.Encode(raw)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("encode declaration for validation: %w", err)
	}

	unified := fileDef.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range cueerrors.Errors(err) {
			msgs = append(msgs, e.Error())
		}
		if len(msgs) == 1 {
			return fmt.Errorf("declaration invalid: %s", msgs[0])
		}
		return fmt.Errorf("declaration invalid:\n  %s", joinLines(msgs))
	}
	return nil
}

func joinLines(msgs []string) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += "\n  "
		}
		out += m
	}
	return out
}
