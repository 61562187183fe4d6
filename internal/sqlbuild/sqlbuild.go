// Package sqlbuild turns declared table schemas and structured clause
// descriptors into parameterized SQL. Every runtime value is bound as a
// positional ? parameter; the only text embedded directly is trusted
// schema-declared identifiers and default literals.
package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/Blockzilla101/sqlite-orm/internal/schema"
)

// Where is a raw filter fragment with its bound values. The number of ?
// placeholders in Text must equal len(Args); builders validate that
// arity but never parse the SQL itself.
type Where struct {
	Text string
	Args []any
}

// Order describes a single ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// SelectQuery describes a select over one table. A nil Where matches all
// rows; callers wanting a guard against accidental full scans must pass
// an explicit always-true clause. Limit and Offset are ignored when not
// positive.
type SelectQuery struct {
	Where  *Where
	Order  *Order
	Limit  int
	Offset int
}

// DeleteQuery has the same shape as SelectQuery; Order is unused.
type DeleteQuery = SelectQuery

// AggregateQuery adds a raw select expression, grouping, and an optional
// having clause to the select shape.
type AggregateQuery struct {
	Expr    string
	Where   *Where
	GroupBy []string
	Having  *Where
	Order   *Order
	Limit   int
	Offset  int
}

// Statement is a built SQL string with its bound parameters in order.
type Statement struct {
	SQL  string
	Args []any
}

// quoteIdent double-quotes an identifier, escaping embedded quotes.
// Identifiers are trusted (declared at registration time), quoting just
// keeps reserved words and mixed-case names usable.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// checkArity verifies the ? placeholder count in a clause matches the
// bound value count.
func checkArity(clause string, text string, args []any) error {
	n := strings.Count(text, "?")
	if n != len(args) {
		return fmt.Errorf("%s clause has %d placeholders but %d bound values", clause, n, len(args))
	}
	return nil
}

// Select builds SELECT * FROM <table> with optional filter, ordering,
// limit, and offset.
func Select(t schema.Table, q SelectQuery) (Statement, error) {
	var sb strings.Builder
	var args []any

	fmt.Fprintf(&sb, "SELECT * FROM %s", quoteIdent(t.Name))
	if q.Where != nil {
		if err := checkArity("where", q.Where.Text, q.Where.Args); err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Where.Text)
		args = append(args, q.Where.Args...)
	}
	if q.Order != nil {
		fmt.Fprintf(&sb, " ORDER BY %s", quoteIdent(q.Order.Column))
		if q.Order.Desc {
			sb.WriteString(" DESC")
		}
	}
	writeLimitOffset(&sb, q.Limit, q.Offset)
	return Statement{SQL: sb.String(), Args: args}, nil
}

// CountWhere builds SELECT COUNT(*) with an optional filter.
func CountWhere(t schema.Table, where *Where) (Statement, error) {
	var sb strings.Builder
	var args []any

	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", quoteIdent(t.Name))
	if where != nil {
		if err := checkArity("where", where.Text, where.Args); err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where.Text)
		args = append(args, where.Args...)
	}
	return Statement{SQL: sb.String(), Args: args}, nil
}

// AggregateSelect builds a select over a raw expression with GROUP BY
// and an optional HAVING clause. Where parameters precede Having
// parameters, matching their position in the statement.
func AggregateSelect(t schema.Table, q AggregateQuery) (Statement, error) {
	if strings.TrimSpace(q.Expr) == "" {
		return Statement{}, fmt.Errorf("aggregate select needs a select expression")
	}

	var sb strings.Builder
	var args []any

	fmt.Fprintf(&sb, "SELECT %s FROM %s", q.Expr, quoteIdent(t.Name))
	if q.Where != nil {
		if err := checkArity("where", q.Where.Text, q.Where.Args); err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Where.Text)
		args = append(args, q.Where.Args...)
	}
	if len(q.GroupBy) > 0 {
		cols := make([]string, len(q.GroupBy))
		for i, c := range q.GroupBy {
			cols[i] = quoteIdent(c)
		}
		fmt.Fprintf(&sb, " GROUP BY %s", strings.Join(cols, ", "))
	}
	if q.Having != nil {
		if err := checkArity("having", q.Having.Text, q.Having.Args); err != nil {
			return Statement{}, err
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(q.Having.Text)
		args = append(args, q.Having.Args...)
	}
	if q.Order != nil {
		fmt.Fprintf(&sb, " ORDER BY %s", quoteIdent(q.Order.Column))
		if q.Order.Desc {
			sb.WriteString(" DESC")
		}
	}
	writeLimitOffset(&sb, q.Limit, q.Offset)
	return Statement{SQL: sb.String(), Args: args}, nil
}

// Insert builds a single-row insert listing every declared column in
// declaration order. values must hold an entry per physical column name;
// the auto-increment key may be nil, letting the store assign it.
func Insert(t schema.Table, values map[string]any) (Statement, error) {
	if len(t.Columns) == 0 {
		return Statement{}, fmt.Errorf("table %q has no columns", t.Name)
	}

	names := make([]string, 0, len(t.Columns))
	marks := make([]string, 0, len(t.Columns))
	args := make([]any, 0, len(t.Columns))
	for _, c := range t.Columns {
		phys := c.PhysicalName()
		v, ok := values[phys]
		if !ok {
			return Statement{}, fmt.Errorf("insert into %q: missing value for column %q", t.Name, phys)
		}
		names = append(names, quoteIdent(phys))
		marks = append(marks, "?")
		args = append(args, v)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.Name),
		strings.Join(names, ", "),
		strings.Join(marks, ", "))
	return Statement{SQL: sql, Args: args}, nil
}

// Update builds an update of every non-key column, keyed on primary-key
// equality. The primary-key value must be present in values.
func Update(t schema.Table, values map[string]any) (Statement, error) {
	pk, ok := t.PrimaryKey()
	if !ok {
		return Statement{}, fmt.Errorf("update %q: no primary key declared", t.Name)
	}
	pkName := pk.PhysicalName()
	pkValue, ok := values[pkName]
	if !ok || pkValue == nil {
		return Statement{}, fmt.Errorf("update %q: missing primary key value for %q", t.Name, pkName)
	}

	sets := make([]string, 0, len(t.Columns))
	args := make([]any, 0, len(t.Columns))
	for _, c := range t.Columns {
		phys := c.PhysicalName()
		if phys == pkName {
			continue
		}
		v, ok := values[phys]
		if !ok {
			return Statement{}, fmt.Errorf("update %q: missing value for column %q", t.Name, phys)
		}
		sets = append(sets, quoteIdent(phys)+" = ?")
		args = append(args, v)
	}
	args = append(args, pkValue)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(t.Name),
		strings.Join(sets, ", "),
		quoteIdent(pkName))
	return Statement{SQL: sql, Args: args}, nil
}

// Delete builds DELETE FROM with the select clause shape. A nil Where
// deletes every row.
func Delete(t schema.Table, q DeleteQuery) (Statement, error) {
	var sb strings.Builder
	var args []any

	fmt.Fprintf(&sb, "DELETE FROM %s", quoteIdent(t.Name))
	if q.Where != nil {
		if err := checkArity("where", q.Where.Text, q.Where.Args); err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Where.Text)
		args = append(args, q.Where.Args...)
	}
	writeLimitOffset(&sb, q.Limit, q.Offset)
	return Statement{SQL: sb.String(), Args: args}, nil
}

func writeLimitOffset(sb *strings.Builder, limit, offset int) {
	if limit > 0 {
		fmt.Fprintf(sb, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(sb, " OFFSET %d", offset)
	}
}
