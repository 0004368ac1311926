package querysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/ir"
	"github.com/roach88/dataver/internal/queryir"
)

// Dialect selects the SQL flavour of a backend.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectDuckDB Dialect = "duckdb"
)

var (
	columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,64}$`)
	tablePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)
)

// SQLCompiler compiles QueryIR to parameterized SQL over one observation
// table.
//
// CRITICAL: ALL queries order by row_seq last, so pages are stable.
// CRITICAL: All values are parameterized (never interpolated).
// Identifiers are validated and quoted; they never come from literals.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a new SQLCompiler for the dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// CompileSelect converts a Select to a paged SELECT over table.
// Returns (sql, params, error); limit and offset are the last parameters.
func (c *SQLCompiler) CompileSelect(sel queryir.Select, table string, limit, offset int) (string, []any, error) {
	if limit < 0 || offset < 0 {
		return "", nil, fmt.Errorf("negative limit %d or offset %d", limit, offset)
	}
	from, err := QuoteTable(table)
	if err != nil {
		return "", nil, err
	}
	where, params, err := c.compileWhere(sel.Filter)
	if err != nil {
		return "", nil, err
	}
	orderBy, err := c.orderBy(sel.OrderBy)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s LIMIT ? OFFSET ?", from, where, orderBy)
	params = append(params, int64(limit), int64(offset))
	return sql, params, nil
}

// CompileCount converts a Select to a COUNT(*) over table.
func (c *SQLCompiler) CompileCount(sel queryir.Select, table string) (string, []any, error) {
	from, err := QuoteTable(table)
	if err != nil {
		return "", nil, err
	}
	where, params, err := c.compileWhere(sel.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", from, where), params, nil
}

func (c *SQLCompiler) compileWhere(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

// orderBy renders the explicit fields followed by the row_seq tiebreaker.
// SQLite text comparison is pinned to BINARY; DuckDB compares bytes by
// default.
func (c *SQLCompiler) orderBy(fields []queryir.OrderBy) (string, error) {
	parts := make([]string, 0, len(fields)+1)
	for _, o := range fields {
		col, err := QuoteColumn(o.Field)
		if err != nil {
			return "", err
		}
		if c.Dialect == DialectSQLite {
			col += " COLLATE BINARY"
		}
		if o.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		parts = append(parts, col)
	}
	parts = append(parts, `"`+facet.ColumnSeq+`" ASC`)
	return strings.Join(parts, ", "), nil
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compareOp(pred.Field, "=", pred.Value)
	case *queryir.Equals:
		return c.compilePredicate(*pred)
	case queryir.In:
		return c.compileIn(pred)
	case *queryir.In:
		return c.compileIn(*pred)
	case queryir.Compare:
		if !pred.Op.Valid() {
			return "", nil, fmt.Errorf("unknown operator %q", pred.Op)
		}
		return c.compareOp(pred.Field, string(pred.Op), pred.Value)
	case *queryir.Compare:
		return c.compilePredicate(*pred)
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case *queryir.And:
		return c.compilePredicate(*pred)
	case queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case *queryir.Or:
		return c.compilePredicate(*pred)
	case queryir.Not:
		sql, params, err := c.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	case *queryir.Not:
		return c.compilePredicate(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compareOp(field, op string, value ir.IRValue) (string, []any, error) {
	col, err := QuoteColumn(field)
	if err != nil {
		return "", nil, err
	}
	param, err := scalarParam(value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", field, err)
	}
	return fmt.Sprintf("%s %s ?", col, op), []any{param}, nil
}

// compileIn renders "field IN (?, ...)". An empty list matches nothing.
func (c *SQLCompiler) compileIn(in queryir.In) (string, []any, error) {
	col, err := QuoteColumn(in.Field)
	if err != nil {
		return "", nil, err
	}
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		if params[i], err = scalarParam(v); err != nil {
			return "", nil, fmt.Errorf("field %s: %w", in.Field, err)
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(in.Values)), ", ")
	return fmt.Sprintf("%s IN (%s)", col, placeholders), params, nil
}

func (c *SQLCompiler) compileJunction(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var all []any
	for _, p := range preds {
		sql, params, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		all = append(all, params...)
	}
	return "(" + strings.Join(parts, sep) + ")", all, nil
}

// scalarParam converts a literal to a database/sql parameter. Nulls are
// rejected: "= NULL" never matches in SQL and would silently empty a page.
func scalarParam(v ir.IRValue) (any, error) {
	switch v.(type) {
	case nil, ir.IRNull:
		return nil, fmt.Errorf("null literal")
	case ir.IRArray, ir.IRObject:
		return nil, fmt.Errorf("non-scalar literal %T", v)
	}
	return ir.ToParam(v)
}

// QuoteColumn validates and quotes a column name.
func QuoteColumn(name string) (string, error) {
	if !columnPattern.MatchString(name) {
		return "", fmt.Errorf("invalid column name %q", name)
	}
	return `"` + name + `"`, nil
}

// QuoteTable validates and quotes a table name.
func QuoteTable(name string) (string, error) {
	if !tablePattern.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return `"` + name + `"`, nil
}
