package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
)

// SQLCompiler compiles queryir to parameterized SQL for SQLite.
//
// CRITICAL: All literal values are parameterized (never interpolated).
// CRITICAL: All identifiers are validated before being quoted.
// CRITICAL: Joins must carry an ORDER BY so output order is deterministic.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}
	return c.compileQuery(q)
}

// CompileStatement converts a statement to parameterized SQL.
func (c *SQLCompiler) CompileStatement(s queryir.Statement) (string, []any, error) {
	if err := queryir.ValidateStatement(s); err != nil {
		return "", nil, fmt.Errorf("invalid statement: %w", err)
	}

	switch stmt := s.(type) {
	case queryir.DropTable:
		return "DROP TABLE IF EXISTS " + quoteTable(stmt.Target), nil, nil
	case *queryir.DropTable:
		return "DROP TABLE IF EXISTS " + quoteTable(stmt.Target), nil, nil
	case queryir.CreateTable:
		return compileCreate(stmt)
	case *queryir.CreateTable:
		return compileCreate(*stmt)
	case queryir.CreateTableAs:
		return c.compileCreateAs(stmt)
	case *queryir.CreateTableAs:
		return c.compileCreateAs(*stmt)
	case queryir.Insert:
		return compileInsert(stmt), nil, nil
	case *queryir.Insert:
		return compileInsert(*stmt), nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported statement type: %T", s)
	}
}

func (c *SQLCompiler) compileQuery(q queryir.Query) (string, []any, error) {
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Join:
		return c.compileJoin(query)
	case *queryir.Join:
		return c.compileJoin(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileSelect compiles a single-table Select.
// Without an explicit order the table's rowid is used.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	cols := selectList(q)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("select from %s has no output columns", q.From.Name)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(fromItem(q))

	var params []any
	if q.Filter != nil {
		sql, p, err := compilePredicate(q.Filter, q.Alias)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(sql)
		params = p
	}

	b.WriteString(" ORDER BY ")
	if len(q.OrderBy) > 0 {
		b.WriteString(orderList(q.OrderBy, q.Alias))
	} else {
		b.WriteString(qualify(q.Alias, "rowid", false))
	}

	return b.String(), params, nil
}

// compileJoin flattens a left-deep join tree into one FROM clause.
// Params are collected in textual order: ON conditions, then WHERE filters.
func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	leaves, ons, err := flatten(j)
	if err != nil {
		return "", nil, err
	}

	var cols []string
	var order []string
	var filters []string
	var filterParams []any

	for _, leaf := range leaves {
		cols = append(cols, selectList(leaf)...)
		if len(leaf.OrderBy) > 0 {
			order = append(order, orderList(leaf.OrderBy, leaf.Alias))
		}
		if leaf.Filter != nil {
			sql, p, err := compilePredicate(leaf.Filter, leaf.Alias)
			if err != nil {
				return "", nil, fmt.Errorf("compile filter on %s: %w", leaf.From.Name, err)
			}
			filters = append(filters, sql)
			filterParams = append(filterParams, p...)
		}
	}

	if len(cols) == 0 {
		return "", nil, fmt.Errorf("join has no output columns")
	}
	if len(order) == 0 {
		return "", nil, fmt.Errorf("join requires ORDER BY for deterministic output")
	}

	var b strings.Builder
	var params []any

	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(fromItem(leaves[0]))

	for i, leaf := range leaves[1:] {
		sql, p, err := compilePredicate(ons[i], "")
		if err != nil {
			return "", nil, fmt.Errorf("compile join ON: %w", err)
		}
		b.WriteString(" INNER JOIN ")
		b.WriteString(fromItem(leaf))
		b.WriteString(" ON ")
		b.WriteString(sql)
		params = append(params, p...)
	}

	if len(filters) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(filters, " AND "))
		params = append(params, filterParams...)
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))

	return b.String(), params, nil
}

// flatten returns the leaf Selects of a left-deep join in order, and the ON
// predicate joining leaf i+1 to the leaves before it.
func flatten(q queryir.Query) ([]queryir.Select, []queryir.Predicate, error) {
	switch query := q.(type) {
	case queryir.Select:
		return []queryir.Select{query}, nil, nil
	case *queryir.Select:
		return []queryir.Select{*query}, nil, nil
	case queryir.Join:
		return flattenJoin(query)
	case *queryir.Join:
		return flattenJoin(*query)
	default:
		return nil, nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func flattenJoin(j queryir.Join) ([]queryir.Select, []queryir.Predicate, error) {
	leaves, ons, err := flatten(j.Left)
	if err != nil {
		return nil, nil, err
	}
	right := getSelect(j.Right)
	if right == nil {
		return nil, nil, fmt.Errorf("join right must be Select")
	}
	return append(leaves, *right), append(ons, j.On), nil
}

// getSelect extracts the Select from a Query if it's a Select.
func getSelect(q queryir.Query) *queryir.Select {
	switch query := q.(type) {
	case queryir.Select:
		return &query
	case *queryir.Select:
		return query
	default:
		return nil
	}
}

func (c *SQLCompiler) compileCreateAs(ct queryir.CreateTableAs) (string, []any, error) {
	sql, params, err := c.compileQuery(ct.Query)
	if err != nil {
		return "", nil, fmt.Errorf("compile create table %s: %w", ct.Target.Name, err)
	}
	return "CREATE TABLE " + quoteTable(ct.Target) + " AS " + sql, params, nil
}

func compileCreate(ct queryir.CreateTable) (string, []any, error) {
	defs := make([]string, 0, len(ct.Columns)+1)
	for _, col := range ct.Columns {
		typ, err := SQLType(col.Kind)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		def := QuoteIdent(col.Name) + " " + typ
		if col.NotNull {
			def += " NOT NULL"
		}
		if col.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	if len(ct.PrimaryKey) > 0 {
		keys := make([]string, len(ct.PrimaryKey))
		for i, k := range ct.PrimaryKey {
			keys[i] = QuoteIdent(k)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return "CREATE TABLE " + quoteTable(ct.Target) + " (" + strings.Join(defs, ", ") + ")", nil, nil
}

func compileInsert(ins queryir.Insert) string {
	cols := make([]string, len(ins.Columns))
	marks := make([]string, len(ins.Columns))
	for i, c := range ins.Columns {
		cols[i] = QuoteIdent(c)
		marks[i] = "?"
	}
	return "INSERT INTO " + quoteTable(ins.Target) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

// compilePredicate compiles a predicate to a WHERE/ON fragment.
// defaultAlias qualifies columns that carry no table alias.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func compilePredicate(p queryir.Predicate, defaultAlias string) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileEquals(pred, defaultAlias)
	case *queryir.Equals:
		return compileEquals(*pred, defaultAlias)
	case queryir.ColumnEquals:
		return columnRef(pred.Left, defaultAlias) + " = " + columnRef(pred.Right, defaultAlias), nil, nil
	case *queryir.ColumnEquals:
		return columnRef(pred.Left, defaultAlias) + " = " + columnRef(pred.Right, defaultAlias), nil, nil
	case queryir.IsNotNull:
		return columnRef(pred.Field, defaultAlias) + " IS NOT NULL", nil, nil
	case *queryir.IsNotNull:
		return columnRef(pred.Field, defaultAlias) + " IS NOT NULL", nil, nil
	case queryir.And:
		return compileAnd(pred, defaultAlias)
	case *queryir.And:
		return compileAnd(*pred, defaultAlias)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals, defaultAlias string) (string, []any, error) {
	if ir.IsNull(eq.Value) {
		return "", nil, fmt.Errorf("column %s compared to NULL; use IsNotNull", eq.Field.Name)
	}
	return columnRef(eq.Field, defaultAlias) + " = ?", []any{eq.Value.Param()}, nil
}

func compileAnd(and queryir.And, defaultAlias string) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, sub := range and.Predicates {
		sql, p, err := compilePredicate(sub, defaultAlias)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// selectList renders a Select's output columns.
func selectList(q queryir.Select) []string {
	var out []string
	if q.Star {
		if q.Alias != "" {
			out = append(out, QuoteIdent(q.Alias)+".*")
		} else {
			out = append(out, "*")
		}
	}
	for _, col := range q.Columns {
		ref := columnRef(col, q.Alias)
		if col.As != "" && col.As != col.Name {
			ref += " AS " + QuoteIdent(col.As)
		}
		out = append(out, ref)
	}
	return out
}

func orderList(cols []queryir.Column, defaultAlias string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = columnRef(col, defaultAlias) + " COLLATE BINARY ASC"
	}
	return strings.Join(parts, ", ")
}

func fromItem(q queryir.Select) string {
	s := quoteTable(q.From)
	if q.Alias != "" {
		s += " AS " + QuoteIdent(q.Alias)
	}
	return s
}

func columnRef(col queryir.Column, defaultAlias string) string {
	alias := col.Table
	if alias == "" {
		alias = defaultAlias
	}
	return qualify(alias, col.Name, true)
}

func qualify(alias, name string, quoteName bool) string {
	if quoteName {
		name = QuoteIdent(name)
	}
	if alias == "" {
		return name
	}
	return QuoteIdent(alias) + "." + name
}

func quoteTable(t queryir.Table) string {
	if t.Schema == "" {
		return QuoteIdent(t.Name)
	}
	return QuoteIdent(t.Schema) + "." + QuoteIdent(t.Name)
}

// QuoteIdent quotes an identifier for SQLite.
// Callers must have validated the identifier; embedded quotes are doubled
// regardless so a missed validation can never break out of the quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLType maps a column kind to its SQLite declared type.
// Dates are TEXT so the driver never converts them to time.Time.
func SQLType(k ir.Kind) (string, error) {
	switch k {
	case ir.KindText, ir.KindDate:
		return "TEXT", nil
	case ir.KindNumber:
		return "REAL", nil
	case ir.KindInt:
		return "INTEGER", nil
	default:
		return "", fmt.Errorf("unsupported kind %q", k)
	}
}
