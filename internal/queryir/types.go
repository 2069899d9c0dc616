package queryir

import "github.com/roach88/sirad/internal/ir"

// Query is a sealed interface - only Select and Join implement it.
type Query interface {
	queryNode()
}

// Statement is a sealed interface for statements that change a store.
type Statement interface {
	statementNode()
}

// Predicate is a sealed interface for filter and join conditions.
type Predicate interface {
	predicateNode()
}

// Table names a table, optionally inside an attached schema.
//
// Schema "" means the connection's main database. Attached stores use the
// schema they were attached under (e.g. "data", "pii", "link").
type Table struct {
	Schema string
	Name   string
}

// Column references a column of a Select by alias.
//
// Table is the alias of the Select the column belongs to. Inside a single
// Select it may be left empty. As renames the column in the output.
type Column struct {
	Table string
	Name  string
	As    string
}

// Col is shorthand for a qualified column reference.
func Col(table, name string) Column {
	return Column{Table: table, Name: name}
}

// Select represents access to one table.
//
// Semantics:
//
//	SELECT <columns> FROM <from> AS <alias> WHERE <filter> ORDER BY <order>
//
// Star selects every column of the table (alias.*). Columns are emitted after
// the star. Inside a Join, a Select with neither Star nor Columns contributes
// no output columns and only anchors the join.
type Select struct {
	From    Table
	Alias   string
	Star    bool
	Columns []Column
	Filter  Predicate // nil = no filter
	OrderBy []Column
}

func (Select) queryNode() {}

// Join represents an inner join of two queries.
//
// Semantics:
//
//	<left> INNER JOIN <right> ON <on>
//
// Right must be a Select. Output columns, filters and ordering are the
// concatenation of the leaf Selects' in left-to-right order.
type Join struct {
	Left  Query
	Right Query
	On    Predicate // required
}

func (Join) queryNode() {}

// Equals compares a column to a literal value.
// The value is always passed as a bound parameter.
type Equals struct {
	Field Column
	Value ir.Value
}

func (Equals) predicateNode() {}

// ColumnEquals compares two columns (equi-join condition).
type ColumnEquals struct {
	Left  Column
	Right Column
}

func (ColumnEquals) predicateNode() {}

// IsNotNull holds when the column is not NULL.
type IsNotNull struct {
	Field Column
}

func (IsNotNull) predicateNode() {}

// And holds when all predicates hold. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// ColumnDef declares one column of a new table.
type ColumnDef struct {
	Name    string
	Kind    ir.Kind
	NotNull bool
	Unique  bool
}

// CreateTable creates an empty table.
// PrimaryKey lists the key columns; a single integer key becomes the rowid.
type CreateTable struct {
	Target     Table
	Columns    []ColumnDef
	PrimaryKey []string
}

func (CreateTable) statementNode() {}

// CreateTableAs creates a table from the result of a query.
type CreateTableAs struct {
	Target Table
	Query  Query
}

func (CreateTableAs) statementNode() {}

// DropTable drops a table if it exists.
// A missing table is never an error.
type DropTable struct {
	Target Table
}

func (DropTable) statementNode() {}

// Insert adds one row; values are bound per execution in Columns order.
type Insert struct {
	Target  Table
	Columns []string
}

func (Insert) statementNode() {}
