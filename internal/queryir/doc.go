// Package queryir provides a typed relational algebra for every set-oriented
// operation sirad performs against its stores.
//
// Nothing in sirad builds SQL by string interpolation. Components describe
// what they want as queryir values, and internal/querysql compiles them to
// parameterised SQLite statements:
//
//	[component] → [queryir.Query / Statement] → [querysql] → SQL + params
//
// QUERIES:
//   - Select(from, alias, columns, filter, order) - access to one table
//   - Join(left, right, on) - inner join; the right side is always a Select
//     (left-deep plans only)
//
// STATEMENTS:
//   - CreateTable, CreateTableAs, DropTable, Insert
//
// PREDICATES:
//   - Equals (column = literal, always a bound parameter)
//   - ColumnEquals (column = column, join conditions)
//   - IsNotNull
//   - And
//
// Table and column names are identifiers validated against ir.ValidIdentifier
// and quoted by the compiler. Literal values only ever travel as parameters,
// so neither dataset names nor data values can alter a statement.
//
// SEALED INTERFACES:
//
// Query, Statement and Predicate are sealed with marker methods so backends
// can switch exhaustively:
//
//	switch q := query.(type) {
//	case *Select:
//	    // Handle select
//	case *Join:
//	    // Handle join
//	}
package queryir
