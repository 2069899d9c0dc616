package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
)

func TestCompile_SimpleSelect(t *testing.T) {
	compiler := NewSQLCompiler()

	query := queryir.Select{
		From:    queryir.Table{Name: "sirad_id"},
		Columns: []queryir.Column{{Name: "pii_id"}, {Name: "sirad_id"}},
		Filter:  queryir.Equals{Field: queryir.Column{Name: "dsn"}, Value: ir.Text("tax")},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "pii_id", "sirad_id" FROM "sirad_id" WHERE "dsn" = ? ORDER BY rowid`,
		sql)
	assert.NotContains(t, sql, "tax")
	assert.Equal(t, []any{"tax"}, params)
}

func TestCompile_SimpleSelectPointer(t *testing.T) {
	compiler := NewSQLCompiler()

	query := &queryir.Select{
		From:    queryir.Table{Schema: "data", Name: "tax"},
		Alias:   "d",
		Star:    true,
		Filter:  &queryir.IsNotNull{Field: queryir.Col("d", "agi")},
		OrderBy: []queryir.Column{queryir.Col("d", "record_id")},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "d".* FROM "data"."tax" AS "d" WHERE "d"."agi" IS NOT NULL ORDER BY "d"."record_id" COLLATE BINARY ASC`,
		sql)
	assert.Empty(t, params)
}

func TestCompile_ResearchJoin(t *testing.T) {
	compiler := NewSQLCompiler()

	query := queryir.Join{
		Left: queryir.Join{
			Left: queryir.Join{
				Left: queryir.Select{
					From:    queryir.Table{Schema: "pii", Name: "sirad_id"},
					Alias:   "r",
					Columns: []queryir.Column{queryir.Col("r", "sirad_id")},
					Filter:  queryir.Equals{Field: queryir.Col("r", "dsn"), Value: ir.Text("tax")},
					OrderBy: []queryir.Column{queryir.Col("r", "sirad_id")},
				},
				Right: queryir.Select{From: queryir.Table{Schema: "pii", Name: "tax"}, Alias: "p"},
				On:    queryir.ColumnEquals{Left: queryir.Col("p", "pii_id"), Right: queryir.Col("r", "pii_id")},
			},
			Right: queryir.Select{From: queryir.Table{Schema: "link", Name: "tax"}, Alias: "l"},
			On:    queryir.ColumnEquals{Left: queryir.Col("l", "pii_id"), Right: queryir.Col("p", "pii_id")},
		},
		Right: queryir.Select{
			From:    queryir.Table{Schema: "data", Name: "tax"},
			Alias:   "d",
			Columns: []queryir.Column{queryir.Col("d", "agi"), queryir.Col("d", "year")},
			OrderBy: []queryir.Column{queryir.Col("d", "record_id")},
		},
		On: queryir.ColumnEquals{Left: queryir.Col("d", "record_id"), Right: queryir.Col("l", "record_id")},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)

	want := `SELECT "r"."sirad_id", "d"."agi", "d"."year" ` +
		`FROM "pii"."sirad_id" AS "r" ` +
		`INNER JOIN "pii"."tax" AS "p" ON "p"."pii_id" = "r"."pii_id" ` +
		`INNER JOIN "link"."tax" AS "l" ON "l"."pii_id" = "p"."pii_id" ` +
		`INNER JOIN "data"."tax" AS "d" ON "d"."record_id" = "l"."record_id" ` +
		`WHERE "r"."dsn" = ? ` +
		`ORDER BY "r"."sirad_id" COLLATE BINARY ASC, "d"."record_id" COLLATE BINARY ASC`
	assert.Equal(t, want, sql)
	assert.Equal(t, []any{"tax"}, params)
}

func TestCompile_JoinRequiresOrderBy(t *testing.T) {
	compiler := NewSQLCompiler()

	query := queryir.Join{
		Left:  queryir.Select{From: queryir.Table{Name: "a"}, Alias: "a", Star: true},
		Right: queryir.Select{From: queryir.Table{Name: "b"}, Alias: "b"},
		On:    queryir.ColumnEquals{Left: queryir.Col("a", "id"), Right: queryir.Col("b", "id")},
	}

	_, _, err := compiler.Compile(query)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORDER BY")
}

func TestCompile_OrderByAlwaysPresent(t *testing.T) {
	compiler := NewSQLCompiler()

	queries := []queryir.Query{
		queryir.Select{From: queryir.Table{Name: "tax"}, Star: true},
		queryir.Select{From: queryir.Table{Name: "tax"}, Alias: "t", Columns: []queryir.Column{{Name: "agi"}}},
		queryir.Select{
			From:   queryir.Table{Name: "tax"},
			Star:   true,
			Filter: queryir.And{Predicates: []queryir.Predicate{}},
		},
	}
	for _, q := range queries {
		sql, _, err := compiler.Compile(q)
		require.NoError(t, err)
		assert.Contains(t, sql, "ORDER BY")
	}
}

func TestCompile_AndParamsInOrder(t *testing.T) {
	compiler := NewSQLCompiler()

	query := queryir.Select{
		From: queryir.Table{Name: "sirad_id"},
		Star: true,
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: queryir.Column{Name: "dsn"}, Value: ir.Text("tax")},
			queryir.Equals{Field: queryir.Column{Name: "sirad_id"}, Value: ir.Int(3)},
			queryir.IsNotNull{Field: queryir.Column{Name: "pii_id"}},
		}},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE ("dsn" = ? AND "sirad_id" = ? AND "pii_id" IS NOT NULL)`)
	assert.Equal(t, []any{"tax", int64(3)}, params)
}

func TestCompile_RejectsNullEquals(t *testing.T) {
	compiler := NewSQLCompiler()

	query := queryir.Select{
		From:   queryir.Table{Name: "tax"},
		Star:   true,
		Filter: queryir.Equals{Field: queryir.Column{Name: "agi"}, Value: ir.Null{}},
	}
	_, _, err := compiler.Compile(query)
	assert.Error(t, err)
}

func TestCompile_NoInjection(t *testing.T) {
	compiler := NewSQLCompiler()

	payload := `x'; DROP TABLE tax; --`
	query := queryir.Select{
		From:   queryir.Table{Name: "tax"},
		Star:   true,
		Filter: queryir.Equals{Field: queryir.Column{Name: "name"}, Value: ir.Text(payload)},
	}
	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, []any{payload}, params)

	_, _, err = compiler.Compile(queryir.Select{From: queryir.Table{Name: payload}, Star: true})
	assert.Error(t, err)
}

func TestCompileStatement(t *testing.T) {
	compiler := NewSQLCompiler()

	testCases := []struct {
		name string
		stmt queryir.Statement
		want string
	}{
		{
			name: "drop",
			stmt: queryir.DropTable{Target: queryir.Table{Name: "tax"}},
			want: `DROP TABLE IF EXISTS "tax"`,
		},
		{
			name: "create",
			stmt: queryir.CreateTable{
				Target: queryir.Table{Name: "tax"},
				Columns: []queryir.ColumnDef{
					{Name: "record_id", Kind: ir.KindInt},
					{Name: "agi", Kind: ir.KindNumber},
					{Name: "filed", Kind: ir.KindDate},
					{Name: "pii_id", Kind: ir.KindInt, NotNull: true, Unique: true},
				},
				PrimaryKey: []string{"record_id"},
			},
			want: `CREATE TABLE "tax" ("record_id" INTEGER, "agi" REAL, "filed" TEXT, ` +
				`"pii_id" INTEGER NOT NULL UNIQUE, PRIMARY KEY ("record_id"))`,
		},
		{
			name: "insert",
			stmt: &queryir.Insert{Target: queryir.Table{Name: "tax"}, Columns: []string{"record_id", "agi"}},
			want: `INSERT INTO "tax" ("record_id", "agi") VALUES (?, ?)`,
		},
		{
			name: "create as",
			stmt: queryir.CreateTableAs{
				Target: queryir.Table{Name: "wages"},
				Query:  queryir.Select{From: queryir.Table{Schema: "data", Name: "wages"}, Star: true},
			},
			want: `CREATE TABLE "wages" AS SELECT * FROM "data"."wages" ORDER BY rowid`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sql, params, err := compiler.CompileStatement(tc.stmt)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sql)
			assert.Empty(t, params)
		})
	}
}

func TestSQLType(t *testing.T) {
	for kind, want := range map[ir.Kind]string{
		ir.KindText:   "TEXT",
		ir.KindDate:   "TEXT",
		ir.KindNumber: "REAL",
		ir.KindInt:    "INTEGER",
	} {
		got, err := SQLType(kind)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := SQLType("blob")
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"tax"`, QuoteIdent("tax"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}
