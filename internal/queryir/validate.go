package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/sirad/internal/ir"
)

// Validate checks that a query only uses valid identifiers, unique aliases
// and explicit join conditions.
//
// Validate is a pure function with no side effects. It returns nil or an
// error joining every problem found.
func Validate(q Query) error {
	v := &validator{aliases: make(map[string]bool)}
	v.validateQuery(q)
	return errors.Join(v.errs...)
}

// ValidateStatement applies Validate's rules to a statement.
func ValidateStatement(s Statement) error {
	v := &validator{aliases: make(map[string]bool)}
	v.validateStatement(s)
	return errors.Join(v.errs...)
}

// validator accumulates problems during traversal.
type validator struct {
	errs    []error
	aliases map[string]bool
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateTable(t Table) {
	if t.Schema != "" && !ir.ValidIdentifier(t.Schema) {
		v.addError("invalid schema name %q", t.Schema)
	}
	if !ir.ValidIdentifier(t.Name) {
		v.addError("invalid table name %q", t.Name)
	}
}

func (v *validator) validateColumn(c Column) {
	if c.Table != "" && !ir.ValidIdentifier(c.Table) {
		v.addError("invalid table alias %q", c.Table)
	}
	if !ir.ValidIdentifier(c.Name) {
		v.addError("invalid column name %q", c.Name)
	}
	if c.As != "" && !ir.ValidIdentifier(c.As) {
		v.addError("invalid column alias %q", c.As)
	}
}

// validateQuery recursively validates a query node.
func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Join:
		v.validateJoin(query)
	case *Join:
		v.validateJoin(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.validateTable(sel.From)

	if sel.Alias != "" {
		if !ir.ValidIdentifier(sel.Alias) {
			v.addError("invalid alias %q", sel.Alias)
		}
		if v.aliases[sel.Alias] {
			v.addError("duplicate alias %q", sel.Alias)
		}
		v.aliases[sel.Alias] = true
	}

	for _, c := range sel.Columns {
		v.validateColumn(c)
	}
	for _, c := range sel.OrderBy {
		v.validateColumn(c)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validateJoin(join Join) {
	v.validateQuery(join.Left)

	switch join.Right.(type) {
	case Select, *Select:
		v.validateQuery(join.Right)
	default:
		v.addError("join right side must be a Select, got %T", join.Right)
	}

	if join.On == nil {
		v.addError("join without ON condition")
		return
	}
	v.validatePredicate(join.On)
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// no filter
	case Equals:
		v.validateColumn(pred.Field)
	case *Equals:
		v.validateColumn(pred.Field)
	case ColumnEquals:
		v.validateColumn(pred.Left)
		v.validateColumn(pred.Right)
	case *ColumnEquals:
		v.validateColumn(pred.Left)
		v.validateColumn(pred.Right)
	case IsNotNull:
		v.validateColumn(pred.Field)
	case *IsNotNull:
		v.validateColumn(pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateStatement(s Statement) {
	switch stmt := s.(type) {
	case nil:
		v.addError("nil statement")
	case CreateTable:
		v.validateCreate(stmt)
	case *CreateTable:
		v.validateCreate(*stmt)
	case CreateTableAs:
		v.validateTable(stmt.Target)
		v.validateQuery(stmt.Query)
	case *CreateTableAs:
		v.validateTable(stmt.Target)
		v.validateQuery(stmt.Query)
	case DropTable:
		v.validateTable(stmt.Target)
	case *DropTable:
		v.validateTable(stmt.Target)
	case Insert:
		v.validateInsert(stmt)
	case *Insert:
		v.validateInsert(*stmt)
	default:
		v.addError("unknown statement type %T", s)
	}
}

func (v *validator) validateCreate(ct CreateTable) {
	v.validateTable(ct.Target)
	if len(ct.Columns) == 0 {
		v.addError("table %q has no columns", ct.Target.Name)
	}
	seen := make(map[string]bool)
	for _, c := range ct.Columns {
		if !ir.ValidIdentifier(c.Name) {
			v.addError("invalid column name %q", c.Name)
		}
		if seen[c.Name] {
			v.addError("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	for _, k := range ct.PrimaryKey {
		if !seen[k] {
			v.addError("primary key column %q not declared", k)
		}
	}
}

func (v *validator) validateInsert(ins Insert) {
	v.validateTable(ins.Target)
	if len(ins.Columns) == 0 {
		v.addError("insert into %q lists no columns", ins.Target.Name)
	}
	for _, c := range ins.Columns {
		if !ir.ValidIdentifier(c) {
			v.addError("invalid column name %q", c)
		}
	}
}
