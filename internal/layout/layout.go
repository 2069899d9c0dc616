// Package layout loads dataset layouts written in CUE.
//
// A layout classifies every field of a raw file as non-identifying (data),
// identifying (pii), or both with a transform applied on the data side:
//
//	layout: tax: fields: [
//		{name: "ssn", pii: "ssn"},
//		{name: "dob", type: "date", pii: "dob", data: "birth_year", transform: "year"},
//		{name: "agi", type: "number", data: "agi"},
//	]
//
// Layouts are unified with an embedded schema and then checked with
// ir.Layout.Validate, so a layout that would write an identifying value
// to the data store never loads.
package layout

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sirad/internal/ir"
)

//go:embed schema.cue
var schemaSrc string

// CompileError represents a layout error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// field mirrors #Field in schema.cue.
type field struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Data      string `json:"data"`
	PII       string `json:"pii"`
	Format    string `json:"format"`
	Transform string `json:"transform"`
}

// Load reads every .cue file in dir and returns the layouts they declare,
// sorted by dataset name.
func Load(dir string) ([]ir.Layout, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("layouts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("layouts directory: not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan layouts: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, errors.New("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	v := ctx.BuildInstance(inst)
	return compile(ctx, v)
}

// Parse compiles layouts from CUE source. filename is used in positions.
func Parse(filename string, src []byte) ([]ir.Layout, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return compile(ctx, v)
}

// ByName indexes layouts by dataset name.
func ByName(layouts []ir.Layout) map[string]ir.Layout {
	m := make(map[string]ir.Layout, len(layouts))
	for _, l := range layouts {
		m[l.Dataset] = l
	}
	return m
}

func compile(ctx *cue.Context, v cue.Value) ([]ir.Layout, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("layout schema: %w", err)
	}

	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	layoutsVal := v.LookupPath(cue.ParsePath("layout"))
	if !layoutsVal.Exists() {
		return nil, &CompileError{Field: "layout", Message: "no layouts declared", Pos: v.Pos()}
	}

	iter, err := layoutsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var layouts []ir.Layout
	for iter.Next() {
		l, err := compileLayout(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}

	sort.Slice(layouts, func(i, j int) bool {
		return layouts[i].Dataset < layouts[j].Dataset
	})
	return layouts, nil
}

// compileLayout decodes one layout.<name> value and checks its separation rules.
func compileLayout(name string, v cue.Value) (ir.Layout, error) {
	var fields []field
	if err := v.LookupPath(cue.ParsePath("fields")).Decode(&fields); err != nil {
		return ir.Layout{}, formatCUEError(err)
	}

	l := ir.Layout{Dataset: name}
	for _, f := range fields {
		kind := ir.Kind(f.Type)
		if kind == "" {
			kind = ir.KindText
		}
		l.Columns = append(l.Columns, ir.Column{
			Source:    f.Name,
			Kind:      kind,
			Data:      f.Data,
			PII:       f.PII,
			Format:    f.Format,
			Transform: ir.Transform(f.Transform),
		})
	}

	if err := l.Validate(); err != nil {
		return ir.Layout{}, &CompileError{
			Field:   "layout." + name,
			Message: err.Error(),
			Pos:     v.Pos(),
			Err:     err,
		}
	}
	return l, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
			Err:     err,
		}
	}

	return err
}
