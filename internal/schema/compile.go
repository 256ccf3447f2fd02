package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/pagecache/internal/page"
)

// CompileType parses a CUE value into a Schema. The value is the type struct
// itself; its label names the page type:
//
//	page: Email: {
//		fields: {
//			subject:  string
//			sent:     "time"
//			thread?:  "ref"
//			labels?:  [...string]
//			deleted:  bool
//		}
//		invalid_when: deleted: true
//	}
//
// Plain CUE kinds map to string, int, bool, list and blob (bytes). The kinds
// CUE cannot express (time, ref) and any kind spelled out explicitly are
// written as string literals. Optional fields use the CUE "?" marker.
func CompileType(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		s.Type = labels[len(labels)-1].Unquoted()
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		kind, err := extractKind(iter.Value())
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, Field{Name: name, Kind: kind, Optional: iter.IsOptional()})
	}

	invalidVal := v.LookupPath(cue.ParsePath("invalid_when"))
	if invalidVal.Exists() {
		s.InvalidWhen = page.Attributes{}
		iter, err := invalidVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			f, ok := s.Field(name)
			if !ok {
				return nil, &CompileError{
					Field:   "invalid_when." + name,
					Message: "unknown field",
					Pos:     iter.Value().Pos(),
				}
			}
			val, err := literalFromCUE(iter.Value(), f.Kind)
			if err != nil {
				return nil, err
			}
			s.InvalidWhen[name] = val
		}
	}

	if err := s.Check(); err != nil {
		return nil, &CompileError{Field: "page." + s.Type, Message: err.Error(), Pos: v.Pos()}
	}
	return s, nil
}

// CompileSource compiles every type declared under the top-level "page"
// struct of a CUE source string.
func CompileSource(src string) ([]Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileAll(v)
}

// LoadDir loads the CUE package in dir and compiles every declared type.
func LoadDir(dir string) ([]Schema, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schemas directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schemas directory: not a directory: %s", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileAll(value)
}

func compileAll(v cue.Value) ([]Schema, error) {
	typesVal := v.LookupPath(cue.ParsePath("page"))
	if !typesVal.Exists() {
		return nil, &CompileError{Field: "page", Message: "no page types declared", Pos: v.Pos()}
	}
	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	schemas := []Schema{}
	for iter.Next() {
		s, err := CompileType(iter.Value())
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, *s)
	}
	return schemas, nil
}

// extractKind converts a CUE field declaration into an attribute kind.
// Floats are forbidden; numeric attributes are int.
func extractKind(v cue.Value) (page.Kind, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		kind, err := page.ParseKind(name)
		if err != nil {
			return "", &CompileError{Field: "kind", Message: err.Error(), Pos: v.Pos()}
		}
		return kind, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return page.KindString, nil
	case cue.IntKind:
		return page.KindInt, nil
	case cue.BoolKind:
		return page.KindBool, nil
	case cue.ListKind:
		return page.KindList, nil
	case cue.BytesKind:
		return page.KindBlob, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "kind",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// literalFromCUE converts a concrete CUE value into an attribute of kind.
func literalFromCUE(v cue.Value, kind page.Kind) (page.Value, error) {
	fail := func(err error) (page.Value, error) {
		return nil, &CompileError{Field: "invalid_when", Message: err.Error(), Pos: v.Pos()}
	}
	switch kind {
	case page.KindBool:
		b, err := v.Bool()
		if err != nil {
			return fail(err)
		}
		return page.Bool(b), nil
	case page.KindInt:
		n, err := v.Int64()
		if err != nil {
			return fail(err)
		}
		return page.Int(n), nil
	case page.KindString:
		s, err := v.String()
		if err != nil {
			return fail(err)
		}
		return page.String(s), nil
	case page.KindTime:
		s, err := v.String()
		if err != nil {
			return fail(err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fail(err)
		}
		return page.NewTime(t), nil
	case page.KindRef:
		s, err := v.String()
		if err != nil {
			return fail(err)
		}
		u, err := page.Parse(s)
		if err != nil {
			return fail(err)
		}
		return page.Ref(u), nil
	default:
		return fail(fmt.Errorf("%s fields cannot appear in invalid_when", kind))
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
