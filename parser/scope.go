package parser

import "github.com/builtwithtofu/binfmt/exprlang"

// scope is the per-record context of integer field values visible to
// length_field references, length_expr and switch-expr evaluation, and
// equals_field validation. Name collisions introduced by flattening a
// nested type's fields into the same scope are resolved "first in
// declaration order wins" -- set is therefore set-if-absent.
type scope struct {
	values map[string]int64
}

func newScope() *scope {
	return &scope{values: map[string]int64{}}
}

func (s *scope) set(name string, v int64) {
	if _, exists := s.values[name]; exists {
		return
	}
	s.values[name] = v
}

func (s *scope) get(name string) (int64, bool) {
	v, ok := s.values[name]
	return v, ok
}

func (s *scope) exprContext() exprlang.Context {
	return exprlang.Context(s.values)
}

// absorb flattens a nested record's field values into s, recursing into
// any further-nested records depth-first rather than stopping one level
// deep, so a length reference can name a field at any nesting depth.
func (s *scope) absorb(fields []*ParsedField) {
	for _, f := range fields {
		if f.Value.Kind == ValueInt {
			s.set(f.Name, f.Value.Int)
		}
		if f.Value.Kind == ValueRecord {
			s.absorb(f.Value.Record)
		}
	}
}
