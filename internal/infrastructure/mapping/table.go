// Package mapping holds the typed field tables that translate local records
// to remote representations and back.
package mapping

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidValue is returned when a field value fails its transform or validation
	ErrInvalidValue = errors.New("mapping: invalid field value")
	// ErrIncompleteTable is returned when a table does not cover its entity schema
	ErrIncompleteTable = errors.New("mapping: table does not match entity schema")
)

var validate = validator.New()

// Transform converts one field value
type Transform func(string) (string, error)

// Rule maps one local field to one remote field
type Rule struct {
	Local  string
	Remote string
	// ToRemote and ToLocal default to the identity
	ToRemote Transform
	ToLocal  Transform
	// Validate is a validator tag checked against the local value, e.g. "omitempty,email"
	Validate string
}

// Composite maps several local fields onto one remote field joined by Sep.
// On the way back the remote value is split in order; surplus parts stay on the last field.
type Composite struct {
	Locals []string
	Remote string
	Sep    string
}

// Schema lists the local fields of an entity type
type Schema struct {
	Fields []string
	// LocalOnly fields are never exchanged with the remote side
	LocalOnly []string
}

// Has reports whether name is a schema field
func (s Schema) Has(name string) bool {
	return slices.Contains(s.Fields, name)
}

// Table is the mapping of one entity type; it implements integration.Mapper
type Table struct {
	entityType integration.EntityType
	schema     Schema
	rules      []Rule
	composites []Composite
}

// NewTable creates a table; call CheckComplete before use
func NewTable(entityType integration.EntityType, schema Schema, rules []Rule, composites ...Composite) *Table {
	return &Table{
		entityType: entityType,
		schema:     schema,
		rules:      rules,
		composites: composites,
	}
}

var _ integration.Mapper = (*Table)(nil)

// EntityType returns the entity type the table maps
func (t *Table) EntityType() integration.EntityType {
	return t.entityType
}

// Schema returns the local schema the table was built for
func (t *Table) Schema() Schema {
	return t.schema
}

// ToRemote maps local values. A non-empty subset restricts output to rules touching
// those local fields; absent local values are left out.
func (t *Table) ToRemote(values integration.Fields, subset []string) (integration.Representation, error) {
	wanted := func(local string) bool {
		return len(subset) == 0 || slices.Contains(subset, local)
	}

	rep := integration.Representation{}
	for _, r := range t.rules {
		if !wanted(r.Local) {
			continue
		}
		v, ok := values[r.Local]
		if !ok {
			continue
		}
		if err := check(r, v); err != nil {
			return nil, err
		}
		out, err := apply(r.ToRemote, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, r.Local, err)
		}
		rep[r.Remote] = out
	}

	for _, c := range t.composites {
		if !slices.ContainsFunc(c.Locals, wanted) {
			continue
		}
		parts := make([]string, 0, len(c.Locals))
		for _, local := range c.Locals {
			if v := strings.TrimSpace(values[local]); v != "" {
				parts = append(parts, v)
			}
		}
		rep[c.Remote] = strings.Join(parts, c.Sep)
	}
	return rep, nil
}

// ToLocal maps a remote representation; remote fields without a rule are ignored
// and absent remote fields leave their local fields untouched.
func (t *Table) ToLocal(rep integration.Representation) (integration.Fields, error) {
	fields := integration.Fields{}
	for _, r := range t.rules {
		v, ok := rep[r.Remote]
		if !ok {
			continue
		}
		out, err := apply(r.ToLocal, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", integration.ErrMalformedRepresentation, r.Remote, err)
		}
		if err := check(r, out); err != nil {
			return nil, fmt.Errorf("%w: %w", integration.ErrMalformedRepresentation, err)
		}
		fields[r.Local] = out
	}

	for _, c := range t.composites {
		v, ok := rep[c.Remote]
		if !ok {
			continue
		}
		parts := splitInto(v, c.Sep, len(c.Locals))
		for i, local := range c.Locals {
			fields[local] = parts[i]
		}
	}
	return fields, nil
}

// CheckComplete verifies the table against its schema: every rule names a schema
// field, every schema field is mapped or local-only, and no field is mapped twice.
func (t *Table) CheckComplete() error {
	var errs []error
	locals := map[string]bool{}
	remotes := map[string]bool{}

	claim := func(local, remote string) {
		switch {
		case local == "" || remote == "":
			errs = append(errs, fmt.Errorf("empty field name in rule %q -> %q", local, remote))
			return
		case !t.schema.Has(local):
			errs = append(errs, fmt.Errorf("local field %q is not in the schema", local))
		case locals[local]:
			errs = append(errs, fmt.Errorf("local field %q is mapped twice", local))
		}
		if remotes[remote] && !slices.ContainsFunc(t.composites, func(c Composite) bool { return c.Remote == remote }) {
			errs = append(errs, fmt.Errorf("remote field %q is mapped twice", remote))
		}
		locals[local] = true
		remotes[remote] = true
	}

	for _, r := range t.rules {
		claim(r.Local, r.Remote)
	}
	for _, c := range t.composites {
		if remotes[c.Remote] {
			errs = append(errs, fmt.Errorf("remote field %q is mapped twice", c.Remote))
		}
		if c.Sep == "" {
			errs = append(errs, fmt.Errorf("composite %q has no separator", c.Remote))
		}
		for _, local := range c.Locals {
			claim(local, c.Remote)
		}
	}

	for _, f := range t.schema.Fields {
		if !locals[f] && !slices.Contains(t.schema.LocalOnly, f) {
			errs = append(errs, fmt.Errorf("schema field %q is not mapped", f))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w (%s): %w", ErrIncompleteTable, t.entityType, errors.Join(errs...))
	}
	return nil
}

func apply(fn Transform, v string) (string, error) {
	if fn == nil {
		return v, nil
	}
	return fn(v)
}

func check(r Rule, v string) error {
	if r.Validate == "" {
		return nil
	}
	if err := validate.Var(v, r.Validate); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, r.Local, err)
	}
	return nil
}

// splitInto splits v on sep into exactly n parts; surplus parts are rejoined on the last one
func splitInto(v, sep string, n int) []string {
	out := make([]string, n)
	if v == "" || n == 0 {
		return out
	}
	parts := strings.SplitN(v, sep, n)
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
