package mapping

import (
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
)

// Registry resolves mapping tables by entity type
type Registry struct {
	tables map[integration.EntityType]*Table
}

var _ integration.MapperRegistry = (*Registry)(nil)

// NewRegistry checks every table for completeness and indexes it by entity type
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[integration.EntityType]*Table, len(tables))}
	for _, t := range tables {
		if err := t.CheckComplete(); err != nil {
			return nil, err
		}
		if _, dup := r.tables[t.EntityType()]; dup {
			return nil, fmt.Errorf("mapping: duplicate table for %s", t.EntityType())
		}
		r.tables[t.EntityType()] = t
	}
	return r, nil
}

// DefaultRegistry returns the contact and calendar event tables
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(ContactTable(), CalendarEventTable())
}

// Mapper returns the table of entityType
func (r *Registry) Mapper(entityType integration.EntityType) (integration.Mapper, error) {
	t, ok := r.tables[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnsupportedEntityType, entityType)
	}
	return t, nil
}

// Schema returns the local schema of entityType
func (r *Registry) Schema(entityType integration.EntityType) (Schema, error) {
	t, ok := r.tables[entityType]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", integration.ErrUnsupportedEntityType, entityType)
	}
	return t.Schema(), nil
}
