package integration

import "github.com/google/uuid"

// LocalChange describes a committed write to the local store
type LocalChange struct {
	EntityType    EntityType
	LocalID       uuid.UUID
	Owner         uuid.UUID
	ChangedFields []string
	// NoExport tags writes performed by the importer so they do not echo back
	NoExport bool
	Deleted  bool
}
