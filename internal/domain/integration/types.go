package integration

import (
	"strings"
)

// SystemCode identifies a remote directory system (e.g. "exchange", "carddav")
type SystemCode string

// String returns the string representation
func (s SystemCode) String() string {
	return string(s)
}

// IsValid returns true if the code is non-empty and lowercase ASCII
func (s SystemCode) IsValid() bool {
	if s == "" {
		return false
	}
	return strings.ToLower(string(s)) == string(s) && !strings.ContainsAny(string(s), " \t\n")
}

// EntityType identifies the kind of record being synchronized
type EntityType string

const (
	EntityTypeContact       EntityType = "contact"
	EntityTypeCalendarEvent EntityType = "calendar_event"
)

// String returns the string representation
func (e EntityType) String() string {
	return string(e)
}

// IsValid returns true if the entity type is one of the supported types
func (e EntityType) IsValid() bool {
	switch e {
	case EntityTypeContact, EntityTypeCalendarEvent:
		return true
	}
	return false
}

// AllEntityTypes returns every supported entity type
func AllEntityTypes() []EntityType {
	return []EntityType{EntityTypeContact, EntityTypeCalendarEvent}
}

// VersionToken is an opaque stamp assigned by the remote system.
// It is only ever compared for equality.
type VersionToken string

// Equal reports whether two tokens denote the same remote version
func (v VersionToken) Equal(other VersionToken) bool {
	return v == other
}

// IsEmpty returns true if no token has been recorded
func (v VersionToken) IsEmpty() bool {
	return v == ""
}

// String returns the string representation
func (v VersionToken) String() string {
	return string(v)
}

// Representation is a flat remote-side field set keyed by remote field name
type Representation map[string]string

// Clone returns a shallow copy of the representation
func (r Representation) Clone() Representation {
	out := make(Representation, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields is a flat local-side field set keyed by local field name
type Fields map[string]string

// Clone returns a shallow copy of the field set
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in no particular order
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return keys
}
