package persistence

import (
	"testing"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns DESC", "", "DESC"},
		{"ASC uppercase returns ASC", "ASC", "ASC"},
		{"asc lowercase returns ASC", "asc", "ASC"},
		{"desc returns DESC", "desc", "DESC"},
		{"invalid value returns DESC", "INVALID", "DESC"},
		{"sql injection attempt returns DESC", "ASC; DROP TABLE sync_jobs;--", "DESC"},
		{"whitespace around asc returns ASC", "  asc  ", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns default", "", "updated_at"},
		{"whitelisted field", "priority", "priority"},
		{"whitespace around field", "  not_before  ", "not_before"},
		{"unknown field returns default", "remote_id", "updated_at"},
		{"case sensitive", "PRIORITY", "updated_at"},
		{"injection returns default", "priority; DROP TABLE sync_jobs;--", "updated_at"},
		{"subquery returns default", "id, (SELECT token FROM sync_subscriptions)", "updated_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, SyncJobSortFields, "updated_at"))
		})
	}
}

func TestOrderClause(t *testing.T) {
	filter := shared.DefaultFilter()
	assert.Equal(t, "created_at DESC, id ASC", orderClause(filter, LocalRecordSortFields, "updated_at"))

	filter.OrderBy = "priority"
	filter.OrderDir = "asc"
	assert.Equal(t, "priority ASC, id ASC", orderClause(filter, SyncJobSortFields, "updated_at"))
	// priority is not a binding column
	assert.Equal(t, "updated_at ASC, id ASC", orderClause(filter, BindingSortFields, "updated_at"))
}

func TestSortFieldsWhitelists(t *testing.T) {
	whitelists := map[string]map[string]bool{
		"LocalRecordSortFields": LocalRecordSortFields,
		"BindingSortFields":     BindingSortFields,
		"SyncJobSortFields":     SyncJobSortFields,
	}
	for name, whitelist := range whitelists {
		assert.True(t, whitelist["created_at"], "%s should contain created_at", name)
		assert.True(t, whitelist["updated_at"], "%s should contain updated_at", name)
		assert.False(t, whitelist["id; --"], name)
	}
}
