package persistence

import (
	"strings"

	"github.com/erp/connector/internal/domain/shared"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC.
// Anything other than asc falls back to DESC.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted, defaultField otherwise
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// orderClause builds an ORDER BY clause from a filter. The id tiebreaker
// keeps paging stable when many rows share a timestamp.
func orderClause(filter shared.Filter, allowedFields map[string]bool, defaultField string) string {
	return ValidateSortField(filter.OrderBy, allowedFields, defaultField) + " " +
		ValidateSortOrder(filter.OrderDir) + ", id ASC"
}

// LocalRecordSortFields contains allowed sort fields for local records
var LocalRecordSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
}

// BindingSortFields contains allowed sort fields for bindings
var BindingSortFields = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"last_sync_at": true,
}

// SyncJobSortFields contains allowed sort fields for sync jobs
var SyncJobSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"not_before": true,
	"priority":   true,
}
