package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// Common allowed sort fields for entities with base fields
// These are the common fields present in most entities

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// IdentitySortFields contains allowed sort fields for canonical identities
var IdentitySortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"canonical_key": true,
	"display_name":  true,
	"city":          true,
	"state":         true,
	"postal_code":   true,
	"email":         true,
	"provenance":    true,
}

// OrderSortFields contains allowed sort fields for orders
var OrderSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"updated_at":        true,
	"order_number":      true,
	"order_number_norm": true,
	"order_date":        true,
	"ship_date":         true,
	"status":            true,
	"source":            true,
	"external_key":      true,
}

// DistributionSortFields contains allowed sort fields for distribution records
var DistributionSortFields = map[string]bool{
	"id":                    true,
	"created_at":            true,
	"updated_at":            true,
	"sku":                   true,
	"quantity":              true,
	"lot_canonical":         true,
	"ship_date":             true,
	"source":                true,
	"external_key":          true,
	"identity_display_name": true,
	"matched_at":            true,
}

// MergeCandidateSortFields contains allowed sort fields for merge candidates
var MergeCandidateSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"status":     true,
	"confidence": true,
}

// RunSortFields contains allowed sort fields for ingestion runs
var RunSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"kind":         true,
	"source":       true,
	"file_name":    true,
	"file_size":    true,
	"total_rows":   true,
	"status":       true,
	"started_at":   true,
	"completed_at": true,
}

// LotReferenceSortFields contains allowed sort fields for lot references
var LotReferenceSortFields = map[string]bool{
	"lot_canonical":      true,
	"manufacturing_year": true,
	"sku":                true,
	"created_at":         true,
	"updated_at":         true,
}
