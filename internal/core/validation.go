// internal/core/validation.go
package core

import (
	"regexp"
	"strings"
)

// Regular expression for valid collection/field names (letter first, then
// alphanumeric + underscore)
var nameValidationRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// reservedNames are system column names and SQL keywords that can never be
// used as a field or collection name.
var reservedNames = map[string]bool{
	"id": true, "created": true, "updated": true, "deleted": true,
	"created_at": true, "updated_at": true,
	"select": true, "from": true, "where": true, "insert": true,
	"update": true, "delete": true, "table": true, "index": true,
	"primary": true, "foreign": true, "key": true,
	"group": true, "order": true, "limit": true, "offset": true,
}

// IsValidIdentifier checks if a string is usable as a collection or field
// name. Applies basic format and length checks.
func IsValidIdentifier(name string) bool {
	return nameValidationRegex.MatchString(name) && len(name) <= 64
}

// IsReservedName reports whether the name collides with a system column or
// a SQL keyword.
func IsReservedName(name string) bool {
	return reservedNames[strings.ToLower(name)]
}
