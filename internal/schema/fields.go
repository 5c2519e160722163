// internal/schema/fields.go
package schema

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/vertabase/verta-backend/internal/core"
)

// FieldType enumerates the closed set of supported field types.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeBool     FieldType = "bool"
	TypeDate     FieldType = "date"
	TypeEditor   FieldType = "editor" // long-form text
	TypeEmail    FieldType = "email"
	TypeURL      FieldType = "url"
	TypeSelect   FieldType = "select"
	TypeRelation FieldType = "relation"
	TypeFile     FieldType = "file" // stores file ids; blob storage lives elsewhere
)

var fieldTypes = map[FieldType]bool{
	TypeText: true, TypeNumber: true, TypeBool: true, TypeDate: true,
	TypeEditor: true, TypeEmail: true, TypeURL: true, TypeSelect: true,
	TypeRelation: true, TypeFile: true,
}

// Validation holds the optional constraints of a field.
type Validation struct {
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Values    []string `json:"values,omitempty"` // allowed values for select
}

// RelationOptions names the target of a relation field.
type RelationOptions struct {
	Collection    string `json:"collection"`
	CascadeDelete bool   `json:"cascade_delete,omitempty"`
}

// Field is one named, typed attribute of a collection schema.
type Field struct {
	Name       string           `json:"name"`
	Type       FieldType        `json:"type"`
	Validation Validation       `json:"validation"`
	Relation   *RelationOptions `json:"relation,omitempty"`
	Default    any              `json:"default,omitempty"`
}

// ColumnType maps a field type to its SQLite storage type.
func ColumnType(t FieldType) string {
	switch t {
	case TypeNumber:
		return "REAL"
	case TypeBool:
		return "BOOLEAN"
	default:
		// text, editor, email, url, select, relation, file (file ids as
		// JSON), date (RFC 3339 string)
		return "TEXT"
	}
}

// ValidateFields checks a full field set at definition time: names, types and
// internal consistency of the constraint options. Returns a *SchemaError.
func ValidateFields(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f.Name)
		if !core.IsValidIdentifier(f.Name) || core.IsReservedName(f.Name) {
			return newSchemaError("invalid field name '%s'", f.Name)
		}
		if seen[lower] {
			return newSchemaError("duplicate field name '%s'", f.Name)
		}
		seen[lower] = true

		if !fieldTypes[f.Type] {
			return newSchemaError("unsupported type '%s' for field '%s'", f.Type, f.Name)
		}

		v := f.Validation
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			return newSchemaError("field '%s': min is greater than max", f.Name)
		}
		if v.MinLength != nil && *v.MinLength < 0 {
			return newSchemaError("field '%s': min_length must not be negative", f.Name)
		}
		if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
			return newSchemaError("field '%s': min_length is greater than max_length", f.Name)
		}
		if v.Pattern != "" {
			if _, err := regexp.Compile(v.Pattern); err != nil {
				return newSchemaError("field '%s': invalid pattern: %v", f.Name, err)
			}
		}
		if f.Type == TypeSelect && len(v.Values) == 0 {
			return newSchemaError("field '%s': select fields require allowed values", f.Name)
		}
		if f.Type == TypeRelation && (f.Relation == nil || f.Relation.Collection == "") {
			return newSchemaError("field '%s': relation fields require a target collection", f.Name)
		}
		if f.Default != nil {
			if msg := validateValue(f, f.Default); msg != "" {
				return newSchemaError("field '%s': invalid default: %s", f.Name, msg)
			}
		}
	}
	return nil
}

// FieldByName does a case-insensitive lookup in a field set.
func FieldByName(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// ValidateRecord checks a write payload against a field set. Unknown keys are
// rejected, required fields are enforced on create only, and every present
// value must satisfy its field's constraints. Returns a *ValidationError
// listing every offending field at once.
func ValidateRecord(fields []Field, data map[string]any, isCreate bool) error {
	verr := NewValidationError()

	if isCreate {
		for _, f := range fields {
			if !f.Validation.Required {
				continue
			}
			if _, ok := data[f.Name]; !ok && f.Default == nil {
				verr.Fields[f.Name] = "this field is required"
			}
		}
	}

	for name, value := range data {
		f, ok := FieldByName(fields, name)
		if !ok {
			verr.Fields[name] = "unknown field"
			continue
		}
		if value == nil {
			if f.Validation.Required {
				verr.Fields[name] = "this field is required"
			}
			continue
		}
		if msg := validateValue(f, value); msg != "" {
			verr.Fields[name] = msg
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// validateValue checks one value against one field's type and constraints.
// Returns an empty string when the value is acceptable.
func validateValue(f Field, value any) string {
	v := f.Validation

	switch f.Type {
	case TypeText, TypeEditor:
		s, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		return checkStringConstraints(s, v)

	case TypeNumber:
		n, ok := asNumber(value)
		if !ok {
			return "must be a number"
		}
		if v.Min != nil && n < *v.Min {
			return fmt.Sprintf("minimum value is %v", *v.Min)
		}
		if v.Max != nil && n > *v.Max {
			return fmt.Sprintf("maximum value is %v", *v.Max)
		}

	case TypeBool:
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}

	case TypeDate:
		s, ok := value.(string)
		if !ok {
			return "must be a date string"
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			if _, err := time.Parse("2006-01-02", s); err != nil {
				return "invalid date format"
			}
		}

	case TypeEmail:
		s, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return "invalid email format"
		}

	case TypeURL:
		s, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			return "invalid URL format"
		}

	case TypeSelect:
		s, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		for _, allowed := range v.Values {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("must be one of: %s", strings.Join(v.Values, ", "))

	case TypeRelation:
		if _, ok := value.(string); !ok {
			return "must be a record id"
		}

	case TypeFile:
		list, ok := value.([]any)
		if !ok {
			return "must be an array of file ids"
		}
		for _, el := range list {
			if _, ok := el.(string); !ok {
				return "must be an array of file ids"
			}
		}
	}
	return ""
}

func checkStringConstraints(s string, v Validation) string {
	if v.MinLength != nil && len(s) < *v.MinLength {
		return fmt.Sprintf("minimum length is %d", *v.MinLength)
	}
	if v.MaxLength != nil && len(s) > *v.MaxLength {
		return fmt.Sprintf("maximum length is %d", *v.MaxLength)
	}
	if v.Pattern != "" {
		// Pattern is pre-compiled at definition time; a failure here means
		// the stored schema predates a validation fix, treat as no match.
		re, err := regexp.Compile(v.Pattern)
		if err != nil || !re.MatchString(s) {
			return "does not match the required pattern"
		}
	}
	return ""
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
