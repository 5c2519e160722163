// internal/schema/fields_test.go
package schema

import (
	"errors"
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestValidateFields(t *testing.T) {
	testCases := []struct {
		name    string
		fields  []Field
		wantErr bool
		comment string
	}{
		{
			"valid mixed set",
			[]Field{
				{Name: "title", Type: TypeText, Validation: Validation{Required: true, MaxLength: intPtr(200)}},
				{Name: "views", Type: TypeNumber, Validation: Validation{Min: floatPtr(0)}},
				{Name: "published", Type: TypeBool},
				{Name: "status", Type: TypeSelect, Validation: Validation{Values: []string{"draft", "live"}}},
				{Name: "author", Type: TypeRelation, Relation: &RelationOptions{Collection: "users_public"}},
			},
			false, "",
		},
		{"invalid name", []Field{{Name: "1title", Type: TypeText}}, true, "must start with a letter"},
		{"reserved name", []Field{{Name: "id", Type: TypeText}}, true, "system column"},
		{"reserved storage column", []Field{{Name: "created_at", Type: TypeText}}, true, "system column"},
		{"sql keyword name", []Field{{Name: "select", Type: TypeText}}, true, "SQL keyword"},
		{
			"duplicate case-insensitive",
			[]Field{{Name: "Title", Type: TypeText}, {Name: "title", Type: TypeText}},
			true, "names collide after lowering",
		},
		{"unsupported type", []Field{{Name: "title", Type: "varchar"}}, true, ""},
		{
			"min greater than max",
			[]Field{{Name: "views", Type: TypeNumber, Validation: Validation{Min: floatPtr(10), Max: floatPtr(1)}}},
			true, "",
		},
		{
			"negative min_length",
			[]Field{{Name: "title", Type: TypeText, Validation: Validation{MinLength: intPtr(-1)}}},
			true, "",
		},
		{
			"bad pattern",
			[]Field{{Name: "slug", Type: TypeText, Validation: Validation{Pattern: "[unclosed"}}},
			true, "pattern must compile at definition time",
		},
		{"select without values", []Field{{Name: "status", Type: TypeSelect}}, true, ""},
		{"relation without target", []Field{{Name: "author", Type: TypeRelation}}, true, ""},
		{
			"default violates constraints",
			[]Field{{Name: "title", Type: TypeText, Validation: Validation{MaxLength: intPtr(3)}, Default: "too long"}},
			true, "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFields(tc.fields)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateFields() error = %v; wantErr %v. %s", err, tc.wantErr, tc.comment)
			}
			if err != nil {
				var schemaErr *SchemaError
				if !errors.As(err, &schemaErr) {
					t.Errorf("ValidateFields() returned %T; want *SchemaError", err)
				}
			}
		})
	}
}

func TestValidateRecord(t *testing.T) {
	fields := []Field{
		{Name: "title", Type: TypeText, Validation: Validation{Required: true, MaxLength: intPtr(200)}},
		{Name: "slug", Type: TypeText, Validation: Validation{Pattern: `^[a-z0-9-]+$`}},
		{Name: "views", Type: TypeNumber, Validation: Validation{Min: floatPtr(0), Max: floatPtr(1000)}},
		{Name: "published", Type: TypeBool, Default: false},
		{Name: "contact", Type: TypeEmail},
		{Name: "homepage", Type: TypeURL},
		{Name: "status", Type: TypeSelect, Validation: Validation{Values: []string{"draft", "live"}}},
		{Name: "release_date", Type: TypeDate},
	}

	testCases := []struct {
		name      string
		data      map[string]any
		isCreate  bool
		wantField string // expect a validation error on this field; "" means valid
	}{
		{"minimal valid create", map[string]any{"title": "hello"}, true, ""},
		{"missing required on create", map[string]any{"views": float64(1)}, true, "title"},
		{"missing required on update is fine", map[string]any{"views": float64(1)}, false, ""},
		{"explicit null on required", map[string]any{"title": nil}, false, "title"},
		{"unknown field", map[string]any{"title": "x", "color": "red"}, true, "color"},
		{"title too long", map[string]any{"title": strings.Repeat("a", 201)}, true, "title"},
		{"pattern mismatch", map[string]any{"title": "x", "slug": "Bad Slug!"}, true, "slug"},
		{"number below min", map[string]any{"title": "x", "views": float64(-1)}, true, "views"},
		{"number above max", map[string]any{"title": "x", "views": float64(5000)}, true, "views"},
		{"number wrong type", map[string]any{"title": "x", "views": "ten"}, true, "views"},
		{"bool wrong type", map[string]any{"title": "x", "published": "yes"}, true, "published"},
		{"bad email", map[string]any{"title": "x", "contact": "not-an-email"}, true, "contact"},
		{"good email", map[string]any{"title": "x", "contact": "a@b.com"}, true, ""},
		{"bad url scheme", map[string]any{"title": "x", "homepage": "ftp://example.com"}, true, "homepage"},
		{"good url", map[string]any{"title": "x", "homepage": "https://example.com"}, true, ""},
		{"select outside values", map[string]any{"title": "x", "status": "archived"}, true, "status"},
		{"select inside values", map[string]any{"title": "x", "status": "live"}, true, ""},
		{"date rfc3339", map[string]any{"title": "x", "release_date": "2026-08-29T10:00:00Z"}, true, ""},
		{"date plain", map[string]any{"title": "x", "release_date": "2026-08-29"}, true, ""},
		{"date garbage", map[string]any{"title": "x", "release_date": "next tuesday"}, true, "release_date"},
		{"nullable optional", map[string]any{"title": "x", "contact": nil}, true, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRecord(fields, tc.data, tc.isCreate)
			if tc.wantField == "" {
				if err != nil {
					t.Errorf("ValidateRecord() = %v; want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateRecord() = %v (%T); want *ValidationError", err, err)
			}
			if _, ok := verr.Fields[tc.wantField]; !ok {
				t.Errorf("ValidateRecord() errors = %v; want an entry for %q", verr.Fields, tc.wantField)
			}
		})
	}
}

func TestFieldByName(t *testing.T) {
	fields := []Field{{Name: "Title", Type: TypeText}}

	if _, ok := FieldByName(fields, "title"); !ok {
		t.Errorf("FieldByName should match case-insensitively")
	}
	if _, ok := FieldByName(fields, "body"); ok {
		t.Errorf("FieldByName matched a missing field")
	}
}
