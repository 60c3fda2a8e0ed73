// Package validation implements declarative request payload validation with
// per-field error detail. Guard policies attach a Schema; the validated
// payload is handed to the business handler only after every rule passes.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldType constrains the JSON type of a field value
type FieldType string

const (
	TypeString      FieldType = "string"
	TypeNumber      FieldType = "number"
	TypeBool        FieldType = "bool"
	TypeStringSlice FieldType = "string_slice"
)

// Field describes validation rules for a single payload field
type Field struct {
	Name     string
	Type     FieldType
	Required bool

	// String rules
	MinLen int
	MaxLen int
	Enum   []string
	Email  bool

	// Slice rules
	MinItems int
}

// Schema is an ordered set of field rules for one request payload
type Schema struct {
	Fields []Field
}

// Result carries the outcome of validating a payload
type Result struct {
	Valid  bool
	Errors map[string]string
}

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks data against the schema. Unknown fields are ignored; every
// violated rule adds one entry to Errors keyed by field name. Only the first
// violation per field is reported.
func (s *Schema) Validate(data map[string]interface{}) *Result {
	errs := make(map[string]string)

	for _, f := range s.Fields {
		raw, present := data[f.Name]
		if !present || raw == nil {
			if f.Required {
				errs[f.Name] = "is required"
			}
			continue
		}

		switch f.Type {
		case TypeString:
			str, ok := raw.(string)
			if !ok {
				errs[f.Name] = "must be a string"
				continue
			}
			if f.Required && strings.TrimSpace(str) == "" {
				errs[f.Name] = "is required"
				continue
			}
			if f.MinLen > 0 && len(str) < f.MinLen {
				errs[f.Name] = fmt.Sprintf("must be at least %d characters", f.MinLen)
				continue
			}
			if f.MaxLen > 0 && len(str) > f.MaxLen {
				errs[f.Name] = fmt.Sprintf("must be at most %d characters", f.MaxLen)
				continue
			}
			if f.Email && !emailRegex.MatchString(str) {
				errs[f.Name] = "must be a valid email address"
				continue
			}
			if len(f.Enum) > 0 && !contains(f.Enum, str) {
				errs[f.Name] = "must be one of " + strings.Join(f.Enum, ", ")
				continue
			}

		case TypeNumber:
			// JSON numbers decode as float64
			if _, ok := raw.(float64); !ok {
				errs[f.Name] = "must be a number"
			}

		case TypeBool:
			if _, ok := raw.(bool); !ok {
				errs[f.Name] = "must be a boolean"
			}

		case TypeStringSlice:
			items, ok := toStringSlice(raw)
			if !ok {
				errs[f.Name] = "must be an array of strings"
				continue
			}
			if f.MinItems > 0 && len(items) < f.MinItems {
				errs[f.Name] = fmt.Sprintf("must contain at least %d items", f.MinItems)
				continue
			}
			if len(f.Enum) > 0 {
				for _, item := range items {
					if !contains(f.Enum, item) {
						errs[f.Name] = "must only contain " + strings.Join(f.Enum, ", ")
						break
					}
				}
			}
		}
	}

	return &Result{Valid: len(errs) == 0, Errors: errs}
}

// StringField returns a string value from a validated payload. Call only
// after Validate reported success for a schema that types the field.
func StringField(data map[string]interface{}, name string) string {
	if v, ok := data[name].(string); ok {
		return v
	}
	return ""
}

// StringSliceField returns a string slice from a validated payload.
func StringSliceField(data map[string]interface{}, name string) []string {
	items, _ := toStringSlice(data[name])
	return items
}

func toStringSlice(raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			items = append(items, s)
		}
		return items, true
	default:
		return nil, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
