package addressor

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FormattedField receives the full formatted address string.
const FormattedField = "formatted"

// FieldRule says which form field receives a component type and whether the
// short or the long name is written.
type FieldRule struct {
	Field string `yaml:"field" json:"field" validate:"required,max=64"`
	Short bool   `yaml:"short" json:"short"`
}

// FieldMapping maps a component type to its form field.
type FieldMapping map[string]FieldRule

// DefaultFieldMapping returns the built-in table for Google-style component types.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		"route":                       {Field: "street"},
		"premise":                     {Field: "reg_nr"},
		"street_number":               {Field: "house_nr"},
		"postal_code":                 {Field: "postal"},
		"sublocality_level_1":         {Field: "district"},
		"neighborhood":                {Field: "part"},
		"locality":                    {Field: "city"},
		"administrative_area_level_1": {Field: "region"},
		"country":                     {Field: "country", Short: true},
	}
}

// Clone returns an independent copy of m.
func (m FieldMapping) Clone() FieldMapping {
	out := make(FieldMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Lookup returns the rule for a component type.
func (m FieldMapping) Lookup(componentType string) (FieldRule, bool) {
	rule, ok := m[componentType]
	return rule, ok
}

// Fields returns the distinct target field names in sorted order.
func (m FieldMapping) Fields() []string {
	seen := make(map[string]struct{}, len(m))
	fields := make([]string, 0, len(m))
	for _, rule := range m {
		if _, ok := seen[rule.Field]; ok {
			continue
		}
		seen[rule.Field] = struct{}{}
		fields = append(fields, rule.Field)
	}
	sort.Strings(fields)
	return fields
}

// StructValidator validates tagged structs.
type StructValidator interface {
	Struct(s interface{}) error
}

// Validate checks every rule and rejects rules that target the reserved
// formatted field or the search field.
func (m FieldMapping) Validate(val StructValidator, searchField string) error {
	if len(m) == 0 {
		return fmt.Errorf("field mapping is empty")
	}
	for componentType, rule := range m {
		if strings.TrimSpace(componentType) == "" {
			return fmt.Errorf("field mapping has an empty component type")
		}
		if val != nil {
			if err := val.Struct(rule); err != nil {
				return fmt.Errorf("field mapping %q: %w", componentType, err)
			}
		}
		if rule.Field == FormattedField || rule.Field == searchField {
			return fmt.Errorf("field mapping %q targets reserved field %q", componentType, rule.Field)
		}
	}
	return nil
}

// LoadFieldMapping reads a YAML mapping of component type to rule:
//
//	locality: {field: city}
//	country:  {field: country, short: true}
func LoadFieldMapping(path string, val StructValidator, searchField string) (FieldMapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field mapping: %w", err)
	}
	return ParseFieldMapping(raw, val, searchField)
}

// ParseFieldMapping decodes and validates a YAML field mapping.
func ParseFieldMapping(raw []byte, val StructValidator, searchField string) (FieldMapping, error) {
	var m FieldMapping
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode field mapping: %w", err)
	}
	if err := m.Validate(val, searchField); err != nil {
		return nil, err
	}
	return m, nil
}
