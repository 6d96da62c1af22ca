package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FormField is one captured value of an application form.
type FormField struct {
	Label string `json:"label,omitempty"`
	Name  string `json:"name"`
	Value any    `json:"value"`
	File  string `json:"File,omitempty"`
}

// FormDetails groups form fields by section name.
type FormDetails map[string][]FormField

// Well-known field names read by the core.
const (
	FieldApplicantName = "ApplicantName"
	FieldAccountNumber = "AccountNumber"
	FieldIFSC          = "IfscCode"
	FieldDistrict      = "District"
	FieldTehsil        = "Tehsil"
	FieldMobileNumber  = "MobileNumber"
	FieldEmail         = "Email"
	FieldAadhaar       = "AadhaarNumber"
)

// IsAreaField reports whether name decides which offices the workflow routes to.
func IsAreaField(name string) bool {
	return name == FieldDistrict || name == FieldTehsil
}

func ParseFormDetails(raw string) (FormDetails, error) {
	if strings.TrimSpace(raw) == "" {
		return FormDetails{}, nil
	}
	var fd FormDetails
	if err := json.Unmarshal([]byte(raw), &fd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFormDetails, err)
	}
	if err := fd.Validate(); err != nil {
		return nil, err
	}
	return fd, nil
}

func (f FormDetails) JSON() (string, error) {
	if f == nil {
		f = FormDetails{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Validate rejects unnamed or duplicated fields.
func (f FormDetails) Validate() error {
	seen := map[string]string{}
	for section, fields := range f {
		for i, field := range fields {
			name := strings.TrimSpace(field.Name)
			if name == "" {
				return fmt.Errorf("%w: section %q field %d has no name", ErrCorruptFormDetails, section, i)
			}
			if other, ok := seen[name]; ok {
				return fmt.Errorf("%w: field %q appears in sections %q and %q", ErrCorruptFormDetails, name, other, section)
			}
			seen[name] = section
		}
	}
	return nil
}

func (f FormDetails) Field(name string) (FormField, bool) {
	for _, section := range f.sections() {
		for _, field := range f[section] {
			if field.Name == name {
				return field, true
			}
		}
	}
	return FormField{}, false
}

// Value returns the field value rendered as a string; empty when absent.
func (f FormDetails) Value(name string) string {
	field, ok := f.Field(name)
	if !ok || field.Value == nil {
		return ""
	}
	switch v := field.Value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// IntValue parses a numeric field such as a district or tehsil code.
func (f FormDetails) IntValue(name string) (int, error) {
	raw := f.Value(name)
	if raw == "" {
		return 0, fmt.Errorf("field %s is required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("field %s must be numeric: %w", name, err)
	}
	return v, nil
}

// Set updates an existing field value. It reports false when the field is unknown.
func (f FormDetails) Set(name string, value any) bool {
	for section, fields := range f {
		for i := range fields {
			if fields[i].Name == name {
				f[section][i].Value = value
				return true
			}
		}
	}
	return false
}

func (f FormDetails) Clone() FormDetails {
	out := make(FormDetails, len(f))
	for section, fields := range f {
		out[section] = append([]FormField(nil), fields...)
	}
	return out
}

func (f FormDetails) sections() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
