package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
	FieldSelect FieldType = "select"
)

// Date periods usable as a filter and as the project default.
const (
	PeriodToday      Period = "today"
	PeriodYesterday  Period = "yesterday"
	PeriodLast7Days  Period = "last7days"
	PeriodLast30Days Period = "last30days"
	PeriodThisMonth  Period = "thisMonth"
	PeriodLastMonth  Period = "lastMonth"
	PeriodThisYear   Period = "thisYear"
	PeriodAll        Period = "all"
	PeriodCustom     Period = "custom"
)

// Defaults substituted for absent settings keys.
const (
	DefaultCurrency   = "USD"
	DefaultDateFormat = "YYYY-MM-DD"
	DefaultPeriod     = PeriodThisMonth
)

// DefaultSelectOptions replace an empty option list on select fields.
var DefaultSelectOptions = []string{"Option 1", "Option 2", "Option 3"}

var (
	ErrFieldExists      = errors.New("a field with this name already exists")
	ErrFieldNotFound    = errors.New("field not found")
	ErrInvalidFieldType = errors.New("invalid field type")
	ErrInvalidPeriod    = errors.New("invalid date period")
)

type (
	FieldType string
	Period    string

	// Field is a user-defined typed column. Name identifies the field and is
	// the key used in Transaction.CustomData.
	Field struct {
		Name    string    `json:"name"`
		Type    FieldType `json:"type"`
		Options []string  `json:"options,omitempty"`
	}

	// Settings is the project settings document. Keys this package does not
	// know about are kept in extra and written back unchanged.
	Settings struct {
		Currency             string
		DateFormat           string
		NotificationsEnabled bool
		CustomFields         []Field
		CustomFieldValues    map[string][]string
		DefaultDatePeriod    Period

		extra map[string]json.RawMessage
	}
)

var knownSettingsKeys = map[string]struct{}{
	"currency":              {},
	"date_format":           {},
	"notifications_enabled": {},
	"custom_fields":         {},
	"custom_field_values":   {},
	"default_date_period":   {},
}

func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldDate, FieldSelect:
		return true
	}
	return false
}

func (p Period) Valid() bool {
	switch p {
	case PeriodToday, PeriodYesterday, PeriodLast7Days, PeriodLast30Days,
		PeriodThisMonth, PeriodLastMonth, PeriodThisYear, PeriodAll, PeriodCustom:
		return true
	}
	return false
}

// DefaultSettings returns a settings document with every default applied.
func DefaultSettings() Settings {
	return Settings{
		Currency:             DefaultCurrency,
		DateFormat:           DefaultDateFormat,
		NotificationsEnabled: true,
		CustomFields:         []Field{},
		CustomFieldValues:    map[string][]string{},
		DefaultDatePeriod:    DefaultPeriod,
	}
}

// DecodeSettings reads a stored settings document. Absent keys, an empty
// document and a JSON null all yield defaults rather than an error.
func DecodeSettings(raw []byte) (Settings, error) {
	s := DefaultSettings()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}

// Encode serializes the full document.
func (s Settings) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func (s Settings) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.extra)+6)
	for k, v := range s.extra {
		doc[k] = v
	}
	fields := s.CustomFields
	if fields == nil {
		fields = []Field{}
	}
	values := s.CustomFieldValues
	if values == nil {
		values = map[string][]string{}
	}
	doc["currency"] = s.Currency
	doc["date_format"] = s.DateFormat
	doc["notifications_enabled"] = s.NotificationsEnabled
	doc["custom_fields"] = fields
	doc["custom_field_values"] = values
	doc["default_date_period"] = s.DefaultDatePeriod
	return json.Marshal(doc)
}

// UnmarshalJSON fills only the keys present in b; callers start from
// DefaultSettings so absent keys keep their defaults.
func (s *Settings) UnmarshalJSON(b []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if s.Currency == "" && s.DateFormat == "" {
		*s = DefaultSettings()
	}
	for key, raw := range doc {
		if _, ok := knownSettingsKeys[key]; !ok {
			if s.extra == nil {
				s.extra = map[string]json.RawMessage{}
			}
			s.extra[key] = raw
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		var err error
		switch key {
		case "currency":
			var v string
			if err = json.Unmarshal(raw, &v); err == nil && strings.TrimSpace(v) != "" {
				s.Currency = v
			}
		case "date_format":
			var v string
			if err = json.Unmarshal(raw, &v); err == nil && strings.TrimSpace(v) != "" {
				s.DateFormat = v
			}
		case "notifications_enabled":
			err = json.Unmarshal(raw, &s.NotificationsEnabled)
		case "custom_fields":
			err = json.Unmarshal(raw, &s.CustomFields)
		case "custom_field_values":
			err = json.Unmarshal(raw, &s.CustomFieldValues)
		case "default_date_period":
			var v Period
			if err = json.Unmarshal(raw, &v); err == nil && v.Valid() {
				s.DefaultDatePeriod = v
			}
		}
		if err != nil {
			return fmt.Errorf("decode settings key %q: %w", key, err)
		}
	}
	if s.CustomFields == nil {
		s.CustomFields = []Field{}
	}
	if s.CustomFieldValues == nil {
		s.CustomFieldValues = map[string][]string{}
	}
	return nil
}

// Clone returns a deep copy so callers can merge into it without touching s.
func (s Settings) Clone() Settings {
	out := s
	out.CustomFields = CloneFields(s.CustomFields)
	out.CustomFieldValues = make(map[string][]string, len(s.CustomFieldValues))
	for k, v := range s.CustomFieldValues {
		out.CustomFieldValues[k] = append([]string(nil), v...)
	}
	if s.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(s.extra))
		for k, v := range s.extra {
			out.extra[k] = v
		}
	}
	return out
}

// FieldIndex returns the position of the field named name (exact match) or -1.
func (s Settings) FieldIndex(name string) int {
	for i, f := range s.CustomFields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// HasFieldNamed reports a case-insensitive name collision, ignoring the
// field at position skip (pass -1 to check all).
func (s Settings) HasFieldNamed(name string, skip int) bool {
	for i, f := range s.CustomFields {
		if i == skip {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(f.Name), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// CloneFields copies a field slice including option slices.
func CloneFields(in []Field) []Field {
	out := make([]Field, len(in))
	for i, f := range in {
		out[i] = Field{Name: f.Name, Type: f.Type, Options: append([]string(nil), f.Options...)}
	}
	return out
}

// CleanOptions trims options and drops blanks, keeping input order.
func CleanOptions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}
