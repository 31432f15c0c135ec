package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
)

// FieldEdit describes a field rename. Zero Type keeps the current type and a
// nil Options keeps the current options.
type FieldEdit struct {
	Name    string
	Type    core.FieldType
	Options []string
}

// MigrationReport summarises a rename sweep over transaction data.
type MigrationReport struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Scanned  int    `json:"scanned"`
	Migrated int    `json:"migrated"`
	// FailedID is the transaction the sweep stopped at, if any.
	FailedID string `json:"failed_id,omitempty"`
}

// Preferences holds the optional top-level settings a user can change.
type Preferences struct {
	Currency             *string
	DateFormat           *string
	NotificationsEnabled *bool
	DefaultDatePeriod    *core.Period
}

func normalizeOptions(t core.FieldType, options []string) []string {
	if t != core.FieldSelect {
		return nil
	}
	cleaned := core.CleanOptions(options)
	if len(cleaned) == 0 {
		return append([]string(nil), core.DefaultSelectOptions...)
	}
	return cleaned
}

// AddField appends a custom field. Names are unique ignoring case.
func (m *Manager) AddField(ctx context.Context, name string, fieldType core.FieldType, options []string) (core.Field, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Field{}, core.ErrEmptyName
	}
	if !fieldType.Valid() {
		return core.Field{}, fmt.Errorf("%w: %q", core.ErrInvalidFieldType, fieldType)
	}
	field := core.Field{Name: name, Type: fieldType, Options: normalizeOptions(fieldType, options)}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.mutateSettings(ctx, applog.OpCreate, func(s *core.Settings) error {
		if s.HasFieldNamed(name, -1) {
			return fmt.Errorf("%w: %q", core.ErrFieldExists, name)
		}
		s.CustomFields = append(s.CustomFields, field)
		return nil
	})
	if err != nil {
		return core.Field{}, err
	}
	return field, nil
}

// RenameField rewrites the field list in one settings update and, when the
// name changed, moves each transaction's value from the old key to the new
// one. The sweep writes records one by one and stops at the first failure;
// records already written stay migrated.
func (m *Manager) RenameField(ctx context.Context, oldName string, edit FieldEdit) (MigrationReport, error) {
	newName := strings.TrimSpace(edit.Name)
	report := MigrationReport{From: oldName, To: newName}
	if newName == "" {
		return report, core.ErrEmptyName
	}
	if edit.Type != "" && !edit.Type.Valid() {
		return report, fmt.Errorf("%w: %q", core.ErrInvalidFieldType, edit.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.mutateSettings(ctx, applog.OpRename, func(s *core.Settings) error {
		idx := s.FieldIndex(oldName)
		if idx < 0 {
			return fmt.Errorf("%w: %q", core.ErrFieldNotFound, oldName)
		}
		if s.HasFieldNamed(newName, idx) {
			return fmt.Errorf("%w: %q", core.ErrFieldExists, newName)
		}
		field := s.CustomFields[idx]
		fieldType := field.Type
		if edit.Type != "" {
			fieldType = edit.Type
		}
		options := field.Options
		if edit.Options != nil {
			options = edit.Options
		}
		s.CustomFields[idx] = core.Field{Name: newName, Type: fieldType, Options: normalizeOptions(fieldType, options)}

		if newName != oldName {
			if values, ok := s.CustomFieldValues[oldName]; ok {
				s.CustomFieldValues[newName] = values
				delete(s.CustomFieldValues, oldName)
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if newName == oldName {
		return report, nil
	}
	return m.migrateKey(ctx, report)
}

func (m *Manager) migrateKey(ctx context.Context, report MigrationReport) (MigrationReport, error) {
	txs, err := m.store.ListTransactions(ctx, m.projectID)
	if err != nil {
		m.logger.Failure(ctx, "Migration sweep could not list transactions", err, applog.OpMigrate, m.projectID)
		return report, fmt.Errorf("%w: list transactions: %v", core.ErrPartialMigration, err)
	}

	for _, tx := range txs {
		report.Scanned++
		value, ok := tx.CustomData[report.From]
		if !ok {
			continue
		}
		data := tx.CustomData.Clone()
		data[report.To] = value
		delete(data, report.From)

		n, err := m.store.UpdateCustomData(ctx, m.projectID, tx.ID, data)
		if err == nil && n == 0 {
			err = core.ErrDenied
		}
		if err != nil {
			report.FailedID = tx.ID
			m.logger.Failure(ctx, "Migration sweep stopped", err, applog.OpMigrate, m.projectID,
				applog.FieldTransactionID, tx.ID,
				"migrated", report.Migrated,
				"from", report.From,
				"to", report.To)
			return report, fmt.Errorf("%w after %d records: %w", core.ErrPartialMigration, report.Migrated, err)
		}
		report.Migrated++
	}

	m.logger.InfoContext(ctx, "Field rename migrated",
		applog.FieldProjectID, m.projectID,
		"from", report.From,
		"to", report.To,
		"scanned", report.Scanned,
		"migrated", report.Migrated)
	return report, nil
}

// DeleteField removes a field from the schema. Transaction data keeps the
// orphaned key.
func (m *Manager) DeleteField(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.mutateSettings(ctx, applog.OpDelete, func(s *core.Settings) error {
		idx := s.FieldIndex(name)
		if idx < 0 {
			return fmt.Errorf("%w: %q", core.ErrFieldNotFound, name)
		}
		s.CustomFields = append(s.CustomFields[:idx], s.CustomFields[idx+1:]...)
		return nil
	})
	return err
}

// MoveField swaps the field at index with its neighbour.
func (m *Manager) MoveField(ctx context.Context, index int, dir Direction) ([]core.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.mutateSettings(ctx, applog.OpMove, func(s *core.Settings) error {
		neighbour := index - 1
		if dir == Down {
			neighbour = index + 1
		}
		if index < 0 || index >= len(s.CustomFields) || neighbour < 0 || neighbour >= len(s.CustomFields) {
			return fmt.Errorf("move field %d: %w", index, core.ErrOutOfRange)
		}
		s.CustomFields[index], s.CustomFields[neighbour] = s.CustomFields[neighbour], s.CustomFields[index]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.CustomFields, nil
}

// ParseValueList splits newline-delimited text into trimmed, non-blank,
// de-duplicated values in input order.
func ParseValueList(text string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		v := strings.TrimSpace(line)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ImportFieldValues replaces the suggestion list of a field.
func (m *Manager) ImportFieldValues(ctx context.Context, fieldName, text string) ([]string, error) {
	values := ParseValueList(text)

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.mutateSettings(ctx, applog.OpImport, func(s *core.Settings) error {
		if s.FieldIndex(fieldName) < 0 {
			return fmt.Errorf("%w: %q", core.ErrFieldNotFound, fieldName)
		}
		s.CustomFieldValues[fieldName] = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// FieldValueSuggestions returns the stored values of a field followed by the
// values already present in transaction data, without duplicates.
func (m *Manager) FieldValueSuggestions(ctx context.Context, fieldName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if m.project.Settings.FieldIndex(fieldName) < 0 {
		return nil, fmt.Errorf("%w: %q", core.ErrFieldNotFound, fieldName)
	}

	txs, err := m.store.ListTransactions(ctx, m.projectID)
	if err != nil {
		m.logger.Failure(ctx, "Suggestion lookup failed", err, applog.OpList, m.projectID)
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	seen := make(map[string]struct{})
	out := []string{}
	for _, v := range m.project.Settings.CustomFieldValues[fieldName] {
		if _, dup := seen[v]; !dup {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	var found []string
	for _, tx := range txs {
		raw, ok := tx.CustomData[fieldName]
		if !ok || raw == nil {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(raw))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		found = append(found, v)
	}
	sort.Strings(found)
	return append(out, found...), nil
}

// UpdatePreferences changes the top-level preference keys of the settings
// document, leaving the field schema untouched.
func (m *Manager) UpdatePreferences(ctx context.Context, prefs Preferences) (core.Settings, error) {
	if prefs.Currency != nil {
		if err := core.ValidateCurrency(*prefs.Currency); err != nil {
			return core.Settings{}, err
		}
	}
	if prefs.DateFormat != nil && strings.TrimSpace(*prefs.DateFormat) == "" {
		return core.Settings{}, fmt.Errorf("date format: %w", core.ErrEmptyName)
	}
	if prefs.DefaultDatePeriod != nil && !prefs.DefaultDatePeriod.Valid() {
		return core.Settings{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, *prefs.DefaultDatePeriod)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mutateSettings(ctx, applog.OpUpdate, func(s *core.Settings) error {
		if prefs.Currency != nil {
			s.Currency = *prefs.Currency
		}
		if prefs.DateFormat != nil {
			s.DateFormat = strings.TrimSpace(*prefs.DateFormat)
		}
		if prefs.NotificationsEnabled != nil {
			s.NotificationsEnabled = *prefs.NotificationsEnabled
		}
		if prefs.DefaultDatePeriod != nil {
			s.DefaultDatePeriod = *prefs.DefaultDatePeriod
		}
		return nil
	})
}
