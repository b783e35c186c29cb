// Package entity holds the records tracked by the register and their
// schema-driven field values. Values are reconciled against the owning
// category's field definitions: unknown keys are dropped silently so the
// schema and stored data can evolve independently.
package entity

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"opreg/internal/models"
	"opreg/internal/schema"
	"opreg/internal/validation"
)

// ErrNotFound is returned when a referenced entity or its category is absent.
var ErrNotFound = errors.New("not found")

// basicColumns are the entity columns a basic patch may touch. Anything
// else (ids, timestamps, joined values) is rejected.
var basicColumns = map[string]bool{
	"display_name":   true,
	"responsible_id": true,
	"active":         true,
}

// Store provides entity record operations over the backing database.
type Store struct {
	DB       *sql.DB
	Registry *schema.Registry

	// NextID generates sequential record IDs (e.g. "ENT-2026-0001").
	NextID func(prefix, table string, digits int) string
}

// Get returns one entity without its stored values.
func (s *Store) Get(id string) (*models.Entity, error) {
	var e models.Entity
	err := s.DB.QueryRow(`SELECT id, category_id, display_name, responsible_id, active, created_at
		FROM entities WHERE id = ?`, id).
		Scan(&e.ID, &e.CategoryID, &e.DisplayName, &e.ResponsibleID, &e.Active, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return &e, nil
}

// ListByCategory returns the category's entities, newest first.
func (s *Store) ListByCategory(categoryID string) ([]models.Entity, error) {
	rows, err := s.DB.Query(`SELECT id, category_id, display_name, responsible_id, active, created_at
		FROM entities WHERE category_id = ? ORDER BY created_at DESC, id DESC`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var items []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.CategoryID, &e.DisplayName, &e.ResponsibleID, &e.Active, &e.CreatedAt); err != nil {
			continue
		}
		items = append(items, e)
	}
	if items == nil {
		items = []models.Entity{}
	}
	return items, nil
}

// Create inserts a new entity and reconciles its initial values against
// the category schema in one transaction. Keys with no matching field
// definition are dropped without error.
func (s *Store) Create(categoryID, displayName string, initialValues map[string]interface{}, responsibleID *int) (*models.Entity, error) {
	if _, err := s.Registry.GetCategory(categoryID); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
		}
		return nil, err
	}

	var ve validation.ValidationErrors
	validation.RequireField(&ve, "display_name", displayName)
	if ve.HasErrors() {
		return nil, &ve
	}

	defs, err := s.Registry.FieldsByKey(categoryID)
	if err != nil {
		return nil, err
	}

	id := s.NextID("ENT", "entities", 4)

	tx, err := s.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO entities (id, category_id, display_name, responsible_id, active)
		VALUES (?, ?, ?, ?, 1)`, id, categoryID, displayName, responsibleID); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}

	if err := upsertValues(tx, id, defs, initialValues); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	return s.Get(id)
}

// Update applies a basic column patch and/or a values patch. The values
// patch upserts one row per known key, resetting all three value slots
// before populating the one matching the field's kind, so stale slots
// left by a kind change are cleared. Returns ErrNotFound when the entity
// or its category cannot be resolved.
func (s *Store) Update(id string, basicPatch map[string]interface{}, valuesPatch map[string]interface{}) (*models.Entity, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if len(basicPatch) > 0 {
		if err := s.applyBasicPatch(id, basicPatch); err != nil {
			return nil, err
		}
	}

	if len(valuesPatch) > 0 {
		defs, err := s.Registry.FieldsByKey(e.CategoryID)
		if err != nil {
			if errors.Is(err, schema.ErrNotFound) {
				return nil, fmt.Errorf("category %s: %w", e.CategoryID, ErrNotFound)
			}
			return nil, err
		}

		tx, err := s.DB.Begin()
		if err != nil {
			return nil, fmt.Errorf("update entity %s: %w", id, err)
		}
		defer tx.Rollback()

		if err := upsertValues(tx, id, defs, valuesPatch); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("update entity %s: %w", id, err)
		}
	}

	return s.Get(id)
}

func (s *Store) applyBasicPatch(id string, patch map[string]interface{}) error {
	var ve validation.ValidationErrors
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if !basicColumns[k] {
			ve.Add(k, "is not a patchable entity column")
			continue
		}
		keys = append(keys, k)
	}
	if ve.HasErrors() {
		return &ve
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := s.DB.Exec("UPDATE entities SET "+k+" = ? WHERE id = ?", patch[k], id); err != nil {
			return fmt.Errorf("patch entity %s: %w", id, err)
		}
	}
	return nil
}

// FetchWithValues returns the requested entities, each with a flat
// field_key -> value mapping resolved through the category schema.
// Fields with no stored value are absent from the mapping.
func (s *Store) FetchWithValues(ids []string) ([]models.Entity, error) {
	var items []models.Entity
	for _, id := range ids {
		e, err := s.Get(id)
		if err != nil {
			return nil, err
		}

		rows, err := s.DB.Query(`SELECT d.field_key, d.kind, v.text_value, v.date_value, v.json_value
			FROM field_values v
			JOIN field_definitions d ON d.id = v.field_definition_id
			WHERE v.entity_id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("fetch values for %s: %w", id, err)
		}

		values := make(map[string]interface{})
		for rows.Next() {
			var key, kind string
			var text, date, jsonv *string
			if err := rows.Scan(&key, &kind, &text, &date, &jsonv); err != nil {
				continue
			}
			switch {
			case date != nil:
				values[key] = *date
			case jsonv != nil:
				var decoded interface{}
				if err := json.Unmarshal([]byte(*jsonv), &decoded); err == nil {
					values[key] = decoded
				} else {
					values[key] = *jsonv
				}
			case text != nil:
				values[key] = *text
			}
		}
		rows.Close()

		e.Values = values
		items = append(items, *e)
	}
	if items == nil {
		items = []models.Entity{}
	}
	return items, nil
}

// Delete removes an entity; its field values go with it (FK cascade).
func (s *Store) Delete(id string) error {
	res, err := s.DB.Exec("DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entity %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return nil
}
