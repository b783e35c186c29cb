// Package schema is the registry of entity categories and their typed
// field definitions. Administrators shape the register at runtime by
// adding fields here; stored values are reconciled against this schema
// by the entity package.
package schema

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"opreg/internal/models"
	"opreg/internal/validation"
)

// ErrNotFound is returned when a referenced category or field is absent.
var ErrNotFound = errors.New("not found")

// Registry provides category and field definition operations over the
// backing database.
type Registry struct {
	DB *sql.DB

	// NextID generates sequential record IDs (e.g. "CAT-2026-001").
	NextID func(prefix, table string, digits int) string
}

// ListCategories returns categories, optionally filtered by module tag.
func (r *Registry) ListCategories(module string) ([]models.Category, error) {
	q := "SELECT id, name, module, active, created_at FROM entity_categories"
	var args []interface{}
	if module != "" {
		q += " WHERE module = ?"
		args = append(args, module)
	}
	q += " ORDER BY name"

	rows, err := r.DB.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Module, &c.Active, &c.CreatedAt); err != nil {
			continue
		}
		cats = append(cats, c)
	}
	if cats == nil {
		cats = []models.Category{}
	}
	return cats, nil
}

// GetCategory returns one category by id.
func (r *Registry) GetCategory(id string) (*models.Category, error) {
	var c models.Category
	err := r.DB.QueryRow("SELECT id, name, module, active, created_at FROM entity_categories WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Module, &c.Active, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &c, nil
}

// CreateCategory inserts a new category under the given module tag.
func (r *Registry) CreateCategory(name, module string) (*models.Category, error) {
	var ve validation.ValidationErrors
	validation.RequireField(&ve, "name", name)
	validation.ValidateEnum(&ve, "module", module, validation.ValidModules)
	validation.RequireField(&ve, "module", module)
	if ve.HasErrors() {
		return nil, &ve
	}

	id := r.NextID("CAT", "entity_categories", 3)
	if _, err := r.DB.Exec("INSERT INTO entity_categories (id, name, module, active) VALUES (?, ?, ?, 1)",
		id, name, module); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return r.GetCategory(id)
}

// ListFields returns the category's field definitions in display order.
func (r *Registry) ListFields(categoryID string) ([]models.FieldDefinition, error) {
	rows, err := r.DB.Query(`SELECT id, category_id, label, field_key, kind, required,
		COALESCE(options,'[]'), display_order, warn_days, urgent_days, critical_days
		FROM field_definitions WHERE category_id = ? ORDER BY display_order, id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var defs []models.FieldDefinition
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			continue
		}
		defs = append(defs, *f)
	}
	if defs == nil {
		defs = []models.FieldDefinition{}
	}
	return defs, nil
}

// FieldsByKey returns the category's field definitions keyed by machine key.
func (r *Registry) FieldsByKey(categoryID string) (map[string]models.FieldDefinition, error) {
	defs, err := r.ListFields(categoryID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]models.FieldDefinition, len(defs))
	for _, f := range defs {
		byKey[f.FieldKey] = f
	}
	return byKey, nil
}

// GetField returns one field definition by id.
func (r *Registry) GetField(id int) (*models.FieldDefinition, error) {
	row := r.DB.QueryRow(`SELECT id, category_id, label, field_key, kind, required,
		COALESCE(options,'[]'), display_order, warn_days, urgent_days, critical_days
		FROM field_definitions WHERE id = ?`, id)
	f, err := scanField(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("field %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get field %d: %w", id, err)
	}
	return f, nil
}

// CreateField registers a new field on a category. A machine key that
// collides with an existing field of the same category (case-sensitive)
// is rejected before any write. Thresholds are stored as given on any
// kind; off expiring_date they are inert downstream.
func (r *Registry) CreateField(categoryID string, def models.FieldDefinition) (*models.FieldDefinition, error) {
	if _, err := r.GetCategory(categoryID); err != nil {
		return nil, err
	}

	var ve validation.ValidationErrors
	validation.RequireField(&ve, "label", def.Label)
	validation.RequireField(&ve, "field_key", def.FieldKey)
	validation.ValidateEnum(&ve, "kind", def.Kind, validation.ValidFieldKinds)
	validation.RequireField(&ve, "kind", def.Kind)
	if def.Kind == "select" && len(def.Options) == 0 {
		ve.Add("options", "select fields need at least one option")
	}
	if def.Kind != "select" && len(def.Options) > 0 {
		ve.Add("options", "only select fields take options")
	}
	for _, t := range []struct {
		name string
		v    *int
	}{{"warn_days", def.WarnDays}, {"urgent_days", def.UrgentDays}, {"critical_days", def.CriticalDays}} {
		if t.v != nil {
			validation.ValidateNonNegativeInt(&ve, t.name, *t.v)
		}
	}

	var dup int
	r.DB.QueryRow("SELECT COUNT(*) FROM field_definitions WHERE category_id = ? AND field_key = ?",
		categoryID, def.FieldKey).Scan(&dup)
	if dup > 0 {
		ve.Add("field_key", "already exists in this category")
	}
	if ve.HasErrors() {
		return nil, &ve
	}

	opts, _ := json.Marshal(def.Options)
	res, err := r.DB.Exec(`INSERT INTO field_definitions
		(category_id, label, field_key, kind, required, options, display_order, warn_days, urgent_days, critical_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		categoryID, def.Label, def.FieldKey, def.Kind, def.Required, string(opts),
		def.DisplayOrder, def.WarnDays, def.UrgentDays, def.CriticalDays)
	if err != nil {
		return nil, fmt.Errorf("create field: %w", err)
	}
	id, _ := res.LastInsertId()
	return r.GetField(int(id))
}

// FieldPatch carries partial updates to a field definition. Nil members
// are left untouched. The machine key is immutable once created.
type FieldPatch struct {
	Label        *string   `json:"label"`
	Kind         *string   `json:"kind"`
	Required     *int      `json:"required"`
	Options      *[]string `json:"options"`
	DisplayOrder *int      `json:"display_order"`
	WarnDays     *int      `json:"warn_days"`
	UrgentDays   *int      `json:"urgent_days"`
	CriticalDays *int      `json:"critical_days"`
}

// UpdateField applies a partial update and returns the stored definition.
func (r *Registry) UpdateField(id int, patch FieldPatch) (*models.FieldDefinition, error) {
	f, err := r.GetField(id)
	if err != nil {
		return nil, err
	}

	var ve validation.ValidationErrors
	if patch.Kind != nil {
		validation.ValidateEnum(&ve, "kind", *patch.Kind, validation.ValidFieldKinds)
	}
	if ve.HasErrors() {
		return nil, &ve
	}

	if patch.Label != nil {
		f.Label = *patch.Label
	}
	if patch.Kind != nil {
		f.Kind = *patch.Kind
	}
	if patch.Required != nil {
		f.Required = *patch.Required
	}
	if patch.Options != nil {
		f.Options = *patch.Options
	}
	if patch.DisplayOrder != nil {
		f.DisplayOrder = *patch.DisplayOrder
	}
	if patch.WarnDays != nil {
		f.WarnDays = patch.WarnDays
	}
	if patch.UrgentDays != nil {
		f.UrgentDays = patch.UrgentDays
	}
	if patch.CriticalDays != nil {
		f.CriticalDays = patch.CriticalDays
	}

	opts, _ := json.Marshal(f.Options)
	_, err = r.DB.Exec(`UPDATE field_definitions SET label=?, kind=?, required=?, options=?,
		display_order=?, warn_days=?, urgent_days=?, critical_days=? WHERE id=?`,
		f.Label, f.Kind, f.Required, string(opts), f.DisplayOrder,
		f.WarnDays, f.UrgentDays, f.CriticalDays, id)
	if err != nil {
		return nil, fmt.Errorf("update field %d: %w", id, err)
	}
	return r.GetField(id)
}

// DeleteField removes a field definition. Stored values referencing it
// are removed with it (FK cascade).
func (r *Registry) DeleteField(id int) error {
	res, err := r.DB.Exec("DELETE FROM field_definitions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete field %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("field %d: %w", id, ErrNotFound)
	}
	return nil
}

// ThresholdFields returns every field definition carrying all three
// alert thresholds. Only expiring_date fields are meaningful candidates;
// the scheduler filters on kind.
func (r *Registry) ThresholdFields() ([]models.FieldDefinition, error) {
	rows, err := r.DB.Query(`SELECT id, category_id, label, field_key, kind, required,
		COALESCE(options,'[]'), display_order, warn_days, urgent_days, critical_days
		FROM field_definitions
		WHERE warn_days IS NOT NULL AND urgent_days IS NOT NULL AND critical_days IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("threshold fields: %w", err)
	}
	defer rows.Close()

	var defs []models.FieldDefinition
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			continue
		}
		defs = append(defs, *f)
	}
	return defs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanField(row rowScanner) (*models.FieldDefinition, error) {
	var f models.FieldDefinition
	var opts string
	if err := row.Scan(&f.ID, &f.CategoryID, &f.Label, &f.FieldKey, &f.Kind, &f.Required,
		&opts, &f.DisplayOrder, &f.WarnDays, &f.UrgentDays, &f.CriticalDays); err != nil {
		return nil, err
	}
	if opts != "" && opts != "[]" {
		_ = json.Unmarshal([]byte(opts), &f.Options)
	}
	return &f, nil
}
