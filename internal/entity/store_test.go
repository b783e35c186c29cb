package entity

import (
	"database/sql"
	"errors"
	"sync"
	"testing"

	"opreg/internal/models"
	"opreg/internal/schema"
	"opreg/internal/testutil"
	"opreg/internal/validation"
)

func intPtr(n int) *int { return &n }

func newTestStore(t *testing.T) (*Store, *schema.Registry) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	nextID := testutil.SequentialID()
	reg := &schema.Registry{DB: db, NextID: nextID}
	return &Store{DB: db, Registry: reg, NextID: nextID}, reg
}

// seedTruckCategory sets up a category with one field per kind.
func seedTruckCategory(t *testing.T, reg *schema.Registry) *models.Category {
	t.Helper()
	cat, err := reg.CreateCategory("Trucks", "vehicles")
	if err != nil {
		t.Fatal(err)
	}
	fields := []models.FieldDefinition{
		{Label: "Plate", FieldKey: "plate", Kind: "text"},
		{Label: "Mileage", FieldKey: "mileage", Kind: "number"},
		{Label: "Purchased", FieldKey: "purchased", Kind: "date"},
		{Label: "MOT Expiry", FieldKey: "mot_expiry", Kind: "expiring_date",
			WarnDays: intPtr(60), UrgentDays: intPtr(30), CriticalDays: intPtr(7)},
		{Label: "Fuel", FieldKey: "fuel", Kind: "select", Options: []string{"diesel", "electric"}},
		{Label: "Notes", FieldKey: "notes", Kind: "textarea"},
		{Label: "Registration Doc", FieldKey: "reg_doc", Kind: "file"},
	}
	for _, f := range fields {
		if _, err := reg.CreateField(cat.ID, f); err != nil {
			t.Fatal(err)
		}
	}
	return cat
}

func slots(t *testing.T, db *sql.DB, entityID, fieldKey string) (text, date, jsonv *string) {
	t.Helper()
	err := db.QueryRow(`SELECT v.text_value, v.date_value, v.json_value
		FROM field_values v JOIN field_definitions d ON d.id = v.field_definition_id
		WHERE v.entity_id = ? AND d.field_key = ?`, entityID, fieldKey).
		Scan(&text, &date, &jsonv)
	if err != nil {
		t.Fatalf("slots(%s, %s): %v", entityID, fieldKey, err)
	}
	return
}

func countSlots(text, date, jsonv *string) int {
	n := 0
	for _, p := range []*string{text, date, jsonv} {
		if p != nil {
			n++
		}
	}
	return n
}

func TestCreateRoutesValuesByKind(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)

	e, err := s.Create(cat.ID, "Truck 7", map[string]interface{}{
		"plate":      "AB-123",
		"mileage":    float64(120500),
		"mot_expiry": "2026-11-01",
		"fuel":       "diesel",
		"reg_doc":    "registration.pdf",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	text, date, jsonv := slots(t, s.DB, e.ID, "plate")
	if text == nil || *text != "AB-123" || countSlots(text, date, jsonv) != 1 {
		t.Errorf("text kind should fill only text slot: %v %v %v", text, date, jsonv)
	}

	text, date, jsonv = slots(t, s.DB, e.ID, "mileage")
	if text == nil || *text != "120500" {
		t.Errorf("number should stringify without exponent, got %v", text)
	}

	text, date, jsonv = slots(t, s.DB, e.ID, "mot_expiry")
	if date == nil || *date != "2026-11-01" || countSlots(text, date, jsonv) != 1 {
		t.Errorf("expiring_date should fill only date slot: %v %v %v", text, date, jsonv)
	}

	text, date, jsonv = slots(t, s.DB, e.ID, "reg_doc")
	if jsonv == nil || countSlots(text, date, jsonv) != 1 {
		t.Errorf("file should fill only json slot: %v %v %v", text, date, jsonv)
	}
}

func TestCreateDropsUnknownKeys(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)

	e, err := s.Create(cat.ID, "Truck 8", map[string]interface{}{
		"plate":        "CD-456",
		"launch_codes": "000000",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var n int
	s.DB.QueryRow("SELECT COUNT(*) FROM field_values WHERE entity_id = ?", e.ID).Scan(&n)
	if n != 1 {
		t.Fatalf("unknown key should be dropped silently, want 1 row got %d", n)
	}
}

func TestCreateRequiresDisplayName(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)

	_, err := s.Create(cat.ID, "", nil, nil)
	var ve *validation.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestCreateUnknownCategory(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Create("CAT-404", "Ghost", nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestEmptyDateStoredAsAbsent(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)

	e, err := s.Create(cat.ID, "Truck 9", map[string]interface{}{
		"mot_expiry": "",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, date, _ := slots(t, s.DB, e.ID, "mot_expiry")
	if date != nil {
		t.Errorf("empty date should be NULL, got %q", *date)
	}

	fetched, err := s.FetchWithValues([]string{e.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fetched[0].Values["mot_expiry"]; ok {
		t.Error("all-null value row should be omitted from fetched values")
	}
}

func TestUpdateValuesIdempotent(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)
	e, _ := s.Create(cat.ID, "Truck 10", nil, nil)

	patch := map[string]interface{}{"plate": "EF-789", "mot_expiry": "2027-01-15"}
	if _, err := s.Update(e.ID, nil, patch); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update(e.ID, nil, patch); err != nil {
		t.Fatal(err)
	}

	var n int
	s.DB.QueryRow("SELECT COUNT(*) FROM field_values WHERE entity_id = ?", e.ID).Scan(&n)
	if n != 2 {
		t.Fatalf("repeated patch should not duplicate rows, want 2 got %d", n)
	}

	fetched, _ := s.FetchWithValues([]string{e.ID})
	if fetched[0].Values["plate"] != "EF-789" {
		t.Errorf("plate = %v", fetched[0].Values["plate"])
	}
}

func TestKindChangeResetsStaleSlot(t *testing.T) {
	s, reg := newTestStore(t)
	cat, _ := reg.CreateCategory("Equipment", "equipment")
	f, _ := reg.CreateField(cat.ID, models.FieldDefinition{Label: "Calibrated", FieldKey: "calibrated", Kind: "date"})
	e, _ := s.Create(cat.ID, "Crane", map[string]interface{}{"calibrated": "2026-05-01"}, nil)

	kind := "text"
	if _, err := reg.UpdateField(f.ID, schema.FieldPatch{Kind: &kind}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update(e.ID, nil, map[string]interface{}{"calibrated": "annually"}); err != nil {
		t.Fatal(err)
	}

	text, date, jsonv := slots(t, s.DB, e.ID, "calibrated")
	if date != nil {
		t.Errorf("stale date slot should be cleared, got %q", *date)
	}
	if text == nil || *text != "annually" || countSlots(text, date, jsonv) != 1 {
		t.Errorf("exactly the text slot should hold the new value: %v %v %v", text, date, jsonv)
	}
}

func TestBasicPatchRejectsUnknownColumn(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)
	e, _ := s.Create(cat.ID, "Truck 11", nil, nil)

	_, err := s.Update(e.ID, map[string]interface{}{"id": "ENT-HAX"}, nil)
	var ve *validation.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("patching id should be a validation error, got %v", err)
	}

	updated, err := s.Update(e.ID, map[string]interface{}{"display_name": "Truck 11b", "active": 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.DisplayName != "Truck 11b" || updated.Active != 0 {
		t.Errorf("basic patch not applied: %+v", updated)
	}
}

func TestFetchWithValuesDecodesFileRef(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)
	e, _ := s.Create(cat.ID, "Truck 12", map[string]interface{}{"reg_doc": "v5c.pdf"}, nil)

	fetched, err := s.FetchWithValues([]string{e.ID})
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := fetched[0].Values["reg_doc"].(map[string]interface{})
	if !ok {
		t.Fatalf("file value should decode to a map, got %T", fetched[0].Values["reg_doc"])
	}
	if ref["name"] != "v5c.pdf" || ref["id"] == "" {
		t.Errorf("file ref incomplete: %v", ref)
	}
}

func TestConcurrentDisjointValueUpdates(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)
	e, _ := s.Create(cat.ID, "Truck 13", nil, nil)

	var wg sync.WaitGroup
	patches := []map[string]interface{}{
		{"plate": "GH-012"},
		{"notes": "rear axle serviced"},
	}
	errs := make([]error, len(patches))
	for i, p := range patches {
		wg.Add(1)
		go func(i int, p map[string]interface{}) {
			defer wg.Done()
			_, errs[i] = s.Update(e.ID, nil, p)
		}(i, p)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	fetched, _ := s.FetchWithValues([]string{e.ID})
	if fetched[0].Values["plate"] != "GH-012" || fetched[0].Values["notes"] != "rear axle serviced" {
		t.Errorf("both disjoint updates should land: %v", fetched[0].Values)
	}
}

func TestDeleteCascadesValues(t *testing.T) {
	s, reg := newTestStore(t)
	cat := seedTruckCategory(t, reg)
	e, _ := s.Create(cat.ID, "Truck 14", map[string]interface{}{"plate": "IJ-345"}, nil)

	if err := s.Delete(e.ID); err != nil {
		t.Fatal(err)
	}
	var n int
	s.DB.QueryRow("SELECT COUNT(*) FROM field_values WHERE entity_id = ?", e.ID).Scan(&n)
	if n != 0 {
		t.Errorf("values should cascade on delete, %d left", n)
	}
	if err := s.Delete(e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestFieldDeleteCascadesValues(t *testing.T) {
	s, reg := newTestStore(t)
	cat, _ := reg.CreateCategory("Gear", "equipment")
	f, _ := reg.CreateField(cat.ID, models.FieldDefinition{Label: "Serial", FieldKey: "serial", Kind: "text"})
	e, _ := s.Create(cat.ID, "Pump", map[string]interface{}{"serial": "XK-99"}, nil)

	if err := reg.DeleteField(f.ID); err != nil {
		t.Fatal(err)
	}
	fetched, err := s.FetchWithValues([]string{e.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fetched[0].Values["serial"]; ok {
		t.Error("values of a deleted field should be gone")
	}
}
