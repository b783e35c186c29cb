package entity

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"opreg/internal/models"
	"opreg/internal/validation"
)

// execer lets the reconciler run inside or outside a transaction.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// upsertValues routes each (key, value) pair into typed storage against
// the given schema. Keys without a matching definition are skipped:
// clients may run ahead of or behind the server's schema. Each upsert
// resets all three slots, then populates the one matching the kind.
func upsertValues(exec execer, entityID string, defs map[string]models.FieldDefinition, values map[string]interface{}) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		if _, ok := defs[k]; !ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		def := defs[k]
		text, date, jsonv := routeValue(def.Kind, values[k])
		_, err := exec.Exec(`INSERT INTO field_values (entity_id, field_definition_id, text_value, date_value, json_value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, field_definition_id) DO UPDATE SET
				text_value = excluded.text_value,
				date_value = excluded.date_value,
				json_value = excluded.json_value`,
			entityID, def.ID, text, date, jsonv)
		if err != nil {
			return fmt.Errorf("upsert value %q for %s: %w", k, entityID, err)
		}
	}
	return nil
}

// routeValue picks the storage slot for a value by field kind. Dates go
// to the date slot with empty strings coerced to NULL, file references
// to the json slot, everything else stringified to the text slot.
func routeValue(kind string, value interface{}) (text, date, jsonv *string) {
	switch {
	case validation.IsDateKind(kind):
		s := stringify(value)
		if s == "" {
			return nil, nil, nil
		}
		return nil, &s, nil
	case kind == "file":
		s := encodeFileRef(value)
		if s == "" {
			return nil, nil, nil
		}
		return nil, nil, &s
	default:
		s := stringify(value)
		return &s, nil, nil
	}
}

// encodeFileRef normalizes a file-kind value into an opaque reference.
// Map-shaped values get an identifier assigned when they carry none; the
// register never looks inside the referenced object.
func encodeFileRef(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		if v == "" {
			return ""
		}
		ref := models.FileRef{ID: uuid.NewString(), Name: v, URL: v}
		out, _ := json.Marshal(ref)
		return string(out)
	case map[string]interface{}:
		if _, ok := v["id"]; !ok {
			v["id"] = uuid.NewString()
		}
		out, _ := json.Marshal(v)
		return string(out)
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(out)
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(out)
	}
}
