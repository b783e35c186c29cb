package main

import (
	"log"
	"net/http"
	"time"

	"opreg/internal/expiry"
	"opreg/internal/response"
	"opreg/internal/validation"
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	counts := map[string]interface{}{}

	for _, module := range validation.ValidModules {
		var n int
		err := db.QueryRow(`
			SELECT COUNT(*) FROM entities e
			JOIN entity_categories c ON c.id = e.category_id
			WHERE c.module = ? AND e.active = 1`, module).Scan(&n)
		if err != nil {
			log.Printf("dashboard count for %s: %v", module, err)
			continue
		}
		counts[module] = n
	}

	var categories, fields int
	db.QueryRow(`SELECT COUNT(*) FROM entity_categories WHERE active = 1`).Scan(&categories)
	db.QueryRow(`SELECT COUNT(*) FROM field_definitions`).Scan(&fields)
	counts["categories"] = categories
	counts["field_definitions"] = fields

	items, err := expiringItems(time.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	byStatus := map[string]int{}
	for _, it := range expiry.NeedsAttention(items) {
		byStatus[string(it.Status)]++
	}
	counts["expiring"] = byStatus

	response.JSON(w, counts)
}

func handleDashboardExpiring(w http.ResponseWriter, r *http.Request) {
	items, err := expiringItems(time.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	items = expiry.NeedsAttention(items)
	expiry.SortByUrgency(items)
	if items == nil {
		items = []expiry.Item{}
	}
	response.JSON(w, items)
}

// expiringItems classifies every stored expiring_date value whose field
// carries a full set of thresholds.
func expiringItems(now time.Time) ([]expiry.Item, error) {
	rows, err := db.Query(`
		SELECT e.id, e.display_name, e.category_id, d.field_key, d.label,
		       v.date_value, d.warn_days, d.urgent_days, d.critical_days
		FROM field_values v
		JOIN field_definitions d ON d.id = v.field_definition_id
		JOIN entities e ON e.id = v.entity_id
		WHERE d.kind = 'expiring_date'
		  AND v.date_value IS NOT NULL
		  AND d.warn_days IS NOT NULL
		  AND d.urgent_days IS NOT NULL
		  AND d.critical_days IS NOT NULL
		  AND e.active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []expiry.Item
	for rows.Next() {
		var it expiry.Item
		var th expiry.Thresholds
		if err := rows.Scan(&it.EntityID, &it.EntityName, &it.CategoryID,
			&it.FieldKey, &it.FieldLabel, &it.Date,
			&th.Warning, &th.Urgent, &th.Critical); err != nil {
			return nil, err
		}
		date, err := time.Parse("2006-01-02", it.Date)
		if err != nil {
			log.Printf("skipping unparseable date %q on %s/%s", it.Date, it.EntityID, it.FieldKey)
			continue
		}
		it.DaysRemaining = expiry.DaysRemaining(date, now)
		it.Status = expiry.ClassifyDays(it.DaysRemaining, th)
		items = append(items, it)
	}
	return items, rows.Err()
}
