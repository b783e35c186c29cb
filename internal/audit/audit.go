package audit

import (
	"database/sql"
	"encoding/json"
	"log"
	"strings"

	"opreg/internal/websocket"
)

// Action constants.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionExport = "EXPORT"
)

// Entry is one audit log row.
type Entry struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Action      string `json:"action"`
	Module      string `json:"module"`
	RecordID    string `json:"record_id"`
	Summary     string `json:"summary"`
	BeforeValue string `json:"before_value,omitempty"`
	AfterValue  string `json:"after_value,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Record writes an audit row and broadcasts the change. It never blocks
// the calling operation: failures are logged and dropped.
func Record(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string) {
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit: %v", err)
	}
	if hub != nil {
		hub.Broadcast(websocket.Event{
			Type:   module + "_" + strings.ToLower(action) + "d",
			ID:     recordID,
			Action: action,
		})
	}
}

// RecordDiff writes an audit row carrying before/after snapshots.
func RecordDiff(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string, before, after interface{}) {
	var beforeJSON, afterJSON []byte
	if before != nil {
		beforeJSON, _ = json.Marshal(before)
	}
	if after != nil {
		afterJSON, _ = json.Marshal(after)
	}
	_, err := db.Exec(`INSERT INTO audit_log (username, action, module, record_id, summary, before_value, after_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		username, action, module, recordID, summary, beforeJSON, afterJSON)
	if err != nil {
		log.Printf("audit: %v", err)
	}
	if hub != nil {
		hub.Broadcast(websocket.Event{
			Type:   module + "_" + strings.ToLower(action) + "d",
			ID:     recordID,
			Action: action,
		})
	}
}

// List returns audit entries, newest first, optionally filtered by module.
func List(db *sql.DB, module string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, COALESCE(username,'system'), action, module, record_id,
		COALESCE(summary,''), COALESCE(before_value,''), COALESCE(after_value,''), created_at
		FROM audit_log`
	var args []interface{}
	if module != "" {
		q += " WHERE module = ?"
		args = append(args, module)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID,
			&e.Summary, &e.BeforeValue, &e.AfterValue, &e.CreatedAt); err != nil {
			continue
		}
		items = append(items, e)
	}
	if items == nil {
		items = []Entry{}
	}
	return items, nil
}
