package main

import (
	"net/http"
	"strconv"

	"opreg/internal/audit"
	"opreg/internal/identity"
	"opreg/internal/response"
)

// Action constant aliases for the root handler files.
const (
	AuditActionCreate = audit.ActionCreate
	AuditActionUpdate = audit.ActionUpdate
	AuditActionDelete = audit.ActionDelete
	AuditActionExport = audit.ActionExport
)

// Wrappers delegating to internal/audit with the global db and hub.
func logAudit(username, action, module, recordID, summary string) {
	audit.Record(db, wsHub, username, action, module, recordID, summary)
}

func logAuditDiff(username, action, module, recordID, summary string, before, after interface{}) {
	audit.RecordDiff(db, wsHub, username, action, module, recordID, summary, before, after)
}

func getUsername(r *http.Request) string {
	return identity.ActorFromRequest(db, r)
}

func handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := audit.List(db, r.URL.Query().Get("module"), limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, items)
}
