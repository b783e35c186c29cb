package main

import (
	"fmt"
	"net/http"
	"time"

	"opreg/internal/export"
	"opreg/internal/response"
)

// handleBackup streams a snapshot of the register. Default is a
// multi-sheet xlsx of every core table; ?format=csv&table=entities
// narrows it to one table as CSV.
func handleBackup(w http.ResponseWriter, r *http.Request) {
	dumps, err := export.Collect(db)
	if err != nil {
		writeErr(w, err)
		return
	}

	stamp := time.Now().Format("2006-01-02")

	if r.URL.Query().Get("format") == "csv" {
		table := r.URL.Query().Get("table")
		var picked *export.TableDump
		for i := range dumps {
			if dumps[i].Name == table {
				picked = &dumps[i]
				break
			}
		}
		if picked == nil {
			response.Err(w, "unknown table: "+table, 400)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.csv", picked.Name, stamp))
		if err := export.WriteCSV(w, *picked); err != nil {
			writeErr(w, err)
			return
		}
		logAudit(getUsername(r), AuditActionExport, "backup", table, "Exported "+table+" as CSV")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=register_backup_%s.xlsx", stamp))
	if err := export.WriteExcel(w, dumps); err != nil {
		writeErr(w, err)
		return
	}
	logAudit(getUsername(r), AuditActionExport, "backup", "all", "Exported full register backup")
}
