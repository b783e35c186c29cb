package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"opreg/internal/response"
)

func main() {
	port := flag.Int("port", 9000, "HTTP port")
	dbPath := flag.String("db", "opreg.db", "SQLite database path")
	seedFile := flag.String("seed", "", "YAML schema seed file (optional)")
	flag.Parse()

	if v := os.Getenv("OPREG_DB"); v != "" && *dbPath == "opreg.db" {
		*dbPath = v
	}

	if err := initDB(*dbPath); err != nil {
		log.Fatal("DB init failed:", err)
	}
	seedDB()

	if path := firstNonEmpty(*seedFile, os.Getenv("OPREG_SEED_FILE")); path != "" {
		if err := getRegistry().SeedFromFile(path); err != nil {
			log.Fatal("schema seed failed:", err)
		}
		log.Printf("Applied schema seed from %s", path)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", handleWebSocket)

	// API routes - using a simple router
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		// Dashboard
		case path == "dashboard" && r.Method == "GET":
			handleDashboard(w, r)
		case path == "dashboard/expiring" && r.Method == "GET":
			handleDashboardExpiring(w, r)

		// Audit
		case parts[0] == "audit" && len(parts) == 1 && r.Method == "GET":
			handleAuditLog(w, r)

		// Categories and field definitions
		case parts[0] == "categories" && len(parts) == 1 && r.Method == "GET":
			handleListCategories(w, r)
		case parts[0] == "categories" && len(parts) == 1 && r.Method == "POST":
			handleCreateCategory(w, r)
		case parts[0] == "categories" && len(parts) == 3 && parts[2] == "fields" && r.Method == "GET":
			handleListFields(w, r, parts[1])
		case parts[0] == "categories" && len(parts) == 3 && parts[2] == "fields" && r.Method == "POST":
			handleCreateField(w, r, parts[1])
		case parts[0] == "fields" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateField(w, r, parts[1])
		case parts[0] == "fields" && len(parts) == 2 && r.Method == "DELETE":
			handleDeleteField(w, r, parts[1])

		// Entities
		case parts[0] == "entities" && len(parts) == 1 && r.Method == "GET":
			handleListEntities(w, r)
		case parts[0] == "entities" && len(parts) == 1 && r.Method == "POST":
			handleCreateEntity(w, r)
		case parts[0] == "entities" && len(parts) == 2 && r.Method == "GET":
			handleGetEntity(w, r, parts[1])
		case parts[0] == "entities" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateEntity(w, r, parts[1])
		case parts[0] == "entities" && len(parts) == 2 && r.Method == "DELETE":
			handleDeleteEntity(w, r, parts[1])

		// Scheduler
		case path == "scheduler/run" && r.Method == "POST":
			handleSchedulerRun(w, r)

		// Email
		case parts[0] == "email" && len(parts) == 2 && parts[1] == "config" && r.Method == "GET":
			handleGetEmailConfig(w, r)
		case parts[0] == "email" && len(parts) == 2 && parts[1] == "config" && r.Method == "PUT":
			handleUpdateEmailConfig(w, r)
		case parts[0] == "email" && len(parts) == 2 && parts[1] == "test" && r.Method == "POST":
			handleTestEmail(w, r)
		case parts[0] == "email-log" && len(parts) == 1 && r.Method == "GET":
			handleListEmailLog(w, r)

		// Backup
		case path == "backup" && r.Method == "GET":
			handleBackup(w, r)

		default:
			response.Err(w, "not found", 404)
		}
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Register server starting on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, logging(mux)))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
