// Package testutil provides shared test scaffolding: an in-memory
// database with the register's tables and a few seed helpers.
package testutil

import (
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates a standard in-memory SQLite database for testing
// with foreign keys enabled and the register tables created.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	// A single connection keeps :memory: databases stable across goroutines.
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	createTables(t, testDB)

	t.Cleanup(func() { testDB.Close() })
	return testDB
}

func createTables(t *testing.T, db *sql.DB) {
	t.Helper()
	tables := []string{
		`CREATE TABLE IF NOT EXISTS entity_categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			module TEXT NOT NULL CHECK(module IN ('personnel','vehicles','equipment','incidents')),
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS field_definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id TEXT NOT NULL,
			label TEXT NOT NULL,
			field_key TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('text','number','date','expiring_date','select','textarea','file')),
			required INTEGER DEFAULT 0,
			options TEXT DEFAULT '[]',
			display_order INTEGER DEFAULT 0,
			warn_days INTEGER,
			urgent_days INTEGER,
			critical_days INTEGER,
			UNIQUE(category_id, field_key),
			FOREIGN KEY (category_id) REFERENCES entity_categories(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			category_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			responsible_id INTEGER,
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (category_id) REFERENCES entity_categories(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS field_values (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id TEXT NOT NULL,
			field_definition_id INTEGER NOT NULL,
			text_value TEXT,
			date_value DATE,
			json_value TEXT,
			UNIQUE(entity_id, field_definition_id),
			FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
			FOREIGN KEY (field_definition_id) REFERENCES field_definitions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT,
			email TEXT DEFAULT '',
			role TEXT DEFAULT 'user',
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT DEFAULT 'system',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT NOT NULL,
			summary TEXT,
			before_value TEXT,
			after_value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS email_config (
			id INTEGER PRIMARY KEY DEFAULT 1,
			smtp_host TEXT,
			smtp_port INTEGER DEFAULT 587,
			smtp_user TEXT,
			smtp_password TEXT,
			from_address TEXT,
			from_name TEXT DEFAULT 'Register',
			enabled INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS email_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			to_address TEXT NOT NULL,
			cc_list TEXT DEFAULT '',
			subject TEXT NOT NULL,
			body TEXT,
			status TEXT NOT NULL DEFAULT 'sent',
			error TEXT,
			sent_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("Failed to create table: %v\nSQL: %s", err, ddl)
		}
	}
}

// SeedAccount inserts an account and returns its id.
func SeedAccount(t *testing.T, db *sql.DB, username, email, role string) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	res, err := db.Exec("INSERT INTO users (username, password_hash, display_name, email, role, active) VALUES (?, ?, ?, ?, ?, 1)",
		username, string(hash), username, email, role)
	if err != nil {
		t.Fatalf("Failed to seed account %s: %v", username, err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// SequentialID returns a simple deterministic ID generator for tests.
func SequentialID() func(prefix, table string, digits int) string {
	var mu sync.Mutex
	counts := make(map[string]int)
	return func(prefix, table string, digits int) string {
		mu.Lock()
		defer mu.Unlock()
		counts[prefix]++
		return fmt.Sprintf("%s-%0*d", prefix, digits, counts[prefix])
	}
}
