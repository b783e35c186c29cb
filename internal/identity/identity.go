// Package identity is a read-only view over the accounts table. The
// register consumes identity as a lookup collaborator: it resolves
// responsible parties to emails and supplies the elevated-role broadcast
// list. Login and session management live outside this service.
package identity

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"

	"opreg/internal/models"
)

// SessionCookie is the cookie carrying the caller's session token.
const SessionCookie = "opreg_session"

// ActorFromRequest resolves the acting username from the session cookie.
// Unauthenticated callers are attributed to "system".
func ActorFromRequest(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "system"
	}
	var username string
	err = db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}

// Lookup returns the account with the given id.
func Lookup(db *sql.DB, id int) (*models.Account, error) {
	var a models.Account
	err := db.QueryRow(`SELECT id, username, COALESCE(display_name,''), COALESCE(email,''), role, active
		FROM users WHERE id = ?`, id).
		Scan(&a.ID, &a.Username, &a.DisplayName, &a.Email, &a.Role, &a.Active)
	if err != nil {
		return nil, fmt.Errorf("lookup account %d: %w", id, err)
	}
	return &a, nil
}

// Email returns the email of the account with the given id, or "" when
// the account is missing, inactive or has no email on file.
func Email(db *sql.DB, id int) string {
	a, err := Lookup(db, id)
	if err != nil || a.Active == 0 {
		return ""
	}
	return a.Email
}

// ElevatedEmails returns the deduplicated, sorted email addresses of all
// active accounts holding an elevated role.
func ElevatedEmails(db *sql.DB, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	q := "SELECT COALESCE(email,'') FROM users WHERE active = 1 AND role IN (?" +
		repeat(",?", len(roles)-1) + ")"
	args := make([]interface{}, len(roles))
	for i, r := range roles {
		args[i] = r
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("elevated emails: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			continue
		}
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails, nil
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
