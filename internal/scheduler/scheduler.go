// Package scheduler is the daily expiry sweep. It is stateless: every
// run reads current storage, classifies threshold-bearing dates and
// fires alert emails on exact day boundaries. The trigger is external
// (cron hitting an endpoint); there is no timer in here.
package scheduler

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"opreg/internal/expiry"
	"opreg/internal/identity"
	"opreg/internal/models"
	"opreg/internal/schema"
	"opreg/internal/validation"
	"opreg/internal/websocket"
)

// windowDays bounds the candidate scan: nothing beyond the earliest
// firing day (90) plus slack can fire, so wider reads are wasted.
const windowDays = 92

// Sweep holds the dependencies of one scheduler instance.
type Sweep struct {
	DB       *sql.DB
	Registry *schema.Registry
	Hub      *websocket.Hub

	// SendMail delivers one alert. Injected so tests capture messages
	// and the caller decides how deliveries are logged.
	SendMail func(to string, cc []string, subject, body string) error

	// Today overrides the clock in tests. Nil means time.Now.
	Today func() time.Time
}

// Summary is the outcome of one run.
type Summary struct {
	Candidates int      `json:"candidates"`
	Fired      int      `json:"fired"`
	Delivered  int      `json:"delivered"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// candidate is one threshold-bearing date joined to its entity.
type candidate struct {
	entityID      string
	entityName    string
	categoryID    string
	responsibleID *int
	fieldLabel    string
	fieldKey      string
	date          string
	thresholds    expiry.Thresholds
}

// fireDay is the exact-day firing rule: an alert goes out at 90 days,
// at 30 days, and daily through the last ten days including expiry day.
// Between those points the item stays visible on the dashboard but no
// mail is sent, bounding the total per item at ~13 messages.
func fireDay(daysRemaining int) bool {
	return daysRemaining == 90 || daysRemaining == 30 ||
		(daysRemaining >= 0 && daysRemaining <= 10)
}

// Run executes one sweep. Classification, recipient resolution and
// delivery failures never abort the run; they are accumulated into the
// summary and the next daily invocation re-evaluates naturally.
func (s *Sweep) Run() (*Summary, error) {
	now := time.Now()
	if s.Today != nil {
		now = s.Today()
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	cands, err := s.loadCandidates(today)
	if err != nil {
		return nil, err
	}

	ccList, err := identity.ElevatedEmails(s.DB, validation.ElevatedRoles)
	if err != nil {
		log.Printf("sweep: broadcast list unavailable: %v", err)
		ccList = nil
	}

	sum := &Summary{Candidates: len(cands)}
	for _, c := range cands {
		date, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			sum.Skipped++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s/%s: bad date %q", c.entityID, c.fieldKey, c.date))
			continue
		}
		days := expiry.DaysRemaining(date, today)
		if !fireDay(days) {
			continue
		}
		status := expiry.ClassifyDays(days, c.thresholds)
		sum.Fired++

		to, name := s.resolveRecipient(c)
		if to == "" {
			sum.Skipped++
			log.Printf("sweep: no recipient for %s (%s), skipping", c.entityID, c.entityName)
			continue
		}

		subject, body := composeAlert(c, name, days, status)
		if err := s.SendMail(to, ccList, subject, body); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s/%s: %v", c.entityID, c.fieldKey, err))
			log.Printf("sweep: delivery to %s failed: %v", to, err)
			continue
		}
		sum.Delivered++
		if s.Hub != nil {
			s.Hub.BroadcastAlert(c.entityID, string(status))
		}
	}

	log.Printf("sweep: %d candidates, %d fired, %d delivered, %d failed, %d skipped",
		sum.Candidates, sum.Fired, sum.Delivered, sum.Failed, sum.Skipped)
	return sum, nil
}

// loadCandidates joins every value of a threshold-bearing expiring_date
// field, dated within the firing window, to its owning entity.
func (s *Sweep) loadCandidates(today time.Time) ([]candidate, error) {
	defs, err := s.Registry.ThresholdFields()
	if err != nil {
		return nil, err
	}
	byID := make(map[int]models.FieldDefinition)
	var ids []string
	var args []interface{}
	for _, d := range defs {
		if d.Kind != "expiring_date" {
			// thresholds on other kinds are stored but inert
			continue
		}
		byID[d.ID] = d
		ids = append(ids, "?")
		args = append(args, d.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	from := today.Format("2006-01-02")
	to := today.AddDate(0, 0, windowDays).Format("2006-01-02")
	args = append(args, from, to)

	rows, err := s.DB.Query(`SELECT v.field_definition_id, v.date_value,
			e.id, e.display_name, e.category_id, e.responsible_id
		FROM field_values v
		JOIN entities e ON e.id = v.entity_id
		WHERE v.field_definition_id IN (`+strings.Join(ids, ",")+`)
			AND v.date_value IS NOT NULL
			AND v.date_value >= ? AND v.date_value <= ?
		ORDER BY v.date_value, e.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	defer rows.Close()

	var cands []candidate
	for rows.Next() {
		var defID int
		var c candidate
		if err := rows.Scan(&defID, &c.date, &c.entityID, &c.entityName, &c.categoryID, &c.responsibleID); err != nil {
			continue
		}
		def := byID[defID]
		c.fieldLabel = def.Label
		c.fieldKey = def.FieldKey
		c.thresholds = expiry.Thresholds{
			Warning:  *def.WarnDays,
			Urgent:   *def.UrgentDays,
			Critical: *def.CriticalDays,
		}
		cands = append(cands, c)
	}
	return cands, nil
}

// resolveRecipient prefers the responsible party's account email. When
// absent it scans the entity's own stored values for one whose field
// label mentions "email" and uses that as both address and display name.
func (s *Sweep) resolveRecipient(c candidate) (addr, name string) {
	if c.responsibleID != nil {
		if a, err := identity.Lookup(s.DB, *c.responsibleID); err == nil && a.Active == 1 && a.Email != "" {
			return a.Email, a.DisplayName
		}
	}

	var value string
	err := s.DB.QueryRow(`SELECT v.text_value
		FROM field_values v
		JOIN field_definitions d ON d.id = v.field_definition_id
		WHERE v.entity_id = ? AND v.text_value IS NOT NULL AND v.text_value != ''
			AND LOWER(d.label) LIKE '%email%'
		ORDER BY d.display_order, d.id LIMIT 1`, c.entityID).Scan(&value)
	if err != nil {
		return "", ""
	}
	return value, value
}

func composeAlert(c candidate, name string, days int, status expiry.Status) (subject, body string) {
	switch {
	case days == 0:
		subject = fmt.Sprintf("[%s] %s: %s expires today", strings.ToUpper(string(status)), c.entityName, c.fieldLabel)
	case days == 1:
		subject = fmt.Sprintf("[%s] %s: %s expires tomorrow", strings.ToUpper(string(status)), c.entityName, c.fieldLabel)
	default:
		subject = fmt.Sprintf("[%s] %s: %s expires in %d days", strings.ToUpper(string(status)), c.entityName, c.fieldLabel, days)
	}
	body = fmt.Sprintf("Hello %s,\n\n%s for %s expires on %s (%d day(s) remaining).\n\nPlease arrange renewal.\n",
		name, c.fieldLabel, c.entityName, c.date, days)
	return subject, body
}
