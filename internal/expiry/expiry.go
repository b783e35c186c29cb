// Package expiry classifies expiring dates against per-field alert
// thresholds. It is pure: no storage, no clock, callers pass today.
package expiry

import (
	"sort"
	"time"
)

// Status is the severity band of an expiring date.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusUrgent   Status = "urgent"
	StatusCritical Status = "critical"
	StatusExpired  Status = "expired"
)

// severityRank orders statuses most severe first.
var severityRank = map[Status]int{
	StatusExpired:  4,
	StatusCritical: 3,
	StatusUrgent:   2,
	StatusWarning:  1,
	StatusOK:       0,
}

// Rank returns the status' severity rank; higher is more severe.
func (s Status) Rank() int { return severityRank[s] }

// Thresholds are day counts before expiry. No ordering between them is
// enforced here or at field creation; the classifier tests the bands
// most-severe-first, so overlapping or inverted configurations still
// resolve deterministically.
type Thresholds struct {
	Warning  int
	Urgent   int
	Critical int
}

// DaysRemaining is the whole number of days from today until the date,
// negative once the date has passed. Both arguments are truncated to
// their calendar day.
func DaysRemaining(date, today time.Time) int {
	d := truncate(date)
	t := truncate(today)
	return int(d.Sub(t).Hours() / 24)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Classify maps a date and thresholds to a severity band. Critical is
// tested before urgent before warning.
func Classify(date time.Time, th Thresholds, today time.Time) Status {
	return ClassifyDays(DaysRemaining(date, today), th)
}

// ClassifyDays classifies a precomputed days-remaining count.
func ClassifyDays(daysRemaining int, th Thresholds) Status {
	switch {
	case daysRemaining < 0:
		return StatusExpired
	case daysRemaining <= th.Critical:
		return StatusCritical
	case daysRemaining <= th.Urgent:
		return StatusUrgent
	case daysRemaining <= th.Warning:
		return StatusWarning
	default:
		return StatusOK
	}
}

// Item is one classified expiring value, as surfaced on the dashboard.
type Item struct {
	EntityID      string `json:"entity_id"`
	EntityName    string `json:"entity_name"`
	CategoryID    string `json:"category_id"`
	FieldKey      string `json:"field_key"`
	FieldLabel    string `json:"field_label"`
	Date          string `json:"date"`
	DaysRemaining int    `json:"days_remaining"`
	Status        Status `json:"status"`
}

// SortByUrgency orders items most urgent first (days remaining
// ascending, so expired items lead).
func SortByUrgency(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].DaysRemaining != items[j].DaysRemaining {
			return items[i].DaysRemaining < items[j].DaysRemaining
		}
		return items[i].EntityID < items[j].EntityID
	})
}

// NeedsAttention filters out ok items; the remainder is what the
// dashboard lists.
func NeedsAttention(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.Status != StatusOK {
			out = append(out, it)
		}
	}
	return out
}
