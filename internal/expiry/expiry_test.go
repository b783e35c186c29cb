package expiry

import (
	"testing"
	"time"
)

var std = Thresholds{Warning: 60, Urgent: 30, Critical: 7}

func TestClassifyDaysBands(t *testing.T) {
	cases := []struct {
		days int
		want Status
	}{
		{-1, StatusExpired},
		{-3, StatusExpired},
		{-100, StatusExpired},
		{0, StatusCritical},
		{7, StatusCritical},
		{8, StatusUrgent},
		{30, StatusUrgent},
		{31, StatusWarning},
		{60, StatusWarning},
		{61, StatusOK},
		{365, StatusOK},
	}
	for _, c := range cases {
		if got := ClassifyDays(c.days, std); got != c.want {
			t.Errorf("ClassifyDays(%d) = %s, want %s", c.days, got, c.want)
		}
	}
}

// With inverted thresholds the most severe matching band wins because
// bands are checked critical first.
func TestClassifyDaysInvertedThresholds(t *testing.T) {
	inverted := Thresholds{Warning: 7, Urgent: 30, Critical: 60}
	if got := ClassifyDays(45, inverted); got != StatusCritical {
		t.Errorf("ClassifyDays(45, inverted) = %s, want %s", got, StatusCritical)
	}
	if got := ClassifyDays(61, inverted); got != StatusOK {
		t.Errorf("ClassifyDays(61, inverted) = %s, want %s", got, StatusOK)
	}
}

func TestClassifyMonotonic(t *testing.T) {
	prev := ClassifyDays(-5, std).Rank()
	for d := -4; d <= 70; d++ {
		cur := ClassifyDays(d, std).Rank()
		if cur > prev {
			t.Fatalf("severity increased from day %d to %d", d-1, d)
		}
		prev = cur
	}
}

func TestDaysRemaining(t *testing.T) {
	today := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

	cases := []struct {
		date string
		want int
	}{
		{"2026-08-29", 0},
		{"2026-08-30", 1},
		{"2026-08-28", -1},
		{"2026-11-27", 90},
	}
	for _, c := range cases {
		d, _ := time.Parse("2006-01-02", c.date)
		if got := DaysRemaining(d, today); got != c.want {
			t.Errorf("DaysRemaining(%s) = %d, want %d", c.date, got, c.want)
		}
	}
}

// Time of day must not shift the day count.
func TestDaysRemainingIgnoresClock(t *testing.T) {
	date := time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)
	early := time.Date(2026, 8, 29, 0, 1, 0, 0, time.UTC)
	late := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	if DaysRemaining(date, early) != DaysRemaining(date, late) {
		t.Error("day count depends on time of day")
	}
}

func TestClassify(t *testing.T) {
	today := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	date := today.AddDate(0, 0, 5)
	if got := Classify(date, std, today); got != StatusCritical {
		t.Errorf("5 days out = %s, want critical", got)
	}
}

func TestSortByUrgency(t *testing.T) {
	items := []Item{
		{EntityID: "ENT-3", DaysRemaining: 45, Status: StatusWarning},
		{EntityID: "ENT-1", DaysRemaining: -2, Status: StatusExpired},
		{EntityID: "ENT-4", DaysRemaining: 5, Status: StatusCritical},
		{EntityID: "ENT-2", DaysRemaining: 5, Status: StatusCritical},
	}
	SortByUrgency(items)

	wantOrder := []string{"ENT-1", "ENT-2", "ENT-4", "ENT-3"}
	for i, want := range wantOrder {
		if items[i].EntityID != want {
			t.Fatalf("position %d = %s, want %s", i, items[i].EntityID, want)
		}
	}
}

func TestNeedsAttention(t *testing.T) {
	items := []Item{
		{EntityID: "ENT-1", Status: StatusOK},
		{EntityID: "ENT-2", Status: StatusWarning},
		{EntityID: "ENT-3", Status: StatusOK},
		{EntityID: "ENT-4", Status: StatusExpired},
	}
	got := NeedsAttention(items)
	if len(got) != 2 {
		t.Fatalf("want 2 items, got %d", len(got))
	}
	for _, it := range got {
		if it.Status == StatusOK {
			t.Errorf("ok item %s leaked through", it.EntityID)
		}
	}
}
