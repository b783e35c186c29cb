package scheduler

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"opreg/internal/entity"
	"opreg/internal/models"
	"opreg/internal/schema"
	"opreg/internal/testutil"
)

func intPtr(n int) *int { return &n }

var testToday = time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

type sentMail struct {
	to      string
	cc      []string
	subject string
	body    string
}

type fixture struct {
	db    *sql.DB
	reg   *schema.Registry
	store *entity.Store
	sweep *Sweep
	sent  *[]sentMail
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	nextID := testutil.SequentialID()
	reg := &schema.Registry{DB: db, NextID: nextID}
	store := &entity.Store{DB: db, Registry: reg, NextID: nextID}

	var sent []sentMail
	sweep := &Sweep{
		DB:       db,
		Registry: reg,
		Today:    func() time.Time { return testToday },
		SendMail: func(to string, cc []string, subject, body string) error {
			sent = append(sent, sentMail{to: to, cc: cc, subject: subject, body: body})
			return nil
		},
	}
	return &fixture{db: db, reg: reg, store: store, sweep: sweep, sent: &sent}
}

// seedExpiring creates a category with an expiring_date field and one
// entity whose date lands the given number of days from testToday.
func (f *fixture) seedExpiring(t *testing.T, daysOut int, responsibleID *int) *models.Entity {
	t.Helper()
	cat, err := f.reg.CreateCategory(fmt.Sprintf("Cat %d", daysOut), "equipment")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.CreateField(cat.ID, models.FieldDefinition{
		Label: "Certificate Expiry", FieldKey: "cert_expiry", Kind: "expiring_date",
		WarnDays: intPtr(60), UrgentDays: intPtr(30), CriticalDays: intPtr(7),
	}); err != nil {
		t.Fatal(err)
	}
	date := testToday.AddDate(0, 0, daysOut).Format("2006-01-02")
	e, err := f.store.Create(cat.ID, fmt.Sprintf("Unit %d", daysOut),
		map[string]interface{}{"cert_expiry": date}, responsibleID)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestFireDay(t *testing.T) {
	fire := []int{90, 30, 10, 5, 1, 0}
	for _, d := range fire {
		if !fireDay(d) {
			t.Errorf("day %d should fire", d)
		}
	}
	quiet := []int{91, 89, 60, 45, 31, 29, 11, -1, -10}
	for _, d := range quiet {
		if fireDay(d) {
			t.Errorf("day %d should not fire", d)
		}
	}
}

func TestRunFiresOnExactDays(t *testing.T) {
	f := newFixture(t)
	respID := testutil.SeedAccount(t, f.db, "owner", "owner@example.com", "user")

	f.seedExpiring(t, 90, &respID)
	f.seedExpiring(t, 30, &respID)
	f.seedExpiring(t, 3, &respID)
	f.seedExpiring(t, 45, &respID) // visible on dashboard, no mail
	f.seedExpiring(t, 31, &respID)

	sum, err := f.sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Candidates != 5 {
		t.Errorf("candidates = %d, want 5", sum.Candidates)
	}
	if sum.Fired != 3 || sum.Delivered != 3 {
		t.Errorf("fired/delivered = %d/%d, want 3/3", sum.Fired, sum.Delivered)
	}
	if len(*f.sent) != 3 {
		t.Fatalf("sent %d mails, want 3", len(*f.sent))
	}
	for _, m := range *f.sent {
		if m.to != "owner@example.com" {
			t.Errorf("recipient = %s", m.to)
		}
	}
}

func TestRunClassifiesSeverity(t *testing.T) {
	f := newFixture(t)
	respID := testutil.SeedAccount(t, f.db, "owner", "owner@example.com", "user")
	f.seedExpiring(t, 30, &respID)

	if _, err := f.sweep.Run(); err != nil {
		t.Fatal(err)
	}
	if len(*f.sent) != 1 {
		t.Fatal("no mail sent")
	}
	m := (*f.sent)[0]
	if m.subject != "[URGENT] Unit 30: Certificate Expiry expires in 30 days" {
		t.Errorf("subject = %q", m.subject)
	}
}

func TestRunExpiryDaySubject(t *testing.T) {
	f := newFixture(t)
	respID := testutil.SeedAccount(t, f.db, "owner", "owner@example.com", "user")
	f.seedExpiring(t, 0, &respID)

	f.sweep.Run()
	if len(*f.sent) != 1 {
		t.Fatal("no mail sent")
	}
	if got := (*f.sent)[0].subject; got != "[CRITICAL] Unit 0: Certificate Expiry expires today" {
		t.Errorf("subject = %q", got)
	}
}

func TestRunElevatedCCDeduplicated(t *testing.T) {
	f := newFixture(t)
	respID := testutil.SeedAccount(t, f.db, "owner", "owner@example.com", "user")
	testutil.SeedAccount(t, f.db, "boss", "ops@example.com", "admin")
	testutil.SeedAccount(t, f.db, "boss2", "ops@example.com", "manager")
	testutil.SeedAccount(t, f.db, "lead", "lead@example.com", "manager")
	testutil.SeedAccount(t, f.db, "viewer", "viewer@example.com", "viewer")
	testutil.SeedAccount(t, f.db, "gone", "gone@example.com", "admin")
	f.db.Exec("UPDATE users SET active = 0 WHERE username = 'gone'")

	f.seedExpiring(t, 5, &respID)
	f.sweep.Run()

	if len(*f.sent) != 1 {
		t.Fatal("no mail sent")
	}
	cc := (*f.sent)[0].cc
	want := []string{"lead@example.com", "ops@example.com"}
	if len(cc) != len(want) {
		t.Fatalf("cc = %v, want %v", cc, want)
	}
	for i := range want {
		if cc[i] != want[i] {
			t.Fatalf("cc = %v, want %v", cc, want)
		}
	}
}

func TestRunRecipientFallbackToEmailField(t *testing.T) {
	f := newFixture(t)
	cat, _ := f.reg.CreateCategory("Contractors", "personnel")
	f.reg.CreateField(cat.ID, models.FieldDefinition{
		Label: "Contact Email", FieldKey: "contact_email", Kind: "text",
	})
	f.reg.CreateField(cat.ID, models.FieldDefinition{
		Label: "Badge Expiry", FieldKey: "badge_expiry", Kind: "expiring_date",
		WarnDays: intPtr(60), UrgentDays: intPtr(30), CriticalDays: intPtr(7),
	})
	date := testToday.AddDate(0, 0, 30).Format("2006-01-02")
	if _, err := f.store.Create(cat.ID, "Jordan", map[string]interface{}{
		"badge_expiry":  date,
		"contact_email": "jordan@example.com",
	}, nil); err != nil {
		t.Fatal(err)
	}

	sum, err := f.sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1", sum.Delivered)
	}
	if got := (*f.sent)[0].to; got != "jordan@example.com" {
		t.Errorf("fallback recipient = %s", got)
	}
}

func TestRunSkipsWithoutRecipient(t *testing.T) {
	f := newFixture(t)
	f.seedExpiring(t, 30, nil)

	sum, err := f.sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Fired != 1 || sum.Skipped != 1 || sum.Delivered != 0 {
		t.Errorf("summary = %+v, want fired 1 skipped 1 delivered 0", sum)
	}
	if len(*f.sent) != 0 {
		t.Errorf("no mail should go out without a recipient")
	}
}

func TestRunInactiveResponsibleFallsBack(t *testing.T) {
	f := newFixture(t)
	respID := testutil.SeedAccount(t, f.db, "left", "left@example.com", "user")
	f.db.Exec("UPDATE users SET active = 0 WHERE id = ?", respID)
	f.seedExpiring(t, 30, &respID)

	sum, _ := f.sweep.Run()
	if sum.Skipped != 1 {
		t.Errorf("inactive responsible with no email field should skip, got %+v", sum)
	}
}

func TestRunDeliveryFailureContinues(t *testing.T) {
	f := newFixture(t)
	respID := testutil.SeedAccount(t, f.db, "owner", "owner@example.com", "user")
	f.seedExpiring(t, 30, &respID)
	f.seedExpiring(t, 5, &respID)

	calls := 0
	f.sweep.SendMail = func(to string, cc []string, subject, body string) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("smtp: connection refused")
		}
		return nil
	}

	sum, err := f.sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Fired != 2 || sum.Delivered != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v, want fired 2 delivered 1 failed 1", sum)
	}
	if len(sum.Errors) != 1 {
		t.Errorf("errors = %v", sum.Errors)
	}
}

func TestRunOutsideWindowIgnored(t *testing.T) {
	f := newFixture(t)
	respID := testutil.SeedAccount(t, f.db, "owner", "owner@example.com", "user")
	f.seedExpiring(t, 200, &respID)
	f.seedExpiring(t, -5, &respID) // already expired, outside candidate window

	sum, err := f.sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Candidates != 0 {
		t.Errorf("candidates = %d, want 0", sum.Candidates)
	}
}

func TestRunNoThresholdFields(t *testing.T) {
	f := newFixture(t)
	sum, err := f.sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Candidates != 0 || sum.Fired != 0 {
		t.Errorf("empty register should be a clean no-op: %+v", sum)
	}
}
