package validation

// Common enum values - these MUST match DB CHECK constraints in db.go.
var (
	ValidModules = []string{"personnel", "vehicles", "equipment", "incidents"}

	// Field kinds: text/number/select/textarea land in the text slot,
	// date and expiring_date in the date slot, file in the json slot.
	ValidFieldKinds = []string{"text", "number", "date", "expiring_date", "select", "textarea", "file"}

	ValidRoles = []string{"admin", "manager", "user", "readonly"}

	// ElevatedRoles receive a copy of every fired expiry alert.
	ElevatedRoles = []string{"admin", "manager"}
)

// IsDateKind reports whether the kind stores into the date slot.
func IsDateKind(kind string) bool {
	return kind == "date" || kind == "expiring_date"
}
