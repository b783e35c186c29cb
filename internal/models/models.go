package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Category is an administrator-defined entity category (e.g. "Drivers",
// "Trucks") belonging to one of the top-level register modules.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Module    string `json:"module"`
	Active    int    `json:"active"`
	CreatedAt string `json:"created_at"`
}

// FieldDefinition is a typed attribute configured on a category.
// Thresholds are day counts before expiry; they only carry meaning on the
// expiring_date kind, and no ordering between them is enforced.
type FieldDefinition struct {
	ID           int      `json:"id"`
	CategoryID   string   `json:"category_id"`
	Label        string   `json:"label"`
	FieldKey     string   `json:"field_key"`
	Kind         string   `json:"kind"`
	Required     int      `json:"required"`
	Options      []string `json:"options,omitempty"`
	DisplayOrder int      `json:"display_order"`
	WarnDays     *int     `json:"warn_days,omitempty"`
	UrgentDays   *int     `json:"urgent_days,omitempty"`
	CriticalDays *int     `json:"critical_days,omitempty"`
}

// HasThresholds reports whether all three alert thresholds are set.
func (f *FieldDefinition) HasThresholds() bool {
	return f.WarnDays != nil && f.UrgentDays != nil && f.CriticalDays != nil
}

// Entity is one tracked record: a person, vehicle, equipment item or
// incident. Values holds the flat field_key -> value mapping when the
// entity was fetched with its stored values; keys with no stored value
// are absent, not null.
type Entity struct {
	ID            string                 `json:"id"`
	CategoryID    string                 `json:"category_id"`
	DisplayName   string                 `json:"display_name"`
	ResponsibleID *int                   `json:"responsible_id,omitempty"`
	Active        int                    `json:"active"`
	CreatedAt     string                 `json:"created_at"`
	Values        map[string]interface{} `json:"values,omitempty"`
}

// FileRef is the opaque structured reference stored for file-kind values.
// The register never interprets file contents; storage lives elsewhere.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Account is a read-only identity row used for responsible-party and
// broadcast-list resolution.
type Account struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Active      int    `json:"active"`
}
