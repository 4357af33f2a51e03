package crm

// Contact is the CRM's contact record. The CRM's structured fields are
// limited, so provider-specific values travel in the CustomField bag and
// the full human-readable history lives in Notes.
type Contact struct {
	ID         string `json:"id,omitempty"`
	LocationID string `json:"locationId,omitempty"`

	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address1   string `json:"address1,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`

	Source string   `json:"source,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Notes  string   `json:"notes,omitempty"`

	CustomField map[string]string `json:"customField,omitempty"`
}
