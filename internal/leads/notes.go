package leads

import (
	"strings"
	"time"
)

// ComposeNotes renders the lead as a labeled free-text block. The CRM's
// structured fields are limited, so this text is the durable
// human-auditable record of everything the form captured.
func ComposeNotes(r *LeadRecord) string {
	stamp := r.LastUpdated
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}

	var b strings.Builder
	b.WriteString("=== Lead submission (" + r.SubmissionType + ") at " + stamp.UTC().Format(time.RFC3339) + " ===\n")

	writeSection(&b, "Contact", []field{
		{"Name", strings.TrimSpace(r.FirstName + " " + r.LastName)},
		{"Email", r.Email},
		{"Phone", r.Phone},
		{"Consent", boolWord(r.Consent)},
	})
	writeSection(&b, "Property", []field{
		{"Address", r.Address},
		{"Street", r.StreetAddress},
		{"City", r.City},
		{"State", r.State},
		{"Postal code", r.PostalCode},
	})
	writeSection(&b, "Details", []field{
		{"Condition", r.PropertyCondition},
		{"Timeframe", r.Timeframe},
		{"Asking price", r.Price},
		{"Currently listed", r.IsPropertyListed},
		{"Comments", r.Comments},
		{"Referral source", r.ReferralSource},
	})
	writeSection(&b, "Meta", []field{
		{"Lead ID", r.LeadID},
		{"Place ID", r.PlaceID},
		{"Carrier", r.Carrier},
		{"Line type", r.PhoneLineType},
	})

	return strings.TrimRight(b.String(), "\n")
}

// AppendNotes adds a new notes block after any existing history, never
// replacing it, so the full submission trail stays visible in the CRM.
func AppendNotes(existing, block string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return block
	}
	return existing + "\n\n" + block
}

type field struct {
	label string
	value string
}

func writeSection(b *strings.Builder, title string, fields []field) {
	var present []field
	for _, f := range fields {
		if strings.TrimSpace(f.value) != "" {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return
	}
	b.WriteString(strings.ToUpper(title) + "\n")
	for _, f := range present {
		b.WriteString("  " + f.label + ": " + f.value + "\n")
	}
}

func boolWord(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
