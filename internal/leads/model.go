package leads

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Submission types stamped onto every lead forwarded to the CRM.
const (
	SubmissionPartial  = "partial"
	SubmissionComplete = "complete"
)

// displayPhoneRe is the display format every phone must satisfy before
// any network validation is attempted.
var displayPhoneRe = regexp.MustCompile(`^\(\d{3}\) \d{3}-\d{4}$`)

// LeadRecord is the working copy of a prospective seller's submission.
// Its authoritative persisted form lives entirely in the external CRM.
type LeadRecord struct {
	LeadID string `json:"leadId,omitempty"`

	Address       string `json:"address"`
	StreetAddress string `json:"streetAddress,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	PlaceID       string `json:"placeId,omitempty"`

	Phone   string `json:"phone"`
	Consent bool   `json:"consent"`

	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	Email             string `json:"email,omitempty"`
	PropertyCondition string `json:"propertyCondition,omitempty"`
	Timeframe         string `json:"timeframe,omitempty"`
	Price             string `json:"price,omitempty"`
	IsPropertyListed  string `json:"isPropertyListed,omitempty"`
	Comments          string `json:"comments,omitempty"`
	ReferralSource    string `json:"referralSource,omitempty"`

	// Enrichment from phone verification; cleared whenever digits change.
	Carrier       string `json:"carrier,omitempty"`
	PhoneLineType string `json:"phoneLineType,omitempty"`

	Timestamp      time.Time `json:"timestamp,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated,omitempty"`
	SubmissionType string    `json:"submissionType,omitempty"`
}

// ValidationError marks the first failing field of a payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// ValidatePartial checks the first-stage required set: address, a
// format-valid phone, and consent.
func ValidatePartial(r *LeadRecord) error {
	if strings.TrimSpace(r.Address) == "" {
		return &ValidationError{Field: "address", Reason: "address is required"}
	}
	if strings.TrimSpace(r.Phone) == "" {
		return &ValidationError{Field: "phone", Reason: "phone is required"}
	}
	if !displayPhoneRe.MatchString(r.Phone) {
		return &ValidationError{Field: "phone", Reason: "phone must match (XXX) XXX-XXXX"}
	}
	if !r.Consent {
		return &ValidationError{Field: "consent", Reason: "consent is required"}
	}
	return nil
}

// ValidateComplete checks the extended second-stage required set on top
// of the partial rules.
func ValidateComplete(r *LeadRecord) error {
	if err := ValidatePartial(r); err != nil {
		return err
	}
	required := []struct {
		field string
		value string
	}{
		{"leadId", r.LeadID},
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"email", r.Email},
		{"propertyCondition", r.PropertyCondition},
		{"timeframe", r.Timeframe},
		{"price", r.Price},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			return &ValidationError{Field: req.field, Reason: req.field + " is required"}
		}
	}
	return nil
}

// ValidPhoneFormat reports whether phone is in display format.
func ValidPhoneFormat(phone string) bool {
	return displayPhoneRe.MatchString(phone)
}

// NewLeadID generates the session-unique lead identifier.
func NewLeadID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("lead_%d_%s", time.Now().UnixMilli(), suffix)
}

// PhoneDigits strips display formatting from a phone value.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneE164 renders a display-format US phone as +1XXXXXXXXXX for CRM
// lookups.
func PhoneE164(phone string) string {
	digits := PhoneDigits(phone)
	if len(digits) == 10 {
		return "+1" + digits
	}
	if digits == "" {
		return ""
	}
	return "+" + digits
}
