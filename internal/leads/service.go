package leads

import (
	"context"
	"errors"
	"time"

	"github.com/quickoffer/leadgen/internal/crm"
	"github.com/quickoffer/leadgen/pkg/logging"
)

// ContactAPI is the slice of the CRM client the service uses.
type ContactAPI interface {
	CreateContact(ctx context.Context, contact *crm.Contact) (*crm.Contact, error)
	UpdateContact(ctx context.Context, id string, contact *crm.Contact) (*crm.Contact, error)
	GetContact(ctx context.Context, id string) (*crm.Contact, error)
	LookupByPhone(ctx context.Context, phone string) (*crm.Contact, error)
}

// SubmissionResult identifies the lead and its CRM contact after a
// successful dispatch.
type SubmissionResult struct {
	LeadID    string `json:"leadId"`
	ContactID string `json:"contactId"`
}

// Service validates lead payloads, shapes them into CRM contacts, and
// dispatches them. It owns no durable state.
type Service struct {
	crm    ContactAPI
	logger *logging.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a lead submission service.
func NewService(contactAPI ContactAPI, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		crm:    contactAPI,
		logger: logger,
		now:    time.Now,
		newID:  NewLeadID,
	}
}

// SubmitPartial forwards a first-stage lead (address, phone, consent) to
// the CRM, generating the lead identifier on first submission. The
// leadId is reused verbatim when the caller already holds one, keeping
// the identifier stable for the session.
func (s *Service) SubmitPartial(ctx context.Context, rec *LeadRecord) (*SubmissionResult, error) {
	if err := ValidatePartial(rec); err != nil {
		return nil, err
	}

	s.stamp(rec, SubmissionPartial)
	if rec.LeadID == "" {
		rec.LeadID = s.newID()
	}

	contact := s.toContact(rec)
	contact.Notes = ComposeNotes(rec)

	created, err := s.crm.CreateContact(ctx, contact)
	if err != nil {
		return nil, err
	}

	s.logger.Info("partial lead submitted",
		"lead_id", rec.LeadID,
		"contact_id", created.ID,
	)
	return &SubmissionResult{LeadID: rec.LeadID, ContactID: created.ID}, nil
}

// SubmitComplete forwards the full lead detail, updating the contact the
// partial stage created. Matching is by normalized phone digits, so two
// leads sharing a line could collide on the same contact; the fallback
// below accepts duplicate contacts over losing a lead when the lookup
// itself fails.
func (s *Service) SubmitComplete(ctx context.Context, rec *LeadRecord) (*SubmissionResult, error) {
	if err := ValidateComplete(rec); err != nil {
		return nil, err
	}

	s.stamp(rec, SubmissionComplete)
	contact := s.toContact(rec)
	block := ComposeNotes(rec)

	existing, err := s.crm.LookupByPhone(ctx, PhoneE164(rec.Phone))
	if err != nil {
		if !errors.Is(err, crm.ErrContactNotFound) {
			// Lookup failed open: create rather than drop the lead.
			s.logger.Warn("contact lookup failed, creating new contact",
				"lead_id", rec.LeadID,
				"error", err,
			)
		}
		contact.Notes = block
		created, createErr := s.crm.CreateContact(ctx, contact)
		if createErr != nil {
			return nil, createErr
		}
		s.logger.Info("complete lead submitted as new contact",
			"lead_id", rec.LeadID,
			"contact_id", created.ID,
		)
		return &SubmissionResult{LeadID: rec.LeadID, ContactID: created.ID}, nil
	}

	contact.Notes = AppendNotes(existing.Notes, block)
	updated, err := s.crm.UpdateContact(ctx, existing.ID, contact)
	if err != nil {
		return nil, err
	}

	s.logger.Info("complete lead submitted",
		"lead_id", rec.LeadID,
		"contact_id", updated.ID,
	)
	return &SubmissionResult{LeadID: rec.LeadID, ContactID: updated.ID}, nil
}

func (s *Service) stamp(rec *LeadRecord, submissionType string) {
	now := s.now().UTC()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	rec.LastUpdated = now
	rec.SubmissionType = submissionType
}

// toContact maps the record into the CRM schema. Fields the CRM has no
// column for travel in the custom-field bag.
func (s *Service) toContact(rec *LeadRecord) *crm.Contact {
	custom := map[string]string{
		"leadId":         rec.LeadID,
		"submissionType": rec.SubmissionType,
	}
	setIfPresent(custom, "placeId", rec.PlaceID)
	setIfPresent(custom, "propertyCondition", rec.PropertyCondition)
	setIfPresent(custom, "timeframe", rec.Timeframe)
	setIfPresent(custom, "isPropertyListed", rec.IsPropertyListed)
	setIfPresent(custom, "askingPrice", rec.Price)

	return &crm.Contact{
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Email:       rec.Email,
		Phone:       PhoneE164(rec.Phone),
		Address1:    rec.Address,
		City:        rec.City,
		State:       rec.State,
		PostalCode:  rec.PostalCode,
		Source:      "website-lead-form",
		Tags:        []string{"seller-lead", rec.SubmissionType},
		CustomField: custom,
	}
}

func setIfPresent(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
