package form

import (
	"context"
	"errors"

	"github.com/quickoffer/leadgen/internal/leads"
	"github.com/quickoffer/leadgen/internal/phoneverify"
)

// State is the explicit step of the capture flow. Modeling it as one
// tagged value rules out invalid combinations like submitting from the
// address step.
type State int

const (
	StateAddress State = iota
	StatePhoneConsent
	StateSubmitting
	StateSubmitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAddress:
		return "address"
	case StatePhoneConsent:
		return "phone-consent"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Field names the concern an error annotation belongs to.
type Field string

const (
	FieldAddress    Field = "address"
	FieldPhone      Field = "phone"
	FieldPhoneAPI   Field = "phoneApi"
	FieldConsent    Field = "consent"
	FieldSubmission Field = "submission"
)

var (
	ErrInvalidState        = errors.New("form: submit unavailable in current step")
	ErrValidationFailed    = errors.New("form: validation failed")
	ErrPhoneNotQualified   = errors.New("form: phone number did not qualify")
	ErrPartialNotSubmitted = errors.New("form: complete submission requires a partial lead id")
)

// Analytics receives the conversion event; swappable so tests can record
// it instead of reaching into global tag-manager state.
type Analytics interface {
	TrackConversion(leadID string)
}

// Navigator is invoked once the partial submission succeeds.
type Navigator interface {
	NavigateToSuccess(leadID string)
}

type noopAnalytics struct{}

func (noopAnalytics) TrackConversion(string) {}

type noopNavigator struct{}

func (noopNavigator) NavigateToSuccess(string) {}

// Address is a selected autocomplete candidate. Free-text address entry
// never produces one, which is what keeps free text from advancing the
// flow.
type Address struct {
	Formatted  string
	Street     string
	City       string
	State      string
	PostalCode string
	PlaceID    string
}

// Details is the extended field set collected for the complete
// submission.
type Details struct {
	FirstName         string
	LastName          string
	Email             string
	PropertyCondition string
	Timeframe         string
	Price             string
	IsPropertyListed  string
	Comments          string
	ReferralSource    string
}

// Flow drives the multi-step capture form. It is single-caller
// cooperative, mirroring a UI event loop: methods are not safe for
// concurrent use, and in-flight guards rather than locks provide the
// duplicate-submit and late-response semantics.
type Flow struct {
	state   State
	record  leads.LeadRecord
	touched map[Field]bool
	errs    map[Field]string

	verification  *phoneverify.Verification
	verifiedFresh bool
	verifying     bool

	unmounted       bool
	conversionFired bool

	verifier  phoneverify.Verifier
	submitter leads.Submitter
	analytics Analytics
	navigator Navigator
}

// Option customizes a Flow.
type Option func(*Flow)

// WithAnalytics injects the conversion sink.
func WithAnalytics(a Analytics) Option {
	return func(f *Flow) {
		if a != nil {
			f.analytics = a
		}
	}
}

// WithNavigator injects the post-submission navigation target.
func WithNavigator(n Navigator) Option {
	return func(f *Flow) {
		if n != nil {
			f.navigator = n
		}
	}
}

// New creates a flow at the address step.
func New(verifier phoneverify.Verifier, submitter leads.Submitter, opts ...Option) *Flow {
	f := &Flow{
		state:     StateAddress,
		touched:   map[Field]bool{},
		errs:      map[Field]string{},
		verifier:  verifier,
		submitter: submitter,
		analytics: noopAnalytics{},
		navigator: noopNavigator{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State reports the current step.
func (f *Flow) State() State { return f.state }

// LeadID is the identifier assigned by the partial submission, empty
// until then.
func (f *Flow) LeadID() string { return f.record.LeadID }

// Record returns a copy of the working lead record.
func (f *Flow) Record() leads.LeadRecord { return f.record }

// FieldError reports the active error annotation for a concern.
func (f *Flow) FieldError(field Field) (string, bool) {
	msg, ok := f.errs[field]
	return msg, ok
}

// Validating reports whether a phone verification is in flight.
func (f *Flow) Validating() bool { return f.verifying }

// Verification returns the enrichment from the most recent phone lookup,
// nil when the digits changed since or no lookup has run.
func (f *Flow) Verification() *phoneverify.Verification { return f.verification }

// SelectAddress records an autocomplete candidate. Selection is the only
// way to leave the address step.
func (f *Flow) SelectAddress(a Address) {
	if f.done() {
		return
	}
	f.record.Address = a.Formatted
	f.record.StreetAddress = a.Street
	f.record.City = a.City
	f.record.State = a.State
	f.record.PostalCode = a.PostalCode
	f.record.PlaceID = a.PlaceID
	f.touched[FieldAddress] = true
	delete(f.errs, FieldAddress)

	if f.state == StateAddress {
		f.state = StatePhoneConsent
	}
	f.recover()
}

// TypeAddress updates the free-text address without advancing the flow.
func (f *Flow) TypeAddress(text string) {
	if f.done() {
		return
	}
	f.record.Address = text
	f.record.PlaceID = ""
	if f.touched[FieldAddress] {
		f.validateAddress()
	}
	f.recover()
}

// TypePhone reformats each keystroke into display format. A change in
// the underlying digits invalidates any prior verification enrichment,
// forcing re-verification.
func (f *Flow) TypePhone(raw string) string {
	if f.done() {
		return f.record.Phone
	}
	formatted := FormatPhone(raw)
	if leads.PhoneDigits(formatted) != leads.PhoneDigits(f.record.Phone) {
		f.verification = nil
		f.verifiedFresh = false
		f.record.Carrier = ""
		f.record.PhoneLineType = ""
		delete(f.errs, FieldPhoneAPI)
	}
	f.record.Phone = formatted
	if f.touched[FieldPhone] {
		f.validatePhoneFormat()
	}
	f.recover()
	return formatted
}

// SetConsent toggles the consent checkbox.
func (f *Flow) SetConsent(v bool) {
	if f.done() {
		return
	}
	f.record.Consent = v
	f.touched[FieldConsent] = true
	f.validateConsent()
	f.recover()
}

// Blur marks a field touched and runs its field-scoped validation. A
// format-valid, not-yet-fresh phone triggers verification.
func (f *Flow) Blur(ctx context.Context, field Field) {
	if f.done() {
		return
	}
	f.touched[field] = true
	switch field {
	case FieldAddress:
		f.validateAddress()
	case FieldPhone:
		if f.validatePhoneFormat() && !f.verifiedFresh && !f.verifying {
			f.verifyPhone(ctx)
		}
	case FieldConsent:
		f.validateConsent()
	}
}

// CanSubmit reports whether the submit control should be enabled.
func (f *Flow) CanSubmit() bool {
	if f.state != StatePhoneConsent && f.state != StateFailed {
		return false
	}
	if f.verifying {
		return false
	}
	if len(f.errs) > 0 {
		return false
	}
	rec := f.record
	return leads.ValidatePartial(&rec) == nil
}

// Submit runs the full re-validation pass, forces a verification when
// the current one is stale, and dispatches the partial submission. A
// second call while one is in flight is a no-op, and a call after the
// flow has been unmounted or already submitted does nothing.
func (f *Flow) Submit(ctx context.Context) error {
	if f.unmounted || f.state == StateSubmitting || f.state == StateSubmitted {
		return nil
	}
	if f.state == StateAddress {
		return ErrInvalidState
	}

	f.touched[FieldAddress] = true
	f.touched[FieldPhone] = true
	f.touched[FieldConsent] = true
	addressOK := f.validateAddress()
	phoneOK := f.validatePhoneFormat()
	consentOK := f.validateConsent()
	if !addressOK || !phoneOK || !consentOK {
		return ErrValidationFailed
	}

	f.state = StateSubmitting

	// Re-verify even if blur already did: the value could have mutated
	// without another blur firing, so "verified" only holds until the
	// next raw-value change.
	if !f.verifiedFresh {
		f.verifyPhone(ctx)
		if f.unmounted {
			return nil
		}
		if !f.verifiedFresh {
			f.state = StateFailed
			if _, ok := f.errs[FieldPhoneAPI]; !ok {
				f.errs[FieldPhoneAPI] = "Unable to verify phone number"
			}
			return ErrPhoneNotQualified
		}
	}

	result, err := f.submitter.SubmitPartial(ctx, &f.record)
	if f.unmounted {
		return nil
	}
	if err != nil {
		f.state = StateFailed
		f.errs[FieldSubmission] = "Something went wrong. Please try again."
		return err
	}

	f.record.LeadID = result.LeadID
	if !f.conversionFired {
		f.analytics.TrackConversion(result.LeadID)
		f.conversionFired = true
	}
	f.state = StateSubmitted
	f.navigator.NavigateToSuccess(result.LeadID)
	return nil
}

// SubmitComplete sends the second-stage detail, keyed by the lead id the
// partial stage produced. It can never run before a successful partial
// submission.
func (f *Flow) SubmitComplete(ctx context.Context, d Details) error {
	if f.unmounted {
		return nil
	}
	if f.record.LeadID == "" {
		return ErrPartialNotSubmitted
	}

	f.record.FirstName = d.FirstName
	f.record.LastName = d.LastName
	f.record.Email = d.Email
	f.record.PropertyCondition = d.PropertyCondition
	f.record.Timeframe = d.Timeframe
	f.record.Price = d.Price
	f.record.IsPropertyListed = d.IsPropertyListed
	f.record.Comments = d.Comments
	f.record.ReferralSource = d.ReferralSource

	_, err := f.submitter.SubmitComplete(ctx, &f.record)
	if f.unmounted {
		return nil
	}
	if err != nil {
		f.errs[FieldSubmission] = "Something went wrong. Please try again."
		return err
	}
	delete(f.errs, FieldSubmission)
	return nil
}

// Unmount marks the flow gone from screen; late verification or
// submission results arriving afterwards are ignored.
func (f *Flow) Unmount() {
	f.unmounted = true
}

func (f *Flow) done() bool {
	return f.unmounted || f.state == StateSubmitted
}

// recover returns a failed flow to the editable step once the user
// changes anything.
func (f *Flow) recover() {
	if f.state == StateFailed {
		f.state = StatePhoneConsent
		delete(f.errs, FieldSubmission)
	}
}

func (f *Flow) validateAddress() bool {
	if f.record.Address == "" {
		f.errs[FieldAddress] = "Address is required"
		return false
	}
	delete(f.errs, FieldAddress)
	return true
}

func (f *Flow) validatePhoneFormat() bool {
	if !leads.ValidPhoneFormat(f.record.Phone) {
		f.errs[FieldPhone] = "Enter a valid 10-digit phone number"
		return false
	}
	delete(f.errs, FieldPhone)
	return true
}

func (f *Flow) validateConsent() bool {
	if !f.record.Consent {
		f.errs[FieldConsent] = "Consent is required"
		return false
	}
	delete(f.errs, FieldConsent)
	return true
}

func (f *Flow) verifyPhone(ctx context.Context) {
	f.verifying = true
	v, err := f.verifier.Verify(ctx, leads.PhoneDigits(f.record.Phone))
	if f.unmounted {
		// Navigated away while the lookup was in flight.
		return
	}
	f.verifying = false

	switch {
	case err != nil:
		f.verification = nil
		f.verifiedFresh = false
		f.errs[FieldPhoneAPI] = "Unable to verify phone number"
	case !v.LeadQualified:
		f.verification = v
		f.verifiedFresh = false
		f.errs[FieldPhoneAPI] = "Please enter a valid mobile or landline number"
	default:
		f.verification = v
		f.verifiedFresh = true
		f.record.Carrier = v.Carrier
		f.record.PhoneLineType = v.LineType
		delete(f.errs, FieldPhoneAPI)
	}
}
