package form

import (
	"context"
	"errors"
	"testing"

	"github.com/quickoffer/leadgen/internal/crm"
	"github.com/quickoffer/leadgen/internal/leads"
	"github.com/quickoffer/leadgen/internal/phoneverify"
)

type stubVerifier struct {
	result *phoneverify.Verification
	err    error
	calls  int
	onCall func()
}

func (s *stubVerifier) Verify(context.Context, string) (*phoneverify.Verification, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSubmitter struct {
	partialCalls  int
	completeCalls int
	result        *leads.SubmissionResult
	err           error
	lastRecord    leads.LeadRecord
	onPartial     func()
}

func (s *stubSubmitter) SubmitPartial(_ context.Context, rec *leads.LeadRecord) (*leads.SubmissionResult, error) {
	s.partialCalls++
	s.lastRecord = *rec
	if s.onPartial != nil {
		s.onPartial()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubSubmitter) SubmitComplete(_ context.Context, rec *leads.LeadRecord) (*leads.SubmissionResult, error) {
	s.completeCalls++
	s.lastRecord = *rec
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type recordingAnalytics struct {
	conversions []string
}

func (r *recordingAnalytics) TrackConversion(leadID string) {
	r.conversions = append(r.conversions, leadID)
}

type recordingNavigator struct {
	destinations []string
}

func (r *recordingNavigator) NavigateToSuccess(leadID string) {
	r.destinations = append(r.destinations, leadID)
}

func mobileVerification() *phoneverify.Verification {
	return &phoneverify.Verification{
		Valid:         true,
		LineType:      "mobile",
		Carrier:       "Example Wireless",
		LeadQualified: true,
	}
}

func mainStreet() Address {
	return Address{
		Formatted:  "123 Main St, Springfield, IL 62701",
		Street:     "123 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		PlaceID:    "place-abc",
	}
}

func TestHappyPathEndToEnd(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	submitter := &stubSubmitter{result: &leads.SubmissionResult{LeadID: "lead_1700000000000_ab12cd34", ContactID: "c1"}}
	analytics := &recordingAnalytics{}
	navigator := &recordingNavigator{}
	flow := New(verifier, submitter, WithAnalytics(analytics), WithNavigator(navigator))
	ctx := context.Background()

	if flow.State() != StateAddress {
		t.Fatalf("expected address step, got %s", flow.State())
	}

	flow.SelectAddress(mainStreet())
	if flow.State() != StatePhoneConsent {
		t.Fatalf("address selection should advance, got %s", flow.State())
	}

	if got := flow.TypePhone("5551234567"); got != "(555) 123-4567" {
		t.Fatalf("expected live formatting, got %q", got)
	}
	flow.Blur(ctx, FieldPhone)
	if verifier.calls != 1 {
		t.Fatalf("blur should trigger verification, calls=%d", verifier.calls)
	}
	if rec := flow.Record(); rec.Carrier != "Example Wireless" || rec.PhoneLineType != "mobile" {
		t.Fatalf("verification enrichment missing: %#v", rec)
	}

	flow.SetConsent(true)
	if !flow.CanSubmit() {
		t.Fatal("submit should be enabled")
	}

	if err := flow.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if flow.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", flow.State())
	}
	if flow.LeadID() != "lead_1700000000000_ab12cd34" {
		t.Fatalf("lead id not stored: %q", flow.LeadID())
	}
	// Still fresh from blur, no second verification needed.
	if verifier.calls != 1 {
		t.Fatalf("expected no re-verification for a fresh result, calls=%d", verifier.calls)
	}
	if len(analytics.conversions) != 1 || analytics.conversions[0] != flow.LeadID() {
		t.Fatalf("conversion should fire exactly once: %v", analytics.conversions)
	}
	if len(navigator.destinations) != 1 {
		t.Fatalf("expected navigation after success: %v", navigator.destinations)
	}

	// Terminal state: further submits are no-ops.
	if err := flow.Submit(ctx); err != nil {
		t.Fatalf("post-success submit should be a no-op, got %v", err)
	}
	if submitter.partialCalls != 1 {
		t.Fatalf("expected exactly one partial submission, got %d", submitter.partialCalls)
	}
}

func TestFreeTextNeverAdvancesAddressStep(t *testing.T) {
	flow := New(&stubVerifier{}, &stubSubmitter{})

	flow.TypeAddress("123 Main St")
	if flow.State() != StateAddress {
		t.Fatalf("free text must not advance, got %s", flow.State())
	}
	if err := flow.Submit(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("submit from step 1 should be rejected, got %v", err)
	}
}

func TestVoipBlocksSubmission(t *testing.T) {
	verifier := &stubVerifier{result: &phoneverify.Verification{Valid: true, LineType: "voip", LeadQualified: false}}
	submitter := &stubSubmitter{}
	flow := New(verifier, submitter)
	ctx := context.Background()

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")
	flow.SetConsent(true)

	err := flow.Submit(ctx)
	if !errors.Is(err, ErrPhoneNotQualified) {
		t.Fatalf("expected phone rejection, got %v", err)
	}
	if msg, ok := flow.FieldError(FieldPhoneAPI); !ok || msg == "" {
		t.Fatal("expected phoneApi error annotation")
	}
	if submitter.partialCalls != 0 {
		t.Fatal("a rejected phone must never reach the submission endpoint")
	}
	if flow.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", flow.State())
	}
}

func TestDigitChangeInvalidatesVerification(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	submitter := &stubSubmitter{result: &leads.SubmissionResult{LeadID: "lead_1", ContactID: "c1"}}
	flow := New(verifier, submitter)
	ctx := context.Background()

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")
	flow.Blur(ctx, FieldPhone)
	if verifier.calls != 1 {
		t.Fatalf("expected one verification, got %d", verifier.calls)
	}

	// Same digits again: enrichment survives.
	flow.TypePhone("(555) 123-4567")
	if rec := flow.Record(); rec.Carrier == "" {
		t.Fatal("re-typing identical digits must not clear enrichment")
	}

	// Changed digits: enrichment cleared, submit re-verifies.
	flow.TypePhone("5551239999")
	if rec := flow.Record(); rec.Carrier != "" || rec.PhoneLineType != "" {
		t.Fatalf("digit change must clear enrichment: %#v", rec)
	}
	flow.SetConsent(true)
	if err := flow.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if verifier.calls != 2 {
		t.Fatalf("expected forced re-verification, calls=%d", verifier.calls)
	}
}

func TestSubmitReverifiesWhenNeverBlurred(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	submitter := &stubSubmitter{result: &leads.SubmissionResult{LeadID: "lead_1", ContactID: "c1"}}
	flow := New(verifier, submitter)

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")
	flow.SetConsent(true)

	if err := flow.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if verifier.calls != 1 {
		t.Fatalf("submit must verify when no blur happened, calls=%d", verifier.calls)
	}
	if submitter.partialCalls != 1 {
		t.Fatalf("expected one submission, got %d", submitter.partialCalls)
	}
}

func TestDuplicateSubmitWhileInFlightIsNoOp(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	submitter := &stubSubmitter{result: &leads.SubmissionResult{LeadID: "lead_1", ContactID: "c1"}}
	flow := New(verifier, submitter)
	ctx := context.Background()

	// Re-enter Submit from inside the outstanding request.
	submitter.onPartial = func() {
		if err := flow.Submit(ctx); err != nil {
			t.Errorf("re-entrant submit should be a no-op, got %v", err)
		}
	}

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")
	flow.SetConsent(true)
	if err := flow.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitter.partialCalls != 1 {
		t.Fatalf("duplicate submit must not double-dispatch, calls=%d", submitter.partialCalls)
	}
}

func TestLateVerificationAfterUnmountIgnored(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	flow := New(verifier, &stubSubmitter{})
	ctx := context.Background()

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")

	// The user navigates away while the lookup is outstanding.
	verifier.onCall = func() { flow.Unmount() }
	flow.Blur(ctx, FieldPhone)

	if rec := flow.Record(); rec.Carrier != "" {
		t.Fatalf("late result must not mutate an unmounted flow: %#v", rec)
	}
	if _, ok := flow.FieldError(FieldPhoneAPI); ok {
		t.Fatal("late result must not annotate an unmounted flow")
	}
}

func TestLateSubmissionAfterUnmountIgnored(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	submitter := &stubSubmitter{result: &leads.SubmissionResult{LeadID: "lead_1", ContactID: "c1"}}
	navigator := &recordingNavigator{}
	flow := New(verifier, submitter, WithNavigator(navigator))
	ctx := context.Background()

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")
	flow.SetConsent(true)

	submitter.onPartial = func() { flow.Unmount() }
	if err := flow.Submit(ctx); err != nil {
		t.Fatalf("late success should be swallowed, got %v", err)
	}
	if len(navigator.destinations) != 0 {
		t.Fatal("must not navigate after unmount")
	}
	if flow.LeadID() != "" {
		t.Fatal("must not store lead id after unmount")
	}
}

func TestSubmissionFailureIsRecoverable(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	submitter := &stubSubmitter{err: &crm.APIError{StatusCode: 502, Message: "down"}}
	flow := New(verifier, submitter)
	ctx := context.Background()

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")
	flow.SetConsent(true)

	if err := flow.Submit(ctx); err == nil {
		t.Fatal("expected submission error")
	}
	if flow.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", flow.State())
	}
	if msg, ok := flow.FieldError(FieldSubmission); !ok || msg == "" {
		t.Fatal("expected submission error annotation")
	}
	if rec := flow.Record(); rec.Phone != "(555) 123-4567" || rec.Address == "" {
		t.Fatalf("entered data must survive a failure: %#v", rec)
	}

	// Any edit returns to the editable step; a retry then succeeds.
	submitter.err = nil
	submitter.result = &leads.SubmissionResult{LeadID: "lead_2", ContactID: "c2"}
	flow.SetConsent(true)
	if flow.State() != StatePhoneConsent {
		t.Fatalf("edit should recover the flow, got %s", flow.State())
	}
	if err := flow.Submit(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if flow.State() != StateSubmitted {
		t.Fatalf("expected submitted after retry, got %s", flow.State())
	}
}

func TestValidationGatesSubmit(t *testing.T) {
	flow := New(&stubVerifier{result: mobileVerification()}, &stubSubmitter{})
	ctx := context.Background()

	flow.SelectAddress(mainStreet())
	if flow.CanSubmit() {
		t.Fatal("submit must be disabled with missing fields")
	}

	flow.TypePhone("555123")
	flow.Blur(ctx, FieldPhone)
	if _, ok := flow.FieldError(FieldPhone); !ok {
		t.Fatal("expected phone format error on blur")
	}
	if err := flow.Submit(ctx); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	flow.TypePhone("5551234567")
	if _, ok := flow.FieldError(FieldPhone); ok {
		t.Fatal("fixing a touched field should clear its error")
	}

	if err := flow.Submit(ctx); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("consent still missing, got %v", err)
	}
	if _, ok := flow.FieldError(FieldConsent); !ok {
		t.Fatal("expected consent error annotation")
	}
}

func TestSubmitCompleteRequiresPartial(t *testing.T) {
	verifier := &stubVerifier{result: mobileVerification()}
	submitter := &stubSubmitter{result: &leads.SubmissionResult{LeadID: "lead_1", ContactID: "c1"}}
	flow := New(verifier, submitter)
	ctx := context.Background()

	err := flow.SubmitComplete(ctx, Details{FirstName: "Jane"})
	if !errors.Is(err, ErrPartialNotSubmitted) {
		t.Fatalf("complete must never precede partial, got %v", err)
	}
	if submitter.completeCalls != 0 {
		t.Fatal("complete submission dispatched without a lead id")
	}

	flow.SelectAddress(mainStreet())
	flow.TypePhone("5551234567")
	flow.SetConsent(true)
	if err := flow.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err = flow.SubmitComplete(ctx, Details{
		FirstName:         "Jane",
		LastName:          "Seller",
		Email:             "jane@example.com",
		PropertyCondition: "needs work",
		Timeframe:         "0-3 months",
		Price:             "250000",
	})
	if err != nil {
		t.Fatalf("submit complete: %v", err)
	}
	if submitter.completeCalls != 1 {
		t.Fatalf("expected one complete submission, got %d", submitter.completeCalls)
	}
	if submitter.lastRecord.LeadID != "lead_1" || submitter.lastRecord.FirstName != "Jane" {
		t.Fatalf("complete record not populated: %#v", submitter.lastRecord)
	}
}
