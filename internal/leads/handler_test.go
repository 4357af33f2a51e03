package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quickoffer/leadgen/internal/crm"
	httpmiddleware "github.com/quickoffer/leadgen/internal/http/middleware"
)

type fakeSubmitter struct {
	partialCalls  int
	completeCalls int
	result        *SubmissionResult
	err           error
}

func (f *fakeSubmitter) SubmitPartial(_ context.Context, rec *LeadRecord) (*SubmissionResult, error) {
	if err := ValidatePartial(rec); err != nil {
		return nil, err
	}
	f.partialCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSubmitter) SubmitComplete(_ context.Context, rec *LeadRecord) (*SubmissionResult, error) {
	if err := ValidateComplete(rec); err != nil {
		return nil, err
	}
	f.completeCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.RemoteAddr = "1.2.3.4:5678"
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestSubmitPartialSuccess(t *testing.T) {
	svc := &fakeSubmitter{result: &SubmissionResult{LeadID: "lead_1700000000000_ab12cd34", ContactID: "contact-1"}}
	h := NewHandler(svc, nil, nil, nil, false)

	rr := postJSON(t, h.SubmitPartial, "/api/submit-partial", validPartial())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true || resp["leadId"] != "lead_1700000000000_ab12cd34" || resp["contactId"] != "contact-1" {
		t.Fatalf("unexpected body: %v", resp)
	}
}

func TestSubmitPartialMalformedJSON(t *testing.T) {
	svc := &fakeSubmitter{}
	h := NewHandler(svc, nil, nil, nil, false)

	rr := postJSON(t, h.SubmitPartial, "/api/submit-partial", `{"address": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if svc.partialCalls != 0 {
		t.Fatal("malformed payloads must not reach the service")
	}
}

func TestSubmitPartialValidationFailure(t *testing.T) {
	svc := &fakeSubmitter{}
	h := NewHandler(svc, nil, nil, nil, false)

	rr := postJSON(t, h.SubmitPartial, "/api/submit-partial", &LeadRecord{Phone: "(555) 123-4567", Consent: true})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "address") {
		t.Fatalf("expected failing field named, got %s", rr.Body.String())
	}
}

func TestSubmitCompleteMissingFields(t *testing.T) {
	svc := &fakeSubmitter{}
	h := NewHandler(svc, nil, nil, nil, false)

	rec := validComplete()
	rec.Email = ""
	rr := postJSON(t, h.SubmitComplete, "/api/submit-complete", rec)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "email") {
		t.Fatalf("expected failing field named, got %s", rr.Body.String())
	}
	if svc.completeCalls != 0 {
		t.Fatal("invalid payloads must not be dispatched")
	}
}

func TestSubmitRateLimited(t *testing.T) {
	limiter := httpmiddleware.NewLimiter(httpmiddleware.NewMemoryStore(), 1, time.Minute, nil)
	svc := &fakeSubmitter{result: &SubmissionResult{LeadID: "lead_1", ContactID: "c1"}}
	h := NewHandler(svc, limiter, nil, nil, false)

	rr := postJSON(t, h.SubmitPartial, "/api/submit-partial", validPartial())
	if rr.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rr.Code)
	}

	rr = postJSON(t, h.SubmitPartial, "/api/submit-partial", validPartial())
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp["retryAfter"]; !ok {
		t.Fatalf("expected retryAfter hint, got %v", resp)
	}
	if svc.partialCalls != 1 {
		t.Fatalf("throttled request must not reach the service, calls=%d", svc.partialCalls)
	}
}

func TestSubmitUpstreamErrorHidesDetailInProduction(t *testing.T) {
	svc := &fakeSubmitter{err: &crm.APIError{StatusCode: 502, Message: "provider exploded"}}
	h := NewHandler(svc, nil, nil, nil, false)

	rr := postJSON(t, h.SubmitPartial, "/api/submit-partial", validPartial())
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "provider exploded") {
		t.Fatalf("provider detail must not leak in production: %s", rr.Body.String())
	}
}

func TestSubmitUpstreamErrorExposesDetailInDevelopment(t *testing.T) {
	svc := &fakeSubmitter{err: &crm.APIError{StatusCode: 502, Message: "provider exploded"}}
	h := NewHandler(svc, nil, nil, nil, true)

	rr := postJSON(t, h.SubmitPartial, "/api/submit-partial", validPartial())
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "provider exploded") {
		t.Fatalf("expected diagnostic detail outside production: %s", rr.Body.String())
	}
}

func TestSubmitConfigError(t *testing.T) {
	svc := &fakeSubmitter{err: crm.ErrMissingAPIKey}
	h := NewHandler(svc, nil, nil, nil, true)

	rr := postJSON(t, h.SubmitPartial, "/api/submit-partial", validPartial())
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "not configured") {
		t.Fatalf("expected config error message, got %s", rr.Body.String())
	}
}
