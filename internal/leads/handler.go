package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/quickoffer/leadgen/internal/crm"
	httpmiddleware "github.com/quickoffer/leadgen/internal/http/middleware"
	"github.com/quickoffer/leadgen/internal/observability/metrics"
	"github.com/quickoffer/leadgen/pkg/logging"
)

// Submitter is the port the HTTP layer and the form flow call.
type Submitter interface {
	SubmitPartial(ctx context.Context, rec *LeadRecord) (*SubmissionResult, error)
	SubmitComplete(ctx context.Context, rec *LeadRecord) (*SubmissionResult, error)
}

// Handler handles the two lead submission endpoints. Both run the same
// pipeline: rate limit, parse, validate, stamp, map, dispatch.
type Handler struct {
	service Submitter
	limiter *httpmiddleware.Limiter
	logger  *logging.Logger
	metrics *metrics.LeadMetrics

	// exposeDetails echoes upstream diagnostics to clients; enabled only
	// outside production.
	exposeDetails bool
}

// NewHandler creates a lead submission handler.
func NewHandler(service Submitter, limiter *httpmiddleware.Limiter, logger *logging.Logger, m *metrics.LeadMetrics, exposeDetails bool) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:       service,
		limiter:       limiter,
		logger:        logger,
		metrics:       m,
		exposeDetails: exposeDetails,
	}
}

// SubmitPartial handles POST /api/submit-partial requests.
func (h *Handler) SubmitPartial(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, SubmissionPartial, h.service.SubmitPartial)
}

// SubmitComplete handles POST /api/submit-complete requests.
func (h *Handler) SubmitComplete(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, SubmissionComplete, h.service.SubmitComplete)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind string, dispatch func(context.Context, *LeadRecord) (*SubmissionResult, error)) {
	// Rate limit before any parsing or CRM work.
	if h.limiter != nil {
		res := h.limiter.Check(r.Context(), httpmiddleware.ClientKey(r))
		if !res.Allowed {
			h.metrics.ObserveThrottled()
			h.metrics.ObserveSubmission(kind, "throttled")
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":      "Too many requests. Please try again later.",
				"retryAfter": retryAfter,
			})
			return
		}
	}

	var rec LeadRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.metrics.ObserveSubmission(kind, "malformed")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid JSON payload",
		})
		return
	}

	result, err := dispatch(r.Context(), &rec)
	if err != nil {
		h.writeSubmitError(w, kind, err)
		return
	}

	h.metrics.ObserveSubmission(kind, "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"leadId":    result.LeadID,
		"contactId": result.ContactID,
	})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, kind string, err error) {
	var vErr *ValidationError
	var apiErr *crm.APIError

	switch {
	case errors.As(err, &vErr):
		h.metrics.ObserveSubmission(kind, "invalid")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": fmt.Sprintf("Missing or invalid field: %s", vErr.Field),
		})
	case errors.Is(err, crm.ErrMissingAPIKey):
		h.metrics.ObserveSubmission(kind, "config_error")
		h.logger.Error("lead submission misconfigured", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Lead service is not configured",
		})
	case errors.As(err, &apiErr):
		h.metrics.ObserveSubmission(kind, "upstream_error")
		h.logger.Error("CRM rejected lead submission",
			"type", kind,
			"status", apiErr.StatusCode,
			"message", apiErr.Message,
		)
		body := map[string]any{"error": "Failed to submit lead"}
		if h.exposeDetails {
			body["details"] = apiErr.Message
		}
		writeJSON(w, http.StatusInternalServerError, body)
	default:
		h.metrics.ObserveSubmission(kind, "error")
		h.logger.Error("lead submission failed", "type", kind, "error", err)
		body := map[string]any{"error": "Failed to submit lead"}
		if h.exposeDetails {
			body["details"] = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
