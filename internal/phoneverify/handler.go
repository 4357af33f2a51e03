package phoneverify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/quickoffer/leadgen/internal/observability/metrics"
	"github.com/quickoffer/leadgen/pkg/logging"
)

// Verifier is the port the handler and the form flow call.
type Verifier interface {
	Verify(ctx context.Context, digits string) (*Verification, error)
}

// Handler exposes the verification proxy over HTTP.
type Handler struct {
	verifier Verifier
	logger   *logging.Logger
	metrics  *metrics.LeadMetrics
}

// NewHandler creates a phone validation handler.
func NewHandler(verifier Verifier, logger *logging.Logger, m *metrics.LeadMetrics) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{verifier: verifier, logger: logger, metrics: m}
}

type validateRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// ValidatePhone handles POST /api/validate-phone requests.
func (h *Handler) ValidatePhone(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeInputError(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		h.writeInputError(w, "Phone number is required")
		return
	}

	v, err := h.verifier.Verify(r.Context(), req.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingAPIKey):
			h.logger.Error("phone validation misconfigured", "error", err)
			h.metrics.ObserveVerification("config_error")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "Phone validation service is not configured",
			})
		case errors.Is(err, ErrInvalidNumber), errors.Is(err, ErrInvalidCountryCode):
			h.metrics.ObserveVerification("rejected_input")
			h.writeInputError(w, "Invalid phone number")
		default:
			h.logger.Error("phone validation failed", "error", err)
			h.metrics.ObserveVerification("provider_error")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "Unable to validate phone number",
			})
		}
		return
	}

	outcome := "rejected"
	if v.LeadQualified {
		outcome = "qualified"
	}
	h.metrics.ObserveVerification(outcome)
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) writeInputError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":          msg,
		"validationData": nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
