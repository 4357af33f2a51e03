package phoneverify

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Verification is the normalized accept/reject decision for a number.
type Verification struct {
	Valid               bool            `json:"isValid"`
	LineType            string          `json:"lineType"`
	Carrier             string          `json:"carrier"`
	InternationalFormat string          `json:"internationalFormat"`
	LocalFormat         string          `json:"localFormat"`
	CountryCode         string          `json:"countryCode"`
	LeadQualified       bool            `json:"isValidLead"`
	Raw                 json.RawMessage `json:"rawResponse"`
}

// qualifiedLineTypes is a business filter, not a correctness check:
// VoIP, premium and unclassified numbers are rejected even when the
// provider reports them as valid.
var qualifiedLineTypes = map[string]bool{
	"mobile":   true,
	"landline": true,
}

// Verify validates a phone number's format and deliverability through
// the lookup provider. Input must be digits only; a leading US country
// code is added when absent.
func (c *Client) Verify(ctx context.Context, digits string) (*Verification, error) {
	ctx, span := tracer.Start(ctx, "phoneverify.verify")
	defer span.End()

	if strings.TrimSpace(c.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	digits = strings.TrimSpace(digits)
	if digits == "" || !isDigits(digits) {
		return nil, ErrInvalidNumber
	}
	if len(digits) == 10 {
		digits = "1" + digits
	}
	span.SetAttributes(attribute.Int("phoneverify.number_length", len(digits)))

	payload, raw, err := c.lookup(ctx, digits)
	if err != nil {
		return nil, err
	}

	lineType := strings.ToLower(strings.TrimSpace(payload.LineType))
	v := &Verification{
		Valid:               payload.Valid,
		LineType:            lineType,
		Carrier:             payload.Carrier,
		InternationalFormat: payload.InternationalFormat,
		LocalFormat:         payload.LocalFormat,
		CountryCode:         payload.CountryCode,
		LeadQualified:       payload.Valid && qualifiedLineTypes[lineType],
		Raw:                 raw,
	}
	span.SetAttributes(
		attribute.Bool("phoneverify.valid", v.Valid),
		attribute.Bool("phoneverify.lead_qualified", v.LeadQualified),
		attribute.String("phoneverify.line_type", v.LineType),
	)

	c.logger.Info("phone verified",
		"valid", v.Valid,
		"line_type", v.LineType,
		"lead_qualified", v.LeadQualified,
	)
	return v, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
