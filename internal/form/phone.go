package form

import "strings"

// FormatPhone renders raw input as the display format (XXX) XXX-XXXX,
// producing a partial prefix while fewer than 10 digits are present.
// Idempotent: formatting its own output changes nothing.
func FormatPhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == 10 {
				break
			}
		}
	}

	d := digits.String()
	switch {
	case d == "":
		return ""
	case len(d) <= 3:
		return "(" + d
	case len(d) <= 6:
		return "(" + d[:3] + ") " + d[3:]
	default:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	}
}
