package messaging

import "strings"

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// NormalizeIdentifier canonicalizes a party identifier. Phone-like values
// become E.164; anything else is returned trimmed and unchanged.
func NormalizeIdentifier(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || !phoneLike(value) {
		return value
	}
	return NormalizeE164(value)
}

func phoneLike(value string) bool {
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 7
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
