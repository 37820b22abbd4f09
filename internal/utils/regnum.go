package utils

import (
	"fmt"
	"strings"
	"unicode"
)

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatRegistrationNumber renders a 10-digit business registration number as ddd-dd-ddddd.
// Anything else is returned trimmed.
func FormatRegistrationNumber(input string) string {
	digits := DigitsOnly(input)
	if len(digits) == 10 {
		return fmt.Sprintf("%s-%s-%s", digits[:3], digits[3:5], digits[5:])
	}
	return strings.TrimSpace(input)
}

// RegistrationNumberVariants returns the dashed, undashed and raw forms, deduplicated,
// in lookup order.
func RegistrationNumberVariants(input string) []string {
	raw := strings.TrimFunc(input, unicode.IsSpace)
	candidates := []string{FormatRegistrationNumber(raw), DigitsOnly(raw), raw}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
