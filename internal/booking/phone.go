package booking

import "strings"

// PhoneVariants expands a subscriber number into every representation it may
// have been stored under: local leading-zero form, bare country-code form and
// plus-prefixed international form. countryCode is the dial code without the
// plus sign, e.g. "94".
func PhoneVariants(phone, countryCode string) []string {
	digits := digitsOf(phone)
	if digits == "" {
		return nil
	}

	// Reduce to the national subscriber number first.
	var national string
	switch {
	case strings.HasPrefix(digits, countryCode) && len(digits) > len(countryCode)+6:
		national = digits[len(countryCode):]
	case strings.HasPrefix(digits, "0"):
		national = digits[1:]
	default:
		national = digits
	}

	// The caller's exact form is kept too, in case it matches none of the
	// canonical three.
	candidates := []string{
		"0" + national,
		countryCode + national,
		"+" + countryCode + national,
		strings.TrimSpace(phone),
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, v := range candidates {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
