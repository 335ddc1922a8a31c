package tool

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// RequireFields validates multiple required string fields at once.
// keys and values must have the same length.
func RequireFields(kvs ...string) error {
	if len(kvs)%2 != 0 {
		return fmt.Errorf("RequireFields: odd number of arguments")
	}
	for i := 0; i < len(kvs); i += 2 {
		if strings.TrimSpace(kvs[i+1]) == "" {
			return fmt.Errorf("'%s' is required", kvs[i])
		}
	}
	return nil
}

// ValidateEnum checks that value is one of the allowed values.
// An empty value is allowed (treated as "not set").
func ValidateEnum(name, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (want: %s)", name, value, strings.Join(allowed, ", "))
}

// ValidateAll returns the first non-nil error from the given list.
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// slugRegex validates page slugs: lowercase alphanumeric words joined by hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const maxSlugLen = 96

// ValidateSlug checks a page slug. An empty value is allowed.
func ValidateSlug(value string) error {
	if value == "" {
		return nil
	}
	if len(value) > maxSlugLen || !slugRegex.MatchString(value) {
		return fmt.Errorf("invalid slug %q (lowercase letters, digits and hyphens, max %d)", value, maxSlugLen)
	}
	return nil
}

// toCents converts a major-unit amount to integer cents.
func toCents(name string, amount float64) (int64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("'%s' must be a positive amount", name)
	}
	return int64(math.Round(amount * 100)), nil
}

// normalizeCurrency upper-cases an ISO 4217 code, defaulting to USD.
func normalizeCurrency(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return "USD", nil
	}
	if len(c) != 3 {
		return "", fmt.Errorf("invalid currency %q (want a 3-letter code)", c)
	}
	return c, nil
}
