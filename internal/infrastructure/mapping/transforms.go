package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// timestampLayouts are accepted on input; output is always RFC 3339 in UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Text trims and normalizes to NFC so equal names compare equal on both sides
func Text(v string) (string, error) {
	return norm.NFC.String(strings.TrimSpace(v)), nil
}

// Email trims and lower-cases an address
func Email(v string) (string, error) {
	// a Caser is stateful; one per call
	return cases.Lower(language.Und).String(strings.TrimSpace(v)), nil
}

// Timestamp normalizes a timestamp to RFC 3339 UTC, truncated to the second
func Timestamp(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Truncate(time.Second).Format(time.RFC3339), nil
		}
	}
	return "", fmt.Errorf("unrecognized timestamp %q", v)
}

// Bool normalizes a boolean to "true" or "false"
func Bool(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "false", nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return "", fmt.Errorf("not a boolean: %q", v)
	}
	return strconv.FormatBool(b), nil
}

// Minutes normalizes a non-negative whole number of minutes; empty stays empty
func Minutes(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return "", fmt.Errorf("not a minute count: %q", v)
	}
	return strconv.Itoa(n), nil
}

// Enum translates through a lookup table, case-insensitively; empty stays empty
func Enum(table map[string]string) Transform {
	return func(v string) (string, error) {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			return "", nil
		}
		out, ok := table[key]
		if !ok {
			return "", fmt.Errorf("unknown value %q", v)
		}
		return out, nil
	}
}
