package models

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ValidationError lists the required beacon fields that were missing or
// longer than their column allows.
type ValidationError struct {
	Missing []string
	TooLong []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.TooLong) > 0 {
		parts = append(parts, fmt.Sprintf("fields exceed maximum length: %s", strings.Join(e.TooLong, ", ")))
	}
	return strings.Join(parts, "; ")
}

// requiredField is a beacon value that must be present. A zero maxLen means
// the column is unbounded.
type requiredField struct {
	value  string
	maxLen int
}

func validateFields(fields map[string]requiredField) error {
	var missing, tooLong []string
	for name, f := range fields {
		switch {
		case strings.TrimSpace(f.value) == "":
			missing = append(missing, name)
		case f.maxLen > 0 && utf8.RuneCountInString(f.value) > f.maxLen:
			tooLong = append(tooLong, name)
		}
	}
	if len(missing) == 0 && len(tooLong) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(tooLong)
	return &ValidationError{Missing: missing, TooLong: tooLong}
}

// truncate cuts s to at most n characters. Postgres VARCHAR widths count
// characters, not bytes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
