package utils

import (
	"fmt"
	"strconv"
)

// ParseLimit reads an optional positive integer query parameter.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit %q: must be a positive integer", raw)
	}
	return limit, nil
}

func IsValidExportType(exportType string) bool {
	switch exportType {
	case "overview", "pages", "referrers", "devices", "geography":
		return true
	default:
		return false
	}
}

func IsValidExportFormat(format string) bool {
	return format == "csv" || format == "json"
}
