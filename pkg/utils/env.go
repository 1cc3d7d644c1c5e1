package utils

import (
	"os"
	"strings"
)

// ParseWithFallback returns the trimmed value of envName, or fallback when it is unset or blank.
func ParseWithFallback(envName string, fallback string) string {
	if result, ok := os.LookupEnv(envName); ok && strings.TrimSpace(result) != "" {
		return strings.TrimSpace(result)
	}

	return fallback
}
