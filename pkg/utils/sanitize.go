package utils

import (
	"regexp"
	"strings"
)

var unsafePathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\s]+`)

const maxComponentLength = 64

// SanitizeFilename makes a string safe as a single path component. Snapshot
// suffixes and kind names are internal today, but anything that ends up in a
// filename goes through here so a future config-sourced value cannot escape
// the output directory.
func SanitizeFilename(name string) string {
	cleaned := unsafePathChars.ReplaceAllString(name, "_")
	cleaned = strings.Trim(cleaned, "_.")
	if len(cleaned) > maxComponentLength {
		cleaned = strings.Trim(cleaned[:maxComponentLength], "_.")
	}
	if cleaned == "" {
		return "unnamed"
	}
	return cleaned
}
