package helpers

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID produces a fresh random identifier. The storage engine
// uses these as object keys.
func GenerateUUID() string {
	return uuid.New().String()
}

// StripQuotes removes a single level of matching quotes from a string.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
