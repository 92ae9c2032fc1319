package validators

import "strings"

const (
	// MaxTitleLen caps catalog titles at the column comfort limit.
	MaxTitleLen = 500
	// MaxLabelLen caps short free-text fields like barcodes and shelf codes.
	MaxLabelLen = 120
)

// SanitizeString trims surrounding whitespace and truncates to maxLen bytes.
// A maxLen of zero disables truncation.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeOptional applies SanitizeString to a nullable field, mapping
// whitespace-only values to nil.
func SanitizeOptional(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	cleaned := SanitizeString(*input, maxLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
