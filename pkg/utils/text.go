package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Turn is the minimal view of a message needed for formatting.
type Turn interface {
	Speaker() string
	Text() string
}

// FormatHistory renders turns as "Speaker: text" blocks separated by blank lines.
func FormatHistory[T Turn](turns []T) string {
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		blocks = append(blocks, fmt.Sprintf("%s: %s", t.Speaker(), t.Text()))
	}
	return strings.Join(blocks, "\n\n")
}

// TruncateText shortens text to maxLength runes, ending with "..." when cut.
func TruncateText(text string, maxLength int) string {
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	if maxLength <= 3 {
		return strings.Repeat(".", max(maxLength, 0))
	}
	runes := []rune(text)
	return string(runes[:maxLength-3]) + "..."
}

// EstimateTokens is a rough token count at about four characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// HumanSize formats a byte count as B, KB, MB, GB or TB with two decimals.
func HumanSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f TB", value)
}
