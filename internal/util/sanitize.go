package util

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"category-tree/internal/model"
)

const maxNameRunes = 200

// SanitizeName strips control and invisible characters from a display name,
// collapses runs of whitespace and truncates to 200 runes.
func SanitizeName(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("name contains null bytes: %w", model.ErrInvalidInput)
	}

	builder := strings.Builder{}
	builder.Grow(len(name))

	for _, char := range norm.NFC.String(name) {
		if unicode.IsControl(char) && !unicode.IsSpace(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := strings.Join(strings.Fields(builder.String()), " ")
	if cleaned == "" {
		return "", fmt.Errorf("name is empty after sanitization: %w", model.ErrInvalidInput)
	}

	// Truncate by runes so multi-byte characters stay whole.
	runes := []rune(cleaned)
	if len(runes) > maxNameRunes {
		runes = runes[:maxNameRunes]
	}
	return string(runes), nil
}

// Slugify derives a path segment from a display name: lower-case ASCII
// letters and digits joined by single hyphens. Accents are folded away.
func Slugify(name string) string {
	builder := strings.Builder{}
	builder.Grow(len(name))

	hyphen := false
	for _, char := range norm.NFD.String(strings.ToLower(name)) {
		switch {
		case unicode.Is(unicode.Mn, char):
			continue
		case char >= 'a' && char <= 'z', char >= '0' && char <= '9':
			if hyphen && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			hyphen = false
			builder.WriteRune(char)
		default:
			hyphen = true
		}
	}

	slug := builder.String()
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters that should be stripped from names.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF': // Zero-Width No-Break Space / BOM
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
