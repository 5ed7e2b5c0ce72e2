package util

import (
	"html"
	"strings"
	"unicode"
)

// NormalizeEmail trims and lowercases an address. It does not validate it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DigitsOnly strips punctuation from a CPF/CNPJ ("123.456.789-01").
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsDocumentID reports whether digits has CPF (11) or CNPJ (14) length.
// Check digits are not verified.
func IsDocumentID(digits string) bool {
	if len(digits) != 11 && len(digits) != 14 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MaskDocument keeps the first three and last two characters.
func MaskDocument(doc string) string {
	doc = DigitsOnly(doc)
	if len(doc) <= 5 {
		return strings.Repeat("*", len(doc))
	}
	return doc[:3] + strings.Repeat("*", len(doc)-5) + doc[len(doc)-2:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return strings.Repeat("*", len(email))
	}
	return email[:1] + "***" + email[at:]
}

// SanitizeInput trims and HTML-escapes free text bound for templates.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimFunc(s, unicode.IsSpace))
}
