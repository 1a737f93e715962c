package domain

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatCount renders n with thousands separators, e.g. 12345 -> "12,345".
func FormatCount(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
