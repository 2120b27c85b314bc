package artifacts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 120

// Letters and digits of any script survive; \w would reduce non-ASCII
// titles to underscores.
var slugUnsafePattern = regexp.MustCompile(`[^\p{L}\p{N}_\s().-]`)

// Slug converts a media title into a filesystem-safe directory name.
// Unicode is NFKC-normalized first so full-width and composed forms
// collapse to their plain equivalents. Returns "" when nothing safe
// remains; callers fall back to the job id.
func Slug(title string) string {
	normalized := strings.TrimSpace(norm.NFKC.String(title))
	if normalized == "" {
		return ""
	}
	sanitized := slugUnsafePattern.ReplaceAllString(normalized, "_")
	sanitized = strings.Join(strings.FieldsFunc(sanitized, unicode.IsSpace), "_")
	sanitized = strings.Trim(sanitized, "._-")
	if sanitized == "" {
		return ""
	}
	if len(sanitized) > maxSlugLength {
		// Cut on rune boundaries; a byte-index slice could split a rune.
		for len(sanitized) > maxSlugLength {
			_, size := utf8.DecodeLastRuneInString(sanitized)
			sanitized = sanitized[:len(sanitized)-size]
		}
		sanitized = strings.Trim(sanitized, "._-")
	}
	return sanitized
}
