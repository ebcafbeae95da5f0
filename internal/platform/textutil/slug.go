package textutil

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters without a canonical decomposition.
var ligatureFolder = strings.NewReplacer(
	"æ", "ae", "œ", "oe", "ø", "o", "ß", "ss", "đ", "d", "ð", "d", "þ", "th", "ł", "l",
)

const (
	maxSlugLength = 80
	fallbackSlug  = "item"
)

// Slugify folds s to lowercase ASCII words joined by hyphens. "Björk – Début" becomes "bjork-debut".
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range ligatureFolder.Replace(strings.ToLower(folded)) {
		switch {
		case r == '&':
			if b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteString("and")
			pendingHyphen = true
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// apostrophes join words: "don't" becomes "dont"
		default:
			pendingHyphen = true
		}
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		if idx := strings.LastIndexByte(slug, '-'); idx > maxSlugLength/2 {
			slug = slug[:idx]
		}
		slug = strings.Trim(slug, "-")
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// SlugCandidate returns base for attempt 1 and base-N for later attempts.
func SlugCandidate(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt)
}
