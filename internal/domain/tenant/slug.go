package tenant

import (
	"strconv"
	"strings"
	"time"
)

// MaxSlugLength caps the base slug so a collision suffix still fits.
const MaxSlugLength = 48

// fallbackSlug is used when a name contains no usable characters.
const fallbackSlug = "tenant"

// Slugify lowercases name, collapses every run of non-alphanumeric characters
// into a single "-", trims separators from both ends and caps the length.
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// SlugSuffix derives a short base36 suffix from t for collision retries.
func SlugSuffix(t time.Time) string {
	s := strconv.FormatInt(t.UnixMilli(), 36)
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return s
}

// WithSuffix appends the collision suffix to base.
func WithSuffix(base string, t time.Time) string {
	return base + "-" + SlugSuffix(t)
}
