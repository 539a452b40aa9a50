package storage

import (
	"fmt"
	"math/rand/v2"
	"path"
	"strings"
	"time"
)

const randAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// UniqueBlobName returns "<user>/<unix-ms>-<rand6>.<ext>". The user directory
// is the sanitized username; the extension comes from the original file name.
func UniqueBlobName(originalName, username string, now time.Time) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(originalName), "."))
	if ext == "" {
		ext = "bin"
	}

	var suffix [6]byte
	for i := range suffix {
		suffix[i] = randAlphabet[rand.IntN(len(randAlphabet))]
	}

	return fmt.Sprintf("%s/%d-%s.%s", SanitizeUsername(username), now.UnixMilli(), suffix[:], ext)
}

// SanitizeUsername lowercases name, replaces anything outside [a-z0-9_-]
// with a dash, collapses dash runs and trims dashes at both ends.
func SanitizeUsername(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
			}
			lastDash = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "anonymous"
	}
	return out
}
