package manifest

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SlugID derives a stable logo ID from an uploaded file name: the
// extension is dropped, the name is NFD-normalized with combining marks
// stripped (so "Café" and "Cafe" collide deliberately), lowercased, and
// every run of non-alphanumerics collapses to a single hyphen.
func SlugID(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))

	decomposed := norm.NFD.String(base)
	var b strings.Builder
	b.Grow(len(decomposed))

	lastHyphen := true // suppress leading hyphen
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark stripped by decomposition
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
