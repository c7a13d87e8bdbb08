package content

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark/ast"
	gparser "github.com/yuin/goldmark/parser"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lowers a title into a URL- and anchor-safe identifier: diacritics
// are stripped via NFD decomposition, everything outside [a-z0-9] collapses
// to single hyphens.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// slugIDs generates heading anchors with Slugify, suffixing repeats within
// one document so anchors stay unique. Implements goldmark's parser.IDs.
type slugIDs struct {
	used map[string]bool
}

func newSlugIDs() gparser.IDs {
	return &slugIDs{used: make(map[string]bool)}
}

func (s *slugIDs) Generate(value []byte, kind ast.NodeKind) []byte {
	slug := Slugify(string(value))
	if slug == "" {
		slug = "section"
	}
	candidate := slug
	for i := 1; s.used[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d", slug, i)
	}
	s.used[candidate] = true
	return []byte(candidate)
}

func (s *slugIDs) Put(value []byte) {}
