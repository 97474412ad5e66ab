// Package collate provides the string ordering used when filtering and
// sorting cached records in memory. Comparisons ignore case and diacritics
// so that in-memory refinement agrees with the case-insensitive collations
// most SQL backends use for text columns.
package collate

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Collator orders and matches strings. Implementations must be safe for
// concurrent use.
type Collator interface {
	// Key returns the folded form two strings share when Equal reports true.
	Key(s string) string
	// Compare returns -1, 0 or +1. Strings that fold to the same key are
	// ordered by their original bytes so sorting stays deterministic.
	Compare(a, b string) int
	// Equal reports whether a and b are the same ignoring case and accents.
	Equal(a, b string) bool
}

// Fold is the default collator: NFD decomposition, combining marks
// stripped, Unicode case folding, then byte order of the result.
var Fold Collator = fold{}

type fold struct{}

var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	},
}

func (fold) Key(s string) string {
	if isASCII(s) {
		return strings.ToLower(s)
	}
	t := foldPool.Get().(transform.Transformer)
	defer foldPool.Put(t)
	t.Reset()
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func (f fold) Compare(a, b string) int {
	if c := strings.Compare(f.Key(a), f.Key(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func (f fold) Equal(a, b string) bool {
	if a == b {
		return true
	}
	return f.Key(a) == f.Key(b)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// Locale returns a collator backed by the Unicode Collation Algorithm with
// the tailoring of tag, ignoring case and diacritics. Unlike Fold it orders
// scripts by the DUCET rather than by code point.
func Locale(tag language.Tag) Collator {
	return &locale{c: collate.New(tag, collate.IgnoreCase, collate.IgnoreDiacritics)}
}

type locale struct {
	mu  sync.Mutex // collate.Collator is not safe for concurrent use
	c   *collate.Collator
	buf collate.Buffer
}

func (l *locale) Key(s string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := string(l.c.KeyFromString(&l.buf, s))
	l.buf.Reset()
	return k
}

func (l *locale) Compare(a, b string) int {
	l.mu.Lock()
	c := l.c.CompareString(a, b)
	l.mu.Unlock()
	if c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func (l *locale) Equal(a, b string) bool {
	if a == b {
		return true
	}
	return l.Key(a) == l.Key(b)
}
