// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package audit

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSharedKeywords bounds the keyword list stored per record.
const MaxSharedKeywords = 10

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "been": true, "be": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true,
	"this": true, "that": true, "these": true, "those": true, "we": true, "our": true,
	"show": true, "present": true, "study": true, "paper": true, "work": true,
}

func keywordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if utf8.RuneCountInString(w) > 3 && !stopwords[w] {
			set[w] = true
		}
	}
	return set
}

// SharedKeywords returns up to MaxSharedKeywords words longer than three
// characters that occur in both texts, stopwords removed, sorted.
func SharedKeywords(a, b string) []string {
	if a == "" || b == "" {
		return []string{}
	}
	wa, wb := keywordSet(a), keywordSet(b)
	shared := []string{}
	for w := range wa {
		if wb[w] {
			shared = append(shared, w)
		}
	}
	sort.Strings(shared)
	if len(shared) > MaxSharedKeywords {
		shared = shared[:MaxSharedKeywords]
	}
	return shared
}
