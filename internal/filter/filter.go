// Package filter decides whether an inbound message body matches one of the
// configured blocked keywords.
package filter

import (
	"fmt"
	"regexp"
)

// Filter is a compiled keyword set. The zero value matches nothing.
type Filter struct {
	keywords []string
	patterns []*regexp.Regexp
}

// New compiles keywords into case-insensitive literal matchers. Empty
// keywords are invalid configuration and are skipped rather than matching
// every body. Whitespace is literal: " " matches any body with a space.
func New(keywords []string) *Filter {
	f := &Filter{}
	for _, k := range keywords {
		if k == "" {
			continue
		}
		f.keywords = append(f.keywords, k)
		f.patterns = append(f.patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(k)))
	}
	return f
}

// Match returns the first keyword found in body.
func (f *Filter) Match(body string) (string, bool) {
	if f == nil {
		return "", false
	}
	for i, re := range f.patterns {
		if re.MatchString(body) {
			return f.keywords[i], true
		}
	}
	return "", false
}

// Len returns the number of usable keywords.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}

// IsFiltered reports whether any keyword is a case-insensitive substring of body.
func IsFiltered(body string, keywords []string) bool {
	_, ok := New(keywords).Match(body)
	return ok
}

// Validate rejects empty keywords.
func Validate(keywords []string) error {
	for i, k := range keywords {
		if k == "" {
			return fmt.Errorf("keyword %d is empty", i)
		}
	}
	return nil
}
