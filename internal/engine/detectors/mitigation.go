package detectors

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/triage-ai/constitutional/internal/engine"
)

// DefaultPlaceholder replaces masked bias spans.
const DefaultPlaceholder = "[biased language removed]"

// MitigationStrategy rewrites one biased span.
type MitigationStrategy interface {
	Replace(span string, score engine.BiasScore) string
}

// PlaceholderStrategy masks the whole span with a fixed placeholder.
type PlaceholderStrategy struct {
	Placeholder string
}

func (p PlaceholderStrategy) Replace(string, engine.BiasScore) string {
	if p.Placeholder == "" {
		return DefaultPlaceholder
	}
	return p.Placeholder
}

// NeutralTermStrategy swaps gendered job titles for neutral ones and falls
// back to Fallback for anything else.
type NeutralTermStrategy struct {
	Fallback MitigationStrategy
}

func (n NeutralTermStrategy) Replace(span string, score engine.BiasScore) string {
	rewritten := genderedTitleRe.ReplaceAllStringFunc(span, func(word string) string {
		repl, ok := neutralTerms[strings.ToLower(word)]
		if !ok {
			return word
		}
		return matchCase(word, repl)
	})
	if rewritten != span {
		return rewritten
	}
	if n.Fallback == nil {
		return PlaceholderStrategy{}.Replace(span, score)
	}
	return n.Fallback.Replace(span, score)
}

// matchCase capitalizes repl's first letter when word starts upper-case.
func matchCase(word, repl string) string {
	r, _ := utf8.DecodeRuneInString(word)
	if !unicode.IsUpper(r) {
		return repl
	}
	first, size := utf8.DecodeRuneInString(repl)
	return string(unicode.ToUpper(first)) + repl[size:]
}
