package detectors

import (
	"strings"

	"github.com/triage-ai/constitutional/internal/engine"
)

// co-occurrence findings are weaker evidence than a direct pattern hit
const cooccurrenceConfidence = 0.6


// enhancedPass flags gendered job titles, gendered-pronoun/profession and
// demographic/trait co-occurrence within a sentence, and exclusionary phrasing.
func (d *BiasDetector) enhancedPass(text string) []engine.BiasScore {
	var out []engine.BiasScore

	if d.types[engine.BiasGender] {
		for _, loc := range genderedTitleRe.FindAllStringIndex(text, -1) {
			out = append(out, engine.BiasScore{
				Type:       engine.BiasGender,
				Severity:   engine.SeverityLow,
				Confidence: patternConfidence(engine.SeverityLow, loc[1]-loc[0]),
				Context:    text[loc[0]:loc[1]],
				Location:   engine.Location{Start: loc[0], End: loc[1]},
			})
		}
	}

	for _, loc := range sentenceSpans(text) {
		start, end := trimSpan(text, loc[0], loc[1])
		if start >= end {
			continue
		}
		sentence := text[start:end]
		span := engine.Location{Start: start, End: end}

		if d.types[engine.BiasGender] && professionRe.MatchString(sentence) && genderPronounRe.MatchString(sentence) {
			out = append(out, engine.BiasScore{
				Type:       engine.BiasGender,
				Severity:   engine.SeverityLow,
				Confidence: cooccurrenceConfidence,
				Context:    sentence,
				Location:   span,
			})
		}

		if !traitAdjectiveRe.MatchString(sentence) {
			continue
		}
		seen := make(map[engine.BiasType]bool)
		for _, dt := range demographicTerms {
			if !d.types[dt.kind] || seen[dt.kind] || !dt.re.MatchString(sentence) {
				continue
			}
			seen[dt.kind] = true
			out = append(out, engine.BiasScore{
				Type:       dt.kind,
				Severity:   engine.SeverityMedium,
				Confidence: patternConfidence(engine.SeverityMedium, end-start),
				Context:    sentence,
				Location:   span,
			})
		}
	}

	for _, p := range exclusionaryPatterns {
		if !d.types[p.kind] {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			out = append(out, engine.BiasScore{
				Type:       p.kind,
				Severity:   p.severity,
				Confidence: patternConfidence(p.severity, loc[1]-loc[0]),
				Context:    text[loc[0]:loc[1]],
				Location:   engine.Location{Start: loc[0], End: loc[1]},
			})
		}
	}
	return out
}

// sentenceSpans splits text after runs of . ! ? and at newlines. A terminator
// followed directly by a word character (an email, a URL, a decimal) does not
// end the sentence.
func sentenceSpans(text string) [][2]int {
	var spans [][2]int
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			if i > start {
				spans = append(spans, [2]int{start, i})
			}
			start = i + 1
			continue
		}
		if !isTerminator(c) {
			continue
		}
		j := i + 1
		for j < len(text) && isTerminator(text[j]) {
			j++
		}
		i = j - 1
		if j < len(text) && isWordByte(text[j]) {
			continue
		}
		spans = append(spans, [2]int{start, j})
		start = j
	}
	if start < len(text) {
		spans = append(spans, [2]int{start, len(text)})
	}
	return spans
}

func isTerminator(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// trimSpan narrows [start, end) to exclude surrounding whitespace.
func trimSpan(text string, start, end int) (int, int) {
	s := text[start:end]
	trimmed := strings.TrimLeft(s, " \t\r")
	start += len(s) - len(trimmed)
	trimmed = strings.TrimRight(trimmed, " \t\r")
	return start, start + len(trimmed)
}
