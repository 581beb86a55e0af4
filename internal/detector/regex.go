package detector

import (
	"context"
	"regexp"
	"strings"
)

// pattern pairs a compiled regex with its entity type.
type pattern struct {
	re         *regexp.Regexp
	entityType string
	score      float64
	group      int               // submatch holding the sensitive part; 0 = whole match
	trim       string            // trailing characters stripped from the match
	valid      func(string) bool // optional post-match check
}

// Regex detects structured PII with regular expressions.
type Regex struct {
	patterns []pattern
}

// NewRegex compiles the built-in pattern set.
func NewRegex() *Regex {
	specs := []pattern{
		{entityType: "EMAIL_ADDRESS", score: 1.0,
			re: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
		{entityType: "URL", score: 0.6, trim: ".,;:!?)'\"",
			re: regexp.MustCompile(`\bhttps?://[^\s<>"']+`)},
		{entityType: "CREDIT_CARD", score: 1.0, valid: luhn,
			re: regexp.MustCompile(`\b(?:\d{4}[\-\s]?){3}\d{4}\b`)},
		{entityType: "US_SSN", score: 0.85,
			re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{entityType: "PHONE_NUMBER", score: 0.7,
			re: regexp.MustCompile(`(?:\+?1[\-.\s]?)?(?:\(\d{3}\)|\b\d{3})[\-.\s]?\d{3}[\-.\s]?\d{4}\b`)},
		{entityType: "IP_ADDRESS", score: 0.95,
			re: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)},
		{entityType: "API_KEY", score: 0.9, group: 1,
			re: regexp.MustCompile(`(?i)(?:api[_\-]?key|token|secret|bearer)[\s"':=]+([a-zA-Z0-9_\-.]{20,})`)},
		{entityType: "STREET_ADDRESS", score: 0.6,
			re: regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z][a-z]+\s+){1,4}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`)},
		{entityType: "US_ZIP_CODE", score: 0.3,
			re: regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)},
	}
	return &Regex{patterns: specs}
}

// Name implements Detector.
func (r *Regex) Name() string { return "regex" }

// Detect implements Detector. Patterns are language independent. Matches
// from different patterns may overlap; resolve them with Resolve.
func (r *Regex) Detect(_ context.Context, text, _ string) ([]Detection, error) {
	var out []Detection
	for _, p := range r.patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*p.group], loc[2*p.group+1]
			if start < 0 {
				continue
			}
			if p.trim != "" {
				end = start + len(strings.TrimRight(text[start:end], p.trim))
			}
			if end <= start {
				continue
			}
			match := text[start:end]
			if p.valid != nil && !p.valid(match) {
				continue
			}
			out = append(out, Detection{
				EntityType: p.entityType,
				Text:       match,
				Start:      start,
				End:        end,
				Score:      p.score,
				Source:     "regex",
			})
		}
	}
	return out, nil
}

// luhn reports whether the digits in s pass the Luhn checksum.
func luhn(s string) bool {
	sum, n := 0, 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		n++
	}
	return n >= 13 && sum%10 == 0
}
