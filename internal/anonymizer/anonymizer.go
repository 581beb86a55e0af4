// Package anonymizer replaces detected sensitive spans with placeholders
// and restores them later.
//
// The forward pass (Substitute) allocates one placeholder per distinct
// (entity type, value) pair in detection order and rewrites the raw text
// using the detector's span offsets. The reverse pass (Deanonymize) works
// on text that may have been edited since: it uses no offsets at all and
// replaces every occurrence of every known placeholder, leaving anything
// else untouched.
package anonymizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coregx/ahocorasick"

	"placeholder-anonymizer/internal/detector"
	"placeholder-anonymizer/internal/logger"
	"placeholder-anonymizer/internal/mapping"
	"placeholder-anonymizer/internal/metrics"
	"placeholder-anonymizer/internal/placeholder"
)

// Anonymizer runs the forward and reverse passes. One Anonymizer serves
// one run; it is not safe for concurrent use.
type Anonymizer struct {
	detector detector.Detector
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// Result is the outcome of Anonymize.
type Result struct {
	Text       string
	Mapping    *mapping.Store
	Detections []detector.Detection
}

// New returns an Anonymizer. d may be nil when only Substitute and
// Deanonymize are used; log and m may be nil.
func New(d detector.Detector, log *logger.Logger, m *metrics.Metrics) *Anonymizer {
	if log == nil {
		log = logger.Discard()
	}
	if m == nil {
		m = metrics.New("")
	}
	return &Anonymizer{detector: d, log: log, metrics: m}
}

// Anonymize detects sensitive spans in text and substitutes them.
func (a *Anonymizer) Anonymize(ctx context.Context, text, language string) (Result, error) {
	if a.detector == nil {
		return Result{}, fmt.Errorf("anonymize: no detector configured")
	}
	ds, err := a.detector.Detect(ctx, text, language)
	if err != nil {
		return Result{}, fmt.Errorf("detect: %w", err)
	}
	out, store, err := a.Substitute(text, ds)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: out, Mapping: store, Detections: ds}, nil
}

// Substitute is the forward pass. It starts from an empty store, allocates
// a placeholder for each detection in the order given, and replaces each
// detected span by its placeholder. Only the detected spans are replaced;
// other occurrences of the same value are left alone.
//
// Detections whose span is out of range, does not match its text, or
// overlaps an earlier detection are skipped and logged.
func (a *Anonymizer) Substitute(raw string, ds []detector.Detection) (string, *mapping.Store, error) {
	start := time.Now()
	defer func() { a.metrics.RecordPassLatency(time.Since(start)) }()

	store := mapping.NewStore()
	a.metrics.DetectionsSeen.Add(int64(len(ds)))

	spans := make([]span, 0, len(ds))

	for i, d := range ds {
		if reason := rejectSpan(raw, d, spans); reason != "" {
			a.metrics.DetectionsSkipped.Add(1)
			a.log.Warnf("substitute_skip", "detection %d (%s, %d-%d): %s", i, d.EntityType, d.Start, d.End, reason)
			continue
		}
		_, seen := store.Lookup(d.EntityType, d.Text)
		token, err := store.Allocate(d.EntityType, d.Text)
		if err != nil {
			return "", nil, fmt.Errorf("detection %d: %w", i, err)
		}
		if seen {
			a.metrics.DedupHits.Add(1)
		} else {
			a.metrics.RecordAllocation(d.EntityType)
		}
		a.metrics.DetectionsApplied.Add(1)
		spans = append(spans, span{start: d.Start, end: d.End, token: token})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	b.Grow(len(raw))
	cursor := 0
	for _, s := range spans {
		b.WriteString(raw[cursor:s.start])
		b.WriteString(s.token)
		cursor = s.end
	}
	b.WriteString(raw[cursor:])

	a.log.Infof("substitute", "%d detections, %d applied, %d placeholders across %d entity types",
		len(ds), len(spans), store.Len(), len(store.Types()))
	return b.String(), store, nil
}

// span is an accepted detection: raw[start:end] becomes token.
type span struct {
	start, end int
	token      string
}

// rejectSpan returns why d cannot be applied to raw, or "" if it can.
func rejectSpan(raw string, d detector.Detection, taken []span) string {
	switch {
	case d.Start < 0 || d.End > len(raw) || d.End <= d.Start:
		return "span out of range"
	case raw[d.Start:d.End] != d.Text:
		return "span does not match detected text"
	}
	for _, t := range taken {
		if d.Start < t.end && t.start < d.End {
			return "overlaps an earlier detection"
		}
	}
	return ""
}

// Deanonymize is the reverse pass. Every occurrence of every placeholder in
// store is replaced by its original value in a single left-to-right scan:
// at each position the longest placeholder wins and substituted values are
// never rescanned, so the result does not depend on mapping order.
// Placeholders missing from text and placeholder-shaped tokens missing
// from store are both left alone.
func (a *Anonymizer) Deanonymize(text string, store *mapping.Store) (string, error) {
	if store == nil {
		return "", mapping.ErrNilStore
	}
	start := time.Now()
	defer func() { a.metrics.RecordPassLatency(time.Since(start)) }()

	table, collisions := store.Reverse()
	for _, c := range collisions {
		a.log.Warnf("deanonymize", "placeholder %s is mapped more than once; the last entry wins", c)
	}
	if _, ok := table[""]; ok {
		a.log.Warn("deanonymize", "ignoring an empty placeholder in the mapping")
		delete(table, "")
	}

	a.countUnknown(text, table)
	if len(table) == 0 || text == "" {
		a.metrics.PlaceholdersMissing.Add(int64(len(table)))
		return text, nil
	}

	tokens := make([]string, 0, len(table))
	for t := range table {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	ac, err := ahocorasick.NewBuilder().AddStrings(tokens).Build()
	if err != nil {
		return "", fmt.Errorf("build placeholder matcher: %w", err)
	}

	matches := ac.FindAllOverlapping([]byte(text))
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})

	hits := make(map[string]int, len(tokens))
	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, m := range matches {
		if m.Start < cursor {
			continue
		}
		token := text[m.Start:m.End]
		original, ok := table[token]
		if !ok {
			continue
		}
		b.WriteString(text[cursor:m.Start])
		b.WriteString(original)
		cursor = m.End
		hits[token]++
	}
	b.WriteString(text[cursor:])

	substituted := 0
	for _, n := range hits {
		substituted += n
	}
	a.metrics.PlaceholdersSubstituted.Add(int64(substituted))
	a.metrics.PlaceholdersMissing.Add(int64(len(table) - len(hits)))
	a.log.Infof("deanonymize", "%d occurrences of %d/%d placeholders restored",
		substituted, len(hits), len(table))
	return b.String(), nil
}

// countUnknown records placeholder-shaped tokens in text that the mapping
// does not know. They stay in the output unchanged.
func (a *Anonymizer) countUnknown(text string, table map[string]string) {
	unknown := 0
	for _, s := range placeholder.Scan(text) {
		if _, ok := table[text[s[0]:s[1]]]; !ok {
			unknown++
		}
	}
	if unknown > 0 {
		a.metrics.UnknownPlaceholders.Add(int64(unknown))
		a.log.Infof("deanonymize", "%d placeholder-shaped tokens are not in the mapping and were kept", unknown)
	}
}

// Substitute runs the forward pass without logging.
func Substitute(raw string, ds []detector.Detection) (string, *mapping.Store, error) {
	return New(nil, nil, nil).Substitute(raw, ds)
}

// Deanonymize runs the reverse pass without logging.
func Deanonymize(text string, store *mapping.Store) (string, error) {
	return New(nil, nil, nil).Deanonymize(text, store)
}
