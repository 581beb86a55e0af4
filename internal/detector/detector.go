// Package detector finds sensitive spans in raw text.
//
// Detection is an external concern for the placeholder engine: it only
// needs, per span, the entity type, the exact matched text and its byte
// offsets. Three sources are provided:
//  1. Regex: structured patterns (email, phone, SSN, card, IP, ...). Always
//     available, no network.
//  2. Presidio: a Presidio analyzer reached over HTTP, for names,
//     locations and the rest of its recognizer set.
//  3. Ollama: a local LLM asked for a JSON list of PII strings.
//
// A Chain runs several sources in order and resolves overlapping spans so
// the engine receives a clean, start-ordered list.
package detector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"placeholder-anonymizer/internal/logger"
	"placeholder-anonymizer/internal/metrics"
)

// ErrUnknownDetector is returned by New for an unrecognised detector name.
var ErrUnknownDetector = errors.New("detector: unknown detector")

// Detection is one sensitive span. Start and End are byte offsets into the
// scanned text and Text == text[Start:End].
type Detection struct {
	EntityType string
	Text       string
	Start      int
	End        int
	Score      float64
	Source     string
}

// Detector scans text written in language and returns its detections.
type Detector interface {
	Name() string
	Detect(ctx context.Context, text, language string) ([]Detection, error)
}

// Options configures the detectors built by New.
type Options struct {
	// Entities restricts results to these entity types; empty keeps all.
	Entities []string

	PresidioEndpoint       string
	PresidioScoreThreshold float64

	OllamaEndpoint string
	OllamaModel    string
	AIConfidence   float64

	// Timeout bounds each HTTP detector call.
	Timeout time.Duration
}

// New builds a Chain from detector names ("regex", "presidio", "ollama").
func New(names []string, opts Options, log *logger.Logger, m *metrics.Metrics) (*Chain, error) {
	if log == nil {
		log = logger.Discard()
	}
	if len(names) == 0 {
		names = []string{"regex"}
	}
	client := &http.Client{Timeout: opts.Timeout}

	var ds []Detector
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "regex":
			ds = append(ds, NewRegex())
		case "presidio":
			ds = append(ds, NewPresidio(opts.PresidioEndpoint, opts.PresidioScoreThreshold, opts.Entities, client))
		case "ollama":
			ds = append(ds, NewOllama(opts.OllamaEndpoint, opts.OllamaModel, opts.AIConfidence, client, log))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownDetector, name)
		}
	}
	return NewChain(ds, opts.Entities, log, m), nil
}

// NormalizeLanguage validates a BCP 47 tag and reduces it to its base
// language, e.g. "en-US" → "en". An empty tag means "en".
func NormalizeLanguage(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "en", nil
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("detector: invalid language %q: %w", tag, err)
	}
	base, _ := t.Base()
	return base.String(), nil
}

// normalizeEntityType upper-cases a free-form label into an entity type
// safe to embed in a placeholder.
func normalizeEntityType(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r == ' ' || r == '-':
			return '_'
		}
		return r
	}, s)
}
