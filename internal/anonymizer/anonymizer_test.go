package anonymizer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placeholder-anonymizer/internal/detector"
	"placeholder-anonymizer/internal/logger"
	"placeholder-anonymizer/internal/mapping"
	"placeholder-anonymizer/internal/metrics"
)

// at builds a detection for the n-th (0-based) occurrence of text in raw.
func at(t *testing.T, raw, entityType, text string, n int) detector.Detection {
	t.Helper()
	offset := 0
	for i := 0; ; i++ {
		idx := strings.Index(raw[offset:], text)
		require.GreaterOrEqual(t, idx, 0, "occurrence %d of %q", n, text)
		if i == n {
			start := offset + idx
			return detector.Detection{EntityType: entityType, Text: text, Start: start, End: start + len(text), Score: 0.85}
		}
		offset += idx + len(text)
	}
}

func entries(s *mapping.Store, entityType string) map[string]string {
	out := map[string]string{}
	for _, e := range s.Entries(entityType) {
		out[e.Value] = e.Placeholder
	}
	return out
}

type fixedDetector struct {
	ds  []detector.Detection
	err error
}

func (f fixedDetector) Name() string { return "fixed" }

func (f fixedDetector) Detect(context.Context, string, string) ([]detector.Detection, error) {
	return f.ds, f.err
}

// ─── forward pass ───────────────────────────────────────────────────────────

func TestSubstitute_PersonAndLocation(t *testing.T) {
	raw := "Peter lives in London."
	out, store, err := Substitute(raw, []detector.Detection{
		at(t, raw, "PERSON", "Peter", 0),
		at(t, raw, "LOCATION", "London", 0),
	})
	require.NoError(t, err)

	assert.Equal(t, "<PERSON_0> lives in <LOCATION_0>.", out)
	assert.Equal(t, []string{"PERSON", "LOCATION"}, store.Types())
	assert.Equal(t, map[string]string{"Peter": "<PERSON_0>"}, entries(store, "PERSON"))
	assert.Equal(t, map[string]string{"London": "<LOCATION_0>"}, entries(store, "LOCATION"))
}

func TestSubstitute_SameValueSharesPlaceholder(t *testing.T) {
	raw := "Peter met Heidi. Peter left."
	m := metrics.New("run")
	out, store, err := New(nil, nil, m).Substitute(raw, []detector.Detection{
		at(t, raw, "PERSON", "Peter", 0),
		at(t, raw, "PERSON", "Heidi", 0),
		at(t, raw, "PERSON", "Peter", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, "<PERSON_0> met <PERSON_1>. <PERSON_0> left.", out)
	assert.Equal(t, 2, store.Len())

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.Forward.DetectionsSeen)
	assert.EqualValues(t, 3, snap.Forward.DetectionsApplied)
	assert.EqualValues(t, 2, snap.Forward.Allocations)
	assert.EqualValues(t, 1, snap.Forward.DedupHits)
}

func TestSubstitute_IndicesAreScopedPerType(t *testing.T) {
	raw := "Paris Hilton visited Paris."
	out, store, err := Substitute(raw, []detector.Detection{
		at(t, raw, "PERSON", "Paris Hilton", 0),
		at(t, raw, "LOCATION", "Paris", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, "<PERSON_0> visited <LOCATION_0>.", out)
	ph, ok := store.Lookup("LOCATION", "Paris")
	require.True(t, ok)
	assert.Equal(t, "<LOCATION_0>", ph)
}

func TestSubstitute_OnlyDetectedSpansAreReplaced(t *testing.T) {
	raw := "Jordan flew to Jordan."
	out, _, err := Substitute(raw, []detector.Detection{at(t, raw, "LOCATION", "Jordan", 1)})
	require.NoError(t, err)
	assert.Equal(t, "Jordan flew to <LOCATION_0>.", out)
}

func TestSubstitute_AllocationFollowsDetectionOrder(t *testing.T) {
	raw := "Heidi and Peter"
	out, store, err := Substitute(raw, []detector.Detection{
		at(t, raw, "PERSON", "Peter", 0),
		at(t, raw, "PERSON", "Heidi", 0),
	})
	require.NoError(t, err)

	assert.Equal(t, "<PERSON_1> and <PERSON_0>", out)
	assert.Equal(t, map[string]string{"Peter": "<PERSON_0>", "Heidi": "<PERSON_1>"}, entries(store, "PERSON"))
}

func TestSubstitute_NoDetections(t *testing.T) {
	out, store, err := Substitute("nothing to see", nil)
	require.NoError(t, err)
	assert.Equal(t, "nothing to see", out)
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.Types())
}

func TestSubstitute_ValueThatLooksLikeAPlaceholder(t *testing.T) {
	raw := "token <PERSON_0> here"
	out, store, err := Substitute(raw, []detector.Detection{at(t, raw, "PERSON", "<PERSON_0>", 0)})
	require.NoError(t, err)
	assert.Equal(t, "token <PERSON_0> here", out)
	assert.Equal(t, map[string]string{"<PERSON_0>": "<PERSON_0>"}, entries(store, "PERSON"))
}

func TestSubstitute_SkipsBadSpans(t *testing.T) {
	raw := "Peter Parker lives in London."
	var buf bytes.Buffer
	m := metrics.New("run")
	a := New(nil, logger.New("anonymizer", "warn", &buf), m)

	out, store, err := a.Substitute(raw, []detector.Detection{
		at(t, raw, "PERSON", "Peter Parker", 0),
		at(t, raw, "PERSON", "Parker", 0), // overlaps the first
		{EntityType: "LOCATION", Text: "Londn", Start: 22, End: 27},
		{EntityType: "LOCATION", Text: "x", Start: 100, End: 101},
		at(t, raw, "LOCATION", "London", 0),
	})
	require.NoError(t, err)

	assert.Equal(t, "<PERSON_0> lives in <LOCATION_0>.", out)
	assert.Equal(t, 2, store.Len())
	assert.EqualValues(t, 3, m.Snapshot().Forward.DetectionsSkipped)
	assert.Contains(t, buf.String(), "overlaps an earlier detection")
	assert.Contains(t, buf.String(), "does not match")
	assert.Contains(t, buf.String(), "out of range")
	assert.NotContains(t, buf.String(), "Parker", "detected values must not be logged")
}

func TestSubstitute_EmptyEntityType(t *testing.T) {
	raw := "Peter"
	_, _, err := Substitute(raw, []detector.Detection{at(t, raw, "", "Peter", 0)})
	assert.ErrorIs(t, err, mapping.ErrEmptyEntityType)
}

// ─── reverse pass ───────────────────────────────────────────────────────────

func storeOf(t *testing.T, pairs ...string) *mapping.Store {
	t.Helper()
	s := mapping.NewStore()
	for i := 0; i+1 < len(pairs); i += 2 {
		_, err := s.Allocate(pairs[i], pairs[i+1])
		require.NoError(t, err)
	}
	return s
}

func TestDeanonymize_RestoresEveryOccurrence(t *testing.T) {
	s := storeOf(t, "PERSON", "Peter", "LOCATION", "London")
	out, err := Deanonymize("<PERSON_0> lives in <LOCATION_0>. <PERSON_0> likes it.", s)
	require.NoError(t, err)
	assert.Equal(t, "Peter lives in London. Peter likes it.", out)
}

func TestDeanonymize_EditedText(t *testing.T) {
	s := storeOf(t, "PERSON", "Peter", "PERSON", "Heidi", "LOCATION", "London")
	edited := "Hallo <PERSON_1>! <PERSON_0> wohnt jetzt nicht mehr in <LOCATION_0>, sagt <PERSON_1>."
	out, err := Deanonymize(edited, s)
	require.NoError(t, err)
	assert.Equal(t, "Hallo Heidi! Peter wohnt jetzt nicht mehr in London, sagt Heidi.", out)
}

func TestDeanonymize_UnknownAndMissingPlaceholders(t *testing.T) {
	s := storeOf(t, "PERSON", "Peter", "PERSON", "Heidi", "LOCATION", "London")
	m := metrics.New("run")

	out, err := New(nil, nil, m).Deanonymize("<PERSON_0> and <PERSON_99> and <PERSON_5>", s)
	require.NoError(t, err)
	assert.Equal(t, "Peter and <PERSON_99> and <PERSON_5>", out)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.Reverse.Substituted)
	assert.EqualValues(t, 2, snap.Reverse.Missing)
	assert.EqualValues(t, 2, snap.Reverse.Unknown)
}

func TestDeanonymize_NoRescanOfRestoredValues(t *testing.T) {
	// A restored value that is itself a placeholder must stay as is.
	s := storeOf(t, "PERSON", "<LOCATION_0>", "LOCATION", "London")
	out, err := Deanonymize("<PERSON_0> and <LOCATION_0>", s)
	require.NoError(t, err)
	assert.Equal(t, "<LOCATION_0> and London", out)
}

func TestDeanonymize_LongestPlaceholderWins(t *testing.T) {
	// "<A<B_0>" contains "<B_0>"; the longer token starting first wins.
	s := storeOf(t, "B", "inner", "A<B", "outer")
	out, err := Deanonymize("<A<B_0> <B_0>", s)
	require.NoError(t, err)
	assert.Equal(t, "outer inner", out)
}

func TestDeanonymize_SimilarTypeNames(t *testing.T) {
	s := storeOf(t, "FOO", "a", "FOO_0", "b", "FOO_0", "c")
	out, err := Deanonymize("<FOO_0> <FOO_0_1> <FOO_0_0>", s)
	require.NoError(t, err)
	assert.Equal(t, "a c b", out)
}

func TestDeanonymize_DuplicatePlaceholderInEditedMapping(t *testing.T) {
	doc := `{"entity_mapping": {
		"PERSON": {"Peter": "<PERSON_0>"},
		"NAME": {"Pete": "<PERSON_0>"}
	}}`
	s, err := mapping.Unmarshal([]byte(doc))
	require.NoError(t, err)

	var buf bytes.Buffer
	out, err := New(nil, logger.New("anonymizer", "warn", &buf), nil).Deanonymize("hi <PERSON_0>", s)
	require.NoError(t, err)
	assert.Equal(t, "hi Pete", out)
	assert.Contains(t, buf.String(), "mapped more than once")
}

func TestDeanonymize_EmptyInputs(t *testing.T) {
	out, err := Deanonymize("", storeOf(t, "PERSON", "Peter"))
	require.NoError(t, err)
	assert.Equal(t, "", out)

	out, err = Deanonymize("<PERSON_0>", mapping.NewStore())
	require.NoError(t, err)
	assert.Equal(t, "<PERSON_0>", out)

	_, err = Deanonymize("x", nil)
	assert.ErrorIs(t, err, mapping.ErrNilStore)
}

// ─── full runs ──────────────────────────────────────────────────────────────

func TestAnonymize_RoundTripThroughDocument(t *testing.T) {
	raw := "Zoë Müller <zoe@example.org> called Peter from Zürich; Peter hung up."
	d := fixedDetector{ds: []detector.Detection{
		at(t, raw, "PERSON", "Zoë Müller", 0),
		at(t, raw, "EMAIL_ADDRESS", "zoe@example.org", 0),
		at(t, raw, "PERSON", "Peter", 0),
		at(t, raw, "LOCATION", "Zürich", 0),
		at(t, raw, "PERSON", "Peter", 1),
	}}

	res, err := New(d, nil, nil).Anonymize(context.Background(), raw, "en")
	require.NoError(t, err)
	assert.Equal(t, "<PERSON_0> <<EMAIL_ADDRESS_0>> called <PERSON_1> from <LOCATION_0>; <PERSON_1> hung up.", res.Text)
	assert.Len(t, res.Detections, 5)

	loaded, err := mapping.Unmarshal(mapping.Marshal(res.Mapping))
	require.NoError(t, err)

	back, err := Deanonymize(res.Text, loaded)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestAnonymize_WithRegexDetector(t *testing.T) {
	chain, err := detector.New([]string{"regex"}, detector.Options{}, nil, nil)
	require.NoError(t, err)

	raw := "Mail ops@example.com or call 555-123-4567, again ops@example.com"
	a := New(chain, nil, nil)
	res, err := a.Anonymize(context.Background(), raw, "en")
	require.NoError(t, err)
	assert.Equal(t, "Mail <EMAIL_ADDRESS_0> or call <PHONE_NUMBER_0>, again <EMAIL_ADDRESS_0>", res.Text)

	// Placeholders never look like PII themselves.
	again, err := a.Anonymize(context.Background(), res.Text, "en")
	require.NoError(t, err)
	assert.Empty(t, again.Detections)
	assert.Equal(t, res.Text, again.Text)

	back, err := a.Deanonymize(res.Text, res.Mapping)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestAnonymize_DetectorError(t *testing.T) {
	boom := errors.New("presidio unavailable")
	_, err := New(fixedDetector{err: boom}, nil, nil).Anonymize(context.Background(), "Peter", "en")
	assert.ErrorIs(t, err, boom)
}

func TestAnonymize_NoDetector(t *testing.T) {
	_, err := New(nil, nil, nil).Anonymize(context.Background(), "Peter", "en")
	assert.Error(t, err)
}
