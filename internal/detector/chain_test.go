package detector

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placeholder-anonymizer/internal/logger"
	"placeholder-anonymizer/internal/metrics"
)

type stubDetector struct {
	name string
	ds   []Detection
	err  error
}

func (s stubDetector) Name() string { return s.name }

func (s stubDetector) Detect(context.Context, string, string) ([]Detection, error) {
	return s.ds, s.err
}

func det(entityType, text string, start int, score float64) Detection {
	return Detection{EntityType: entityType, Text: text, Start: start, End: start + len(text), Score: score}
}

func TestResolve_Overlaps(t *testing.T) {
	// "Peter Parker lives in London"
	in := []Detection{
		det("LOCATION", "London", 22, 0.85),
		det("PERSON", "Peter", 0, 0.85),
		det("PERSON", "Peter Parker", 0, 0.85), // same score, longer wins
		det("ORGANIZATION", "Parker", 6, 0.4),   // overlaps the person
	}
	out := Resolve(in)

	require.Len(t, out, 2)
	assert.Equal(t, "Peter Parker", out[0].Text)
	assert.Equal(t, "London", out[1].Text)
}

func TestResolve_HigherScoreWins(t *testing.T) {
	in := []Detection{
		det("US_ZIP_CODE", "12345", 0, 0.3),
		det("PHONE_NUMBER", "12345 678", 0, 0.7),
	}
	out := Resolve(in)
	require.Len(t, out, 1)
	assert.Equal(t, "PHONE_NUMBER", out[0].EntityType)
}

func TestResolve_TieKeepsFirstListed(t *testing.T) {
	in := []Detection{
		det("A", "same", 4, 0.5),
		det("B", "same", 4, 0.5),
	}
	out := Resolve(in)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].EntityType)
}

func TestResolve_DropsInvalidSpans(t *testing.T) {
	in := []Detection{
		{EntityType: "X", Text: "abc", Start: 0, End: 2},
		{EntityType: "X", Text: "", Start: 1, End: 1},
		{EntityType: "X", Text: "a", Start: -1, End: 0},
	}
	assert.Empty(t, Resolve(in))
}

func TestChain_MergesAndFilters(t *testing.T) {
	primary := stubDetector{name: "one", ds: []Detection{det("EMAIL_ADDRESS", "a@b.io", 10, 1)}}
	secondary := stubDetector{name: "two", ds: []Detection{det("PERSON", "Peter", 0, 0.85), det("DATE_TIME", "today", 20, 0.85)}}

	c := NewChain([]Detector{primary, secondary}, []string{"person", "email_address"}, nil, nil)
	ds, err := c.Detect(context.Background(), "ignored", "en")
	require.NoError(t, err)

	require.Len(t, ds, 2)
	assert.Equal(t, "PERSON", ds[0].EntityType)
	assert.Equal(t, "EMAIL_ADDRESS", ds[1].EntityType)
	assert.Equal(t, []string{"one", "two"}, c.Detectors())
}

func TestChain_PrimaryFailureIsFatal(t *testing.T) {
	boom := errors.New("boom")
	c := NewChain([]Detector{stubDetector{name: "one", err: boom}}, nil, nil, nil)
	_, err := c.Detect(context.Background(), "x", "en")
	assert.ErrorIs(t, err, boom)
}

func TestChain_SecondaryFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New("run")
	c := NewChain([]Detector{
		stubDetector{name: "one", ds: []Detection{det("PERSON", "Peter", 0, 1)}},
		stubDetector{name: "two", err: errors.New("connection refused")},
	}, nil, logger.New("detector", "warn", &buf), m)

	ds, err := c.Detect(context.Background(), "Peter", "en")
	require.NoError(t, err)
	assert.Len(t, ds, 1)
	assert.Contains(t, buf.String(), "two detector failed")
	assert.EqualValues(t, 1, m.Snapshot().DetectorErrors)
	assert.EqualValues(t, 2, m.Snapshot().Latency.DetectMs.Count)
}
