package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"placeholder-anonymizer/internal/logger"
	"placeholder-anonymizer/internal/metrics"
)

// Chain runs detectors in order and merges their results.
//
// The first detector is primary: its failure fails the whole call. Later
// detectors are best-effort; a failure is logged and the chain continues
// with what it has.
type Chain struct {
	detectors []Detector
	entities  map[string]bool
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewChain returns a Chain over ds. entities, when non-empty, is the set of
// entity types kept.
func NewChain(ds []Detector, entities []string, log *logger.Logger, m *metrics.Metrics) *Chain {
	if log == nil {
		log = logger.Discard()
	}
	c := &Chain{detectors: ds, log: log, metrics: m}
	if len(entities) > 0 {
		c.entities = make(map[string]bool, len(entities))
		for _, e := range entities {
			c.entities[normalizeEntityType(e)] = true
		}
	}
	return c
}

// Name implements Detector.
func (c *Chain) Name() string { return "chain" }

// Detectors returns the names of the chained detectors, in order.
func (c *Chain) Detectors() []string {
	names := make([]string, len(c.detectors))
	for i, d := range c.detectors {
		names[i] = d.Name()
	}
	return names
}

// Detect implements Detector. The result is free of overlaps and ordered
// by start offset.
func (c *Chain) Detect(ctx context.Context, text, language string) ([]Detection, error) {
	var all []Detection
	for i, d := range c.detectors {
		start := time.Now()
		found, err := d.Detect(ctx, text, language)
		c.metrics.RecordDetectLatency(time.Since(start))
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("%s detector: %w", d.Name(), err)
			}
			if c.metrics != nil {
				c.metrics.DetectorErrors.Add(1)
			}
			c.log.Warnf("detect", "%s detector failed, continuing without it: %v", d.Name(), err)
			continue
		}
		c.log.Debugf("detect", "%s detector returned %d detections", d.Name(), len(found))
		for _, det := range found {
			if c.entities != nil && !c.entities[det.EntityType] {
				continue
			}
			all = append(all, det)
		}
	}
	return Resolve(all), nil
}

// Resolve drops overlapping detections. Higher score wins, then the longer
// span, then the detection listed first. Spans that are empty or whose
// text does not match their length are dropped. The result is ordered by
// start offset.
func Resolve(ds []Detection) []Detection {
	cand := make([]int, 0, len(ds))
	for i, d := range ds {
		if d.Start < 0 || d.End <= d.Start || d.End-d.Start != len(d.Text) {
			continue
		}
		cand = append(cand, i)
	}
	sort.SliceStable(cand, func(a, b int) bool {
		x, y := ds[cand[a]], ds[cand[b]]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		return x.End-x.Start > y.End-y.Start
	})

	var kept []Detection
	for _, i := range cand {
		d := ds[i]
		overlaps := false
		for _, k := range kept {
			if d.Start < k.End && k.Start < d.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	sort.Slice(kept, func(a, b int) bool { return kept[a].Start < kept[b].Start })
	return kept
}
