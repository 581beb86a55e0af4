package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

const maxPresidioResponse = 10 << 20 // 10 MB

// Presidio queries a Presidio analyzer over HTTP.
type Presidio struct {
	baseURL        string
	scoreThreshold float64
	entities       []string
	client         *http.Client
}

type presidioAnalyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	ScoreThreshold float64  `json:"score_threshold"`
	Entities       []string `json:"entities,omitempty"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// NewPresidio returns a detector for the analyzer at baseURL.
func NewPresidio(baseURL string, scoreThreshold float64, entities []string, client *http.Client) *Presidio {
	if client == nil {
		client = http.DefaultClient
	}
	return &Presidio{
		baseURL:        strings.TrimRight(baseURL, "/"),
		scoreThreshold: scoreThreshold,
		entities:       entities,
		client:         client,
	}
}

// Name implements Detector.
func (p *Presidio) Name() string { return "presidio" }

// Detect implements Detector. Presidio reports offsets in Unicode code
// points; they are converted to byte offsets here.
func (p *Presidio) Detect(ctx context.Context, text, language string) ([]Detection, error) {
	if text == "" {
		return nil, nil
	}
	body, err := json.Marshal(presidioAnalyzeRequest{
		Text:           text,
		Language:       language,
		ScoreThreshold: p.scoreThreshold,
		Entities:       p.entities,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create presidio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req) // #nosec G704 -- URL from trusted config
	if err != nil {
		return nil, fmt.Errorf("presidio request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPresidioResponse))
	if err != nil {
		return nil, fmt.Errorf("read presidio response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("presidio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	results, err := decodePresidio(raw)
	if err != nil {
		return nil, err
	}

	offsets := runeOffsets(text)
	out := make([]Detection, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End <= r.Start || r.End >= len(offsets) {
			continue
		}
		start, end := offsets[r.Start], offsets[r.End]
		out = append(out, Detection{
			EntityType: normalizeEntityType(r.EntityType),
			Text:       text[start:end],
			Start:      start,
			End:        end,
			Score:      r.Score,
			Source:     "presidio",
		})
	}
	return out, nil
}

// decodePresidio accepts the analyzer's bare result array as well as an
// {"entities": [...]} envelope used by some sidecars.
func decodePresidio(raw []byte) ([]presidioResult, error) {
	raw = bytes.TrimSpace(raw)
	var results []presidioResult
	if len(raw) > 0 && raw[0] == '{' {
		var env struct {
			Entities []presidioResult `json:"entities"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode presidio response: %w", err)
		}
		return env.Entities, nil
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode presidio response: %w", err)
	}
	return results, nil
}

// runeOffsets maps code point index → byte offset, with one extra entry
// for the end of text.
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
