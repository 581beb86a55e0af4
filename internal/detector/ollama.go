package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"placeholder-anonymizer/internal/logger"
)

const maxOllamaResponse = 10 << 20 // 10 MB

// Ollama asks a local Ollama model for the PII strings in a text and
// locates every occurrence of each one.
type Ollama struct {
	url       string
	model     string
	threshold float64
	client    *http.Client
	log       *logger.Logger
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

type ollamaDetection struct {
	Original   string  `json:"original"`
	EntityType string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// NewOllama returns a detector for the Ollama server at endpoint.
// Detections below threshold are dropped.
func NewOllama(endpoint, model string, threshold float64, client *http.Client, log *logger.Logger) *Ollama {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Ollama{
		url:       strings.TrimRight(endpoint, "/") + "/api/generate",
		model:     model,
		threshold: threshold,
		client:    client,
		log:       log,
	}
}

// Name implements Detector.
func (o *Ollama) Name() string { return "ollama" }

// Detect implements Detector.
func (o *Ollama) Detect(ctx context.Context, text, language string) ([]Detection, error) {
	if text == "" {
		return nil, nil
	}
	found, err := o.query(ctx, text, language)
	if err != nil {
		return nil, err
	}

	var out []Detection
	for _, d := range found {
		if d.Confidence < o.threshold || d.Original == "" {
			continue
		}
		entityType := normalizeEntityType(d.EntityType)
		if entityType == "" {
			continue
		}
		n := 0
		for from := 0; ; {
			i := strings.Index(text[from:], d.Original)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(d.Original)
			out = append(out, Detection{
				EntityType: entityType,
				Text:       d.Original,
				Start:      start,
				End:        end,
				Score:      d.Confidence,
				Source:     "ollama",
			})
			n++
			from = end
		}
		if n == 0 {
			o.log.Debugf("ollama_locate", "model reported a %s value not present in the text", entityType)
		}
	}
	return out, nil
}

func (o *Ollama) query(ctx context.Context, text, language string) ([]ollamaDetection, error) {
	prompt := fmt.Sprintf(`Analyze the following %s text for PII (personally identifiable information).
Return ONLY a JSON array of detections. Each item must have:
- "original": the exact text found, copied character for character
- "type": one of: PERSON, LOCATION, ORGANIZATION, NRP, DATE_TIME, EMAIL_ADDRESS, PHONE_NUMBER, US_SSN, CREDIT_CARD, IP_ADDRESS, URL, MEDICAL_LICENSE, IBAN_CODE
- "confidence": float 0.0-1.0

Text to analyze:
%s

Return ONLY the JSON array, no explanation. Example: [{"original":"John Smith","type":"PERSON","confidence":0.95}]`,
		language, text)

	reqBody, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: prompt, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req) // #nosec G704 -- URL from trusted config
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponse))
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("ollama response parse error: %w", err)
	}

	// The model wraps the array in prose often enough that we cut it out.
	raw := strings.TrimSpace(ollamaResp.Response)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in ollama response")
	}

	var detections []ollamaDetection
	if err := json.Unmarshal([]byte(raw[start:end+1]), &detections); err != nil {
		return nil, fmt.Errorf("detection parse error: %w", err)
	}
	return detections, nil
}
