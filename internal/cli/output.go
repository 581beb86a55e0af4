package cli

import (
	"encoding/json"
	"io"

	"placeholder-anonymizer/internal/metrics"
	"placeholder-anonymizer/internal/pyjson"
)

// Output is the single-key JSON document printed on stdout.
type Output struct {
	Key  string
	Text string
}

// Write renders o with two-space indentation and ASCII-only escaping,
// followed by a newline.
func (o *Output) Write(w io.Writer) error {
	doc := pyjson.MarshalIndent(pyjson.Object{{Key: o.Key, Value: o.Text}}, "  ")
	_, err := w.Write(append(doc, '\n'))
	return err
}

func writeStats(w io.Writer, snap metrics.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
