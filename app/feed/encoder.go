package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes doc as minified JSON when compact is set, otherwise
// indented by two spaces.
func Encode(doc *Document, compact bool) ([]byte, error) {
	if doc == nil {
		return nil, errNoDocument
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}

	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
