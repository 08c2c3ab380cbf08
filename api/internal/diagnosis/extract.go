package diagnosis

import (
	"encoding/json"
	"strings"

	"repair-assistant/api/internal/apperr"
)

// ExtractJSON is a best-effort extractor for model output that may wrap the
// JSON object in prose or code fences: it takes everything from the first '{'
// to the last '}' and unmarshals it into v. It does not try to repair broken
// JSON; callers fall back on any error.
func ExtractJSON(raw string, v any) error {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return apperr.Parsef("diagnosis.extract", "no JSON found in response")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return apperr.New(apperr.Parse, "diagnosis.extract", err)
	}
	return nil
}
