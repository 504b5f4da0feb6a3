// Package parser turns raw model output into stage results.
//
// Model output is not guaranteed to be well-formed: answers arrive wrapped in
// prose, in code fences, or with trailing commas. Parsing is best-effort and
// total; it never returns an error, only a failure result that keeps the raw
// text.
package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

// errNullPayload is returned for a literal null, which decodes without error.
var errNullPayload = errors.New("payload is null")

var (
	// fencedJSONPattern matches the interior of a ```json fenced block.
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// Parser converts raw model text into a stage result.
type Parser interface {
	Parse(raw string) models.StageResult
}

// Lenient is the default two-strategy parser: fenced block first, then the
// span from the first '{' to the last '}'.
type Lenient struct{}

// Parse implements Parser.
func (Lenient) Parse(raw string) models.StageResult {
	return Parse(raw)
}

// Parse extracts a JSON object from raw. On failure the result carries
// reason "parse failed" and raw unmodified.
func Parse(raw string) models.StageResult {
	candidate, ok := extract(raw)
	if !ok {
		return models.Failure(models.ReasonParseFailed, raw)
	}

	payload, err := decodeObject(candidate)
	if err != nil {
		// LLMs commonly leave trailing commas; retry once without them.
		payload, err = decodeObject(trailingCommaPattern.ReplaceAllString(candidate, "$1"))
		if err != nil {
			return models.Failure(models.ReasonParseFailed, raw)
		}
	}
	return models.Success(payload)
}

// extract picks the substring to decode.
func extract(raw string) (string, bool) {
	if m := fencedJSONPattern.FindStringSubmatch(raw); len(m) > 1 {
		return strings.TrimSpace(m[1]), true
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func decodeObject(s string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errNullPayload
	}
	return payload, nil
}
