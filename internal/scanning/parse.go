package scanning

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedJSONPattern matches a markdown code block tagged as json and
// captures its interior.
var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ParseContact interprets the raw text of a model response as a
// ContactRecord. It never fails: when the text is not valid JSON, not
// even inside a fenced code block, the whole response is preserved under
// RawText so the caller can still inspect and override it manually.
//
// Field values pass through verbatim; keys absent from the response stay
// empty, and keys outside the record shape are dropped.
func ParseContact(text string) ContactRecord {
	if record, ok := tryParseRecord(text); ok {
		return record
	}

	// Models fence their output as ```json ... ``` often enough, despite
	// the prompt telling them not to.
	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		if record, ok := tryParseRecord(match[1]); ok {
			return record
		}
	}

	return ContactRecord{RawText: text}
}

// tryParseRecord attempts a strict parse of text as a JSON object in the
// record shape. Non-objects and wrong value types are rejected, so shape
// violations degrade to the raw-text fallback rather than producing a
// half-coerced record.
func tryParseRecord(text string) (ContactRecord, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return ContactRecord{}, false
	}

	var record ContactRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return ContactRecord{}, false
	}
	record.RawText = ""
	return record, true
}
