package entity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel markers delimiting the machine-readable block in model output.
const (
	BlockStart = "[[ENTITIES]]"
	BlockEnd   = "[[END_ENTITIES]]"
)

// Parse splits raw model output into the spoken reply and an optional entity
// delta carried between the sentinel markers.
//
// Parse never fails hard on malformed input: when the block is absent or
// cannot be decoded, the spoken text is still returned and entities is nil.
// The returned error is diagnostic only, non-nil when a block was present
// but unusable, and callers log it rather than propagate it.
func Parse(raw string) (spoken string, entities *Record, err error) {
	start := strings.Index(raw, BlockStart)
	if start < 0 {
		return strings.TrimSpace(raw), nil, nil
	}
	spoken = strings.TrimSpace(raw[:start])

	rest := raw[start+len(BlockStart):]
	end := strings.Index(rest, BlockEnd)
	if end < 0 {
		return spoken, nil, fmt.Errorf("entity: block opened but %s marker missing", BlockEnd)
	}
	block := normalizeQuoting(strings.TrimSpace(rest[:end]))
	if block == "" {
		return spoken, nil, nil
	}

	entities, err = decodeBlock(block)
	if err != nil {
		return spoken, nil, fmt.Errorf("entity: decode block: %w", err)
	}
	return spoken, entities, nil
}

// decodeBlock decodes a JSON entity block, accepting both the documented
// {"entities": {...}} envelope and a bare object that omits it.
func decodeBlock(block string) (*Record, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &top); err != nil {
		return nil, err
	}
	payload := json.RawMessage(block)
	if inner, ok := top["entities"]; ok {
		payload = inner
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// normalizeQuoting rewrites single-quoted pseudo-JSON, which some models emit,
// into double-quoted JSON. Apostrophes inside double-quoted strings survive.
func normalizeQuoting(block string) string {
	if strings.Contains(block, `"`) {
		return block
	}
	return strings.ReplaceAll(block, "'", `"`)
}

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is (\w+)`),
		regexp.MustCompile(`(?i)\bi am (\w+)`),
		regexp.MustCompile(`(?i)\bi'm (\w+)`),
	}
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.]+`)
	datePattern  = regexp.MustCompile(`\b(\d{2}-\d{2}-\d{4})\b`)
	timePattern  = regexp.MustCompile(`\b(\d{1,2}:\d{2})\b`)
)

// FromUtterance scans a user utterance for details the model might miss:
// self-introductions, a spoken email address, and meeting date or time in
// DD-MM-YYYY and HH:MM form. It returns nil when nothing matched.
func FromUtterance(text string) *Record {
	var rec Record
	found := false

	for _, p := range namePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			rec.Name = &m[1]
			found = true
			break
		}
	}
	if m := emailPattern.FindString(text); m != "" {
		rec.Email = &m
		found = true
	}
	if m := datePattern.FindStringSubmatch(text); m != nil {
		rec.MeetingDate = &m[1]
		found = true
	}
	if m := timePattern.FindStringSubmatch(text); m != nil {
		rec.MeetingTime = &m[1]
		found = true
	}

	if !found {
		return nil
	}
	return &rec
}
