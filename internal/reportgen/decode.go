package reportgen

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DecodedKind tags how a completion reply was understood.
type DecodedKind int

const (
	Unparseable DecodedKind = iota
	Structured
)

// Decoded is the shared view of a completion reply. Value is a map[string]any or []any when
// Kind is Structured; Raw always carries the reply text (empty for provider-structured replies).
type Decoded struct {
	Kind  DecodedKind
	Value any
	Raw   string
}

var fencedBlockPattern = regexp.MustCompile("(?s)```([A-Za-z0-9_-]*)[ \t]*\\r?\\n?(.*?)```")

// Decode turns a completion into a tagged value. It tries, in order: the provider's structured
// object, the whole text as JSON, each fenced block as JSON, then the outermost bare object or array.
func Decode(res CompletionResult) Decoded {
	if res.Structured != nil {
		return Decoded{Kind: Structured, Value: res.Structured, Raw: res.RawText}
	}
	raw := res.RawText
	text := strings.TrimSpace(raw)
	if text == "" {
		return Decoded{Kind: Unparseable, Raw: raw}
	}
	if v, ok := parseJSONValue(text); ok {
		return Decoded{Kind: Structured, Value: v, Raw: raw}
	}
	for _, block := range fencedBlocks(text) {
		if v, ok := parseJSONValue(block.body); ok {
			return Decoded{Kind: Structured, Value: v, Raw: raw}
		}
	}
	if candidate := outermostJSON(text); candidate != "" {
		if v, ok := parseJSONValue(candidate); ok {
			return Decoded{Kind: Structured, Value: v, Raw: raw}
		}
	}
	return Decoded{Kind: Unparseable, Raw: raw}
}

// StringField returns the first non-empty string among keys of a structured object.
func (d Decoded) StringField(keys ...string) (string, bool) {
	if d.Kind != Structured {
		return "", false
	}
	obj, ok := d.Value.(map[string]any)
	if !ok {
		return "", false
	}
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// List returns the value as a list, either directly or under one of keys.
func (d Decoded) List(keys ...string) ([]any, bool) {
	if d.Kind != Structured {
		return nil, false
	}
	switch v := d.Value.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, k := range keys {
			if items, ok := v[k].([]any); ok {
				return items, true
			}
		}
	}
	return nil, false
}

type fencedBlock struct {
	lang string
	body string
}

func fencedBlocks(text string) []fencedBlock {
	matches := fencedBlockPattern.FindAllStringSubmatch(text, -1)
	out := make([]fencedBlock, 0, len(matches))
	for _, m := range matches {
		out = append(out, fencedBlock{
			lang: strings.ToLower(strings.TrimSpace(m[1])),
			body: strings.TrimSpace(m[2]),
		})
	}
	return out
}

// fencedMarkdown returns the body of the first ```markdown or ```md block.
func fencedMarkdown(text string) (string, bool) {
	for _, b := range fencedBlocks(text) {
		if (b.lang == "markdown" || b.lang == "md") && b.body != "" {
			return b.body, true
		}
	}
	return "", false
}

func parseJSONValue(text string) (any, bool) {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		cleaned := stripTrailingCommas(text)
		if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
			return nil, false
		}
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

func outermostJSON(text string) string {
	objStart, arrStart := strings.Index(text, "{"), strings.Index(text, "[")
	start, closer := objStart, "}"
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start, closer = arrStart, "]"
	}
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

// stripTrailingCommas drops commas that directly precede a closing } or ], ignoring
// anything inside string literals.
func stripTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && strings.IndexByte(" \t\r\n", text[j]) >= 0 {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
