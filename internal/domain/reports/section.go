package reports

import (
	"encoding/json"
	"strings"
)

// Section is one outline entry.
type Section struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	FocusAreas  []string `json:"focus_areas"`
}

// UnmarshalJSON tolerates a missing or malformed focus_areas value: anything other than
// an array decodes as empty, and non-string array elements are dropped.
func (s *Section) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		FocusAreas  json.RawMessage `json:"focus_areas"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Section{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		FocusAreas:  decodeFocusAreas(raw.FocusAreas),
	}
	return nil
}

func decodeFocusAreas(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// SectionResult holds exactly one of Analysis or Error once the section has concluded.
type SectionResult struct {
	SectionID    string             `json:"section_id"`
	SectionTitle string             `json:"section_title"`
	Analysis     string             `json:"analysis,omitempty"`
	Error        string             `json:"error,omitempty"`
	Documents    []EvidenceDocument `json:"documents"`
}

func (r SectionResult) Failed() bool { return r.Error != "" }

// EvidenceDocument is a hydrated document attached to a section as grounding evidence.
type EvidenceDocument struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	SimilarityScore float64        `json:"similarity_score"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// SectionSearch records the raw search a section performed.
type SectionSearch struct {
	SectionID string      `json:"section_id"`
	Query     string      `json:"query"`
	Hits      []SearchHit `json:"hits"`
	Error     string      `json:"error,omitempty"`
}

type SearchHit struct {
	DocumentRef    string         `json:"document_ref"`
	Excerpt        string         `json:"excerpt"`
	RelevanceScore float64        `json:"relevance_score"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Variation is one rephrasing proposed by the prompt analyzer.
type Variation struct {
	Text  string `json:"text"`
	Focus string `json:"focus"`
}
