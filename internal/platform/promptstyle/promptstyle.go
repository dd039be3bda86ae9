package promptstyle

import "strings"

const marker = "REPORTGEN_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to a system prompt. Applying it twice is a no-op.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, marker) {
		return base
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou are a careful research analyst.")
	b.WriteString("\nGround every claim in the supplied documents; do not invent facts, figures or citations.")
	b.WriteString("\nWhen the evidence is thin or missing, say so explicitly.")
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "json":
		b.WriteString("\nReturn a single JSON value that conforms to the schema and contains no extra keys.")
	default:
		b.WriteString("\nWrite in clear, structured prose.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}
