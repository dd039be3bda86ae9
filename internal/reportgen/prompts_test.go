package reportgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedPrompts(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Nil(t, p.Get(PromptSectionAnalysis).Shape)
	require.NotNil(t, p.Get(PromptReportSynthesis).Shape)
	require.NotNil(t, p.Get(PromptAnalysis).Shape)
	assert.Equal(t, "object", p.Get(PromptAnalysis).Shape.Schema["type"])
}

func TestRenderMissingFieldsRenderEmpty(t *testing.T) {
	p := mustPrompts().Get(PromptSectionAnalysis)
	req, err := p.Render(map[string]any{"Title": "Only title"})
	require.NoError(t, err)
	assert.Contains(t, req.Prompt, "Section: Only title")
	assert.NotContains(t, req.Prompt, "Focus areas")
	assert.NotContains(t, req.Prompt, "<no value>")
	assert.NotEmpty(t, req.System)
}

func TestLoadPromptsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	body := `version: 1
prompts:
  section_analysis:
    system: s
    user: "Section {{.Title}}"
  report_synthesis:
    schema_name: report_synthesis
    schema: {type: object}
    system: s
    user: u
  prompt_analysis:
    schema_name: prompt_variations
    schema: {type: object}
    system: s
    user: u
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	p, err := LoadPrompts(path)
	require.NoError(t, err)
	req, err := p.Get(PromptSectionAnalysis).Render(map[string]any{"Title": "X"})
	require.NoError(t, err)
	assert.Equal(t, "Section X", req.Prompt)
}

func TestLoadPromptsRejectsIncompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nprompts:\n  section_analysis:\n    user: u\n"), 0o600))
	_, err := LoadPrompts(path)
	require.Error(t, err)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
