package reportgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name     string
		in       CompletionResult
		wantKind DecodedKind
		field    string
	}{
		{name: "provider structured", in: CompletionResult{Structured: map[string]any{"markdown": "a"}}, wantKind: Structured, field: "a"},
		{name: "bare json", in: CompletionResult{RawText: `{"markdown":"b"}`}, wantKind: Structured, field: "b"},
		{name: "fenced json", in: CompletionResult{RawText: "Here you go:\n```json\n{\"markdown\":\"c\"}\n```"}, wantKind: Structured, field: "c"},
		{name: "unlabeled fence", in: CompletionResult{RawText: "```\n{\"text\":\"d\"}\n```"}, wantKind: Structured, field: "d"},
		{name: "trailing comma", in: CompletionResult{RawText: "```json\n{\"markdown\":\"e\",}\n```"}, wantKind: Structured, field: "e"},
		{name: "embedded object", in: CompletionResult{RawText: `Result: {"markdown":"f"} done`}, wantKind: Structured, field: "f"},
		{name: "plain prose", in: CompletionResult{RawText: "Just an analysis."}, wantKind: Unparseable},
		{name: "empty", in: CompletionResult{RawText: "  "}, wantKind: Unparseable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decode(tc.in)
			require.Equal(t, tc.wantKind, d.Kind)
			assert.Equal(t, tc.in.RawText, d.Raw)
			if tc.field != "" {
				got, ok := d.StringField("markdown", "text")
				require.True(t, ok)
				assert.Equal(t, tc.field, got)
			}
		})
	}
}

func TestDecodeTrailingCommaCleanupKeepsStringContent(t *testing.T) {
	d := Decode(CompletionResult{RawText: "{\"markdown\":\"list [a, ] and {b, } \\\"q, }\\\"\",\"tags\":[\"x\",],}"})
	require.Equal(t, Structured, d.Kind)
	got, ok := d.StringField("markdown")
	require.True(t, ok)
	assert.Equal(t, `list [a, ] and {b, } "q, }"`, got)
	items, ok := d.List("tags")
	require.True(t, ok)
	assert.Equal(t, []any{"x"}, items)
}

func TestStripTrailingCommas(t *testing.T) {
	assert.Equal(t, `{"a":[1,2]}`, stripTrailingCommas(`{"a":[1,2,],}`))
	assert.Equal(t, `{"a":", ]"}`, stripTrailingCommas(`{"a":", ]",}`))
	assert.Equal(t, `["x\\", "y"]`, stripTrailingCommas(`["x\\", "y",]`))
}

func TestDecodedList(t *testing.T) {
	d := Decode(CompletionResult{RawText: `[{"text":"a","focus":"b"}]`})
	items, ok := d.List("variations")
	require.True(t, ok)
	assert.Len(t, items, 1)

	d = Decode(CompletionResult{Structured: map[string]any{"variations": []any{map[string]any{}}}})
	items, ok = d.List("variations")
	require.True(t, ok)
	assert.Len(t, items, 1)

	_, ok = Decode(CompletionResult{Structured: map[string]any{"other": 1}}).List("variations")
	assert.False(t, ok)
	_, ok = Decode(CompletionResult{RawText: "no"}).List("variations")
	assert.False(t, ok)
}

func TestExtractMarkdown(t *testing.T) {
	md, err := ExtractMarkdown(CompletionResult{RawText: "```markdown\n# Title\nBody\n```"})
	require.NoError(t, err)
	assert.Equal(t, "# Title\nBody", md)

	md, err = ExtractMarkdown(CompletionResult{Structured: map[string]any{"text": " # T "}})
	require.NoError(t, err)
	assert.Equal(t, "# T", md)

	_, err = ExtractMarkdown(CompletionResult{RawText: "# Heading without any wrapper"})
	assert.ErrorIs(t, err, ErrSynthesisFormat)

	_, err = ExtractMarkdown(CompletionResult{Structured: map[string]any{"markdown": ""}})
	assert.ErrorIs(t, err, ErrSynthesisFormat)
}
