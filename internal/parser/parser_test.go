package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
	}{
		{
			name:    "plain object",
			input:   `{"nieuwe_elementen": []}`,
			wantKey: "nieuwe_elementen",
		},
		{
			name:    "fenced json block with prose around it",
			input:   "Hier is de analyse:\n```json\n{\"artikelen\": [1]}\n```\nVeel succes.",
			wantKey: "artikelen",
		},
		{
			name:    "fenced block wins over earlier braces",
			input:   "Zie {voetnoot}.\n```json\n{\"advies\": \"x\"}\n```",
			wantKey: "advies",
		},
		{
			name:    "object wrapped in prose",
			input:   "Resultaat: {\"samenvatting\": {\"totaal\": 2}} einde",
			wantKey: "samenvatting",
		},
		{
			name:    "trailing commas",
			input:   "{\"items\": [\"a\", \"b\",],}",
			wantKey: "items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.input)
			require.True(t, res.OK(), "expected success, got %+v", res)
			assert.Contains(t, res.Payload, tt.wantKey)
			assert.Empty(t, res.Reason)
		})
	}
}

func TestParseFailureKeepsRawText(t *testing.T) {
	inputs := []string{
		"",
		"geen json hier",
		"} omgekeerd {",
		"{\"open\": ",
		"```json\nnull\n```",
		"```json\n{kapot}\n```",
		`{"error": "Gemini response geblokkeerd", "fallback": true`,
	}

	for _, in := range inputs {
		res := Parse(in)
		assert.False(t, res.OK(), "input %q", in)
		assert.Equal(t, models.ReasonParseFailed, res.Reason)
		assert.Equal(t, in, res.Raw, "raw text must round-trip unmodified")
		assert.Nil(t, res.Payload)
	}
}

func TestLenientImplementsParser(t *testing.T) {
	var p Parser = Lenient{}
	res := p.Parse(`{"a": 1}`)
	require.True(t, res.OK())
	assert.Equal(t, float64(1), res.Payload["a"])
}

func TestValidate(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"artikelen"},
		"properties": map[string]any{
			"artikelen": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					},
				},
			},
		},
	}

	t.Run("valid payload", func(t *testing.T) {
		payload := map[string]any{"artikelen": []any{map[string]any{"confidence": 0.9}}}
		assert.Empty(t, Validate(payload, schema))
	})

	t.Run("missing required key", func(t *testing.T) {
		warnings := Validate(map[string]any{}, schema)
		require.NotEmpty(t, warnings)
	})

	t.Run("out of range confidence", func(t *testing.T) {
		payload := map[string]any{"artikelen": []any{map[string]any{"confidence": 1.7}}}
		warnings := Validate(payload, schema)
		require.NotEmpty(t, warnings)
		assert.Contains(t, warnings[len(warnings)-1], "/artikelen/0/confidence")
	})

	t.Run("nil schema", func(t *testing.T) {
		assert.Nil(t, Validate(map[string]any{"x": 1}, nil))
	})
}
