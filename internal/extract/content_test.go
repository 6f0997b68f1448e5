package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTextOperators(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single Tj",
			content: `BT /F1 12 Tf (Hello world) Tj ET`,
			want:    "Hello world",
		},
		{
			name:    "TJ array joins fragments",
			content: `[(Rem) -12 (desivir) ] TJ [(for Covid-19)] TJ`,
			want:    "Rem desivir for Covid-19",
		},
		{
			name:    "escaped parentheses",
			content: `(NNT \(95% CI\)) Tj`,
			want:    "NNT (95% CI)",
		},
		{
			name:    "nested parentheses",
			content: `(outer (inner) text) Tj`,
			want:    "outer (inner) text",
		},
		{
			name:    "no text operators",
			content: `q 1 0 0 1 0 0 cm /Im1 Do Q`,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeTextOperators(tt.content))
		})
	}
}
