package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractedText_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		text *ExtractedText
		want bool
	}{
		{"nil", nil, true},
		{"no pages", &ExtractedText{}, true},
		{"blank pages", &ExtractedText{Pages: []string{"", ""}}, true},
		{"whitespace pages", &ExtractedText{Pages: []string{"  \n", "\f\t"}}, true},
		{"content on second page", &ExtractedText{Pages: []string{"", "hello"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.text.IsEmpty())
		})
	}
}
