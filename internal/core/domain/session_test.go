package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexSnapshot_Validate(t *testing.T) {
	entry := IndexEntry{ID: "c1", Content: "hello", Embedding: []float32{1, 0}}

	tests := []struct {
		name    string
		snap    *IndexSnapshot
		wantErr bool
	}{
		{"nil", nil, true},
		{"zero dimensions", &IndexSnapshot{}, true},
		{"valid", &IndexSnapshot{Dimensions: 2, Entries: []IndexEntry{entry}}, false},
		{"empty content", &IndexSnapshot{Dimensions: 2, Entries: []IndexEntry{{ID: "c", Embedding: []float32{1, 0}}}}, true},
		{"wrong dimension", &IndexSnapshot{Dimensions: 3, Entries: []IndexEntry{entry}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIndexCorrupt)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
