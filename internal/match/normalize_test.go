package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"lowercases", "Attention Is All You Need", "attention is all you need"},
		{"strips punctuation", "BERT: Pre-training of Deep Bidirectional Transformers", "bert pre training of deep bidirectional transformers"},
		{"collapses whitespace", "  deep   learning\t\nreview ", "deep learning review"},
		{"punctuation separates tokens", "Smith, J.", "smith j"},
		{"unicode letters kept", "Schrödinger über alles", "schrödinger über alles"},
		{"digits kept", "GPT-4 technical report (2023)", "gpt 4 technical report 2023"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func TestNormalizeAuthor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain name", "Ashish Vaswani", "ashish vaswani"},
		{"last comma first", "Vaswani, Ashish", "ashish vaswani"},
		{"last comma initial", "Vaswani, A.", "a vaswani"},
		{"trailing comma", "Vaswani,", "vaswani"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAuthor(tt.input))
		})
	}
}

func TestIsAbbreviation(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"Nature", false},
		{"Journal of Machine Learning Research", false},
		{"Proc. Natl. Acad. Sci.", true},
		{"PNAS", true},
		{"NeurIPS", true},
		{"J. Mach. Learn. Res.", true},
		{"nature communications", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAbbreviation(tt.input))
		})
	}
}
