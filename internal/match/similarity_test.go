package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/citation-resolver/internal/domain"
)

func TestTitle(t *testing.T) {
	t.Run("empty sides score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Title("", "Attention Is All You Need"))
		assert.Equal(t, 0.0, Title("Attention Is All You Need", ""))
	})

	t.Run("case and punctuation insensitive equality", func(t *testing.T) {
		assert.Equal(t, 1.0, Title("Attention Is All You Need", "Attention is All you Need"))
		assert.Equal(t, 1.0, Title("BERT: Pre-training", "BERT Pre-training"))
	})

	t.Run("subtitle addition scores high", func(t *testing.T) {
		score := Title(
			"Attention Is All You Need",
			"Attention Is All You Need: Transformer Architectures",
		)
		assert.Greater(t, score, 0.8)
		assert.Less(t, score, 1.0)
	})

	t.Run("long subtitle still scores high", func(t *testing.T) {
		score := Title(
			"Attention Is All You Need",
			"Attention Is All You Need: Transformer Networks for Sequence Transduction Tasks",
		)
		assert.Greater(t, score, 0.8)
		assert.Less(t, score, 1.0)
	})

	t.Run("reordered tokens are penalized", func(t *testing.T) {
		score := Title("Deep Learning Review", "Review Learning Deep")
		assert.Less(t, score, 1.0)
		assert.Greater(t, score, 0.5)
	})

	t.Run("unrelated titles score low", func(t *testing.T) {
		score := Title(
			"Attention Is All You Need",
			"A Survey of Protein Folding Dynamics",
		)
		assert.Less(t, score, 0.3)
	})
}

func TestAuthors(t *testing.T) {
	t.Run("empty sides score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Authors(nil, []string{"Ashish Vaswani"}))
		assert.Equal(t, 0.0, Authors([]string{"Ashish Vaswani"}, nil))
	})

	t.Run("initial matches full name", func(t *testing.T) {
		assert.Equal(t, 1.0, Authors([]string{"Vaswani, A."}, []string{"Ashish Vaswani"}))
	})

	t.Run("extra authors degrade but do not zero", func(t *testing.T) {
		score := Authors([]string{"Smith, John"}, []string{"John Smith", "Jane Doe"})
		assert.Greater(t, score, 0.5)
		assert.Less(t, score, 1.0)
	})

	t.Run("first author weighted higher", func(t *testing.T) {
		firstMatches := Authors(
			[]string{"Alice Adams", "Bob Brown"},
			[]string{"Alice Adams", "Carol Clark"},
		)
		secondMatches := Authors(
			[]string{"Alice Adams", "Bob Brown"},
			[]string{"Dan Davis", "Bob Brown"},
		)
		assert.Greater(t, firstMatches, secondMatches)
	})
}

func TestYear(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want float64
	}{
		{"exact", 2017, 2017, 1.0},
		{"off by one", 2017, 2018, 0.8},
		{"off by one reversed", 2018, 2017, 0.8},
		{"off by two", 2017, 2019, 0.4},
		{"off by three", 2017, 2020, 0.0},
		{"missing left", 0, 2017, 0.0},
		{"missing right", 2017, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Year(tt.a, tt.b), 1e-9)
		})
	}
}

func TestJournal(t *testing.T) {
	t.Run("equal normalized forms", func(t *testing.T) {
		assert.Equal(t, 1.0, Journal("Nature Communications", "nature communications"))
	})

	t.Run("abbreviation matches expansion", func(t *testing.T) {
		score := Journal(
			"Proc. Natl. Acad. Sci.",
			"Proceedings of the National Academy of Sciences",
		)
		assert.Greater(t, score, 0.3)
	})

	t.Run("distinct journals score below contradiction threshold", func(t *testing.T) {
		assert.Less(t, Journal("Nature", "Science"), 0.3)
	})

	t.Run("empty sides score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Journal("", "Nature"))
	})
}

func TestFuzzyScoreWeights(t *testing.T) {
	overall, scores := FuzzyScore(
		"Attention Is All You Need", "Attention is All you Need",
		[]string{"Vaswani, A."}, []string{"Ashish Vaswani"},
		2017, 2017,
		"", "NeurIPS",
	)

	expected := 0.45*scores.Title + 0.25*scores.Authors + 0.15*scores.Year + 0.15*scores.Journal
	assert.InDelta(t, expected, overall, 1e-9)
	assert.InDelta(t, expected, scores.Overall, 1e-9)

	assert.Greater(t, scores.Title, 0.95)
	assert.Greater(t, overall, 0.5)
}

func TestComponentScoresCombine(t *testing.T) {
	s := domain.ComponentScores{Title: 1.0, Authors: 1.0, Year: 1.0, Journal: 1.0}
	s.Combine()
	assert.InDelta(t, 1.0, s.Overall, 1e-9)
}
