package enhancer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-resolver/internal/domain"
	"github.com/helixir/citation-resolver/internal/sources"
)

type fakeResolver struct {
	name    string
	stats   sources.Stats
	resolve func(ctx context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error)
}

func (f *fakeResolver) ResolveCitation(ctx context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
	if f.resolve != nil {
		return f.resolve(ctx, c)
	}
	return nil, nil
}

func (f *fakeResolver) Source() string               { return f.name }
func (f *fakeResolver) IsEnabled() bool              { return true }
func (f *fakeResolver) Stats() sources.StatsSnapshot { return f.stats.Snapshot() }

type fakeBatch struct {
	lookup func(ctx context.Context, ids []string) ([]*domain.MatchCandidate, error)
}

func (f *fakeBatch) LookupBatch(ctx context.Context, ids []string) ([]*domain.MatchCandidate, error) {
	return f.lookup(ctx, ids)
}

func testConfig() Config {
	return Config{SourceDelay: -1, GroupDelay: -1}
}

func candidateFor(source string, c *domain.Citation) *domain.MatchCandidate {
	return &domain.MatchCandidate{
		Source:  source,
		Title:   c.Title,
		Authors: []string{"John Smith"},
		Year:    2017,
		Journal: "Nature",
		DOI:     "10.1000/" + source,
	}
}

func TestEnhanceFillsMissingFields(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&fakeResolver{
		name: "crossref",
		resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
			return []*domain.MatchCandidate{candidateFor("crossref", c)}, nil
		},
	})

	e := New(reg, nil, nil, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("Attention Is All You Need")

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))

	assert.Equal(t, []string{"John Smith"}, citation.Authors)
	assert.Equal(t, 2017, citation.Year)
	assert.Equal(t, "Nature", citation.Journal)
	assert.Equal(t, "10.1000/crossref", citation.DOI)

	stats := e.Stats()
	assert.Equal(t, 1, stats.CitationsProcessed)
	assert.Equal(t, 1, stats.CitationsEnhanced)
	assert.Equal(t, 4, stats.FieldsFilled["crossref"])
}

func TestEnhanceMergePriority(t *testing.T) {
	reg := sources.NewRegistry()
	for _, name := range []string{"crossref", "openalex"} {
		source := name
		reg.Register(&fakeResolver{
			name: source,
			resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
				cand := candidateFor(source, c)
				if source == "openalex" {
					cand.Abstract = "only openalex has this"
				}
				return []*domain.MatchCandidate{cand}, nil
			},
		})
	}

	e := New(reg, nil, nil, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("Attention Is All You Need")

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))

	// Crossref outranks openalex for contested fields; openalex still
	// contributes what crossref lacked.
	assert.Equal(t, "10.1000/crossref", citation.DOI)
	assert.Equal(t, "only openalex has this", citation.Abstract)
}

func TestEnhanceNeverOverwrites(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&fakeResolver{
		name: "crossref",
		resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
			return []*domain.MatchCandidate{candidateFor("crossref", c)}, nil
		},
	})

	e := New(reg, nil, nil, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("Attention Is All You Need")
	citation.Year = 2016
	citation.DOI = "10.1000/original"

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))

	assert.Equal(t, 2016, citation.Year)
	assert.Equal(t, "10.1000/original", citation.DOI)
}

func TestEnhanceIsolatesSourceFailures(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&fakeResolver{
		name: "crossref",
		resolve: func(context.Context, *domain.Citation) ([]*domain.MatchCandidate, error) {
			return nil, errors.New("boom")
		},
	})
	reg.Register(&fakeResolver{
		name: "openalex",
		resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
			return []*domain.MatchCandidate{candidateFor("openalex", c)}, nil
		},
	})

	e := New(reg, nil, nil, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("Attention Is All You Need")

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))

	assert.Equal(t, "10.1000/openalex", citation.DOI)
	assert.Equal(t, 1, e.Stats().SourceErrors["crossref"])
}

func TestEnhanceContainsPanics(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&fakeResolver{
		name: "crossref",
		resolve: func(context.Context, *domain.Citation) ([]*domain.MatchCandidate, error) {
			panic("malformed payload")
		},
	})

	e := New(reg, nil, nil, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("some paper")

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))
	assert.Equal(t, 1, e.Stats().SourceErrors["crossref"])
}

func TestEnhanceRejectsContradictoryCandidates(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&fakeResolver{
		name: "crossref",
		resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
			cand := candidateFor("crossref", c)
			cand.Year = 1990
			return []*domain.MatchCandidate{cand}, nil
		},
	})

	e := New(reg, nil, nil, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("Attention Is All You Need")
	citation.Year = 2017

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))

	// The candidate fails the year constraint and contributes nothing.
	assert.Empty(t, citation.DOI)
	assert.Equal(t, 0, e.Stats().CitationsEnhanced)
}

func TestBatchPassMergesValidatedResults(t *testing.T) {
	batch := &fakeBatch{
		lookup: func(_ context.Context, ids []string) ([]*domain.MatchCandidate, error) {
			require.Equal(t, []string{"DOI:10.1000/x"}, ids)
			return []*domain.MatchCandidate{{
				Source:  "semanticscholar",
				Title:   "Attention Is All You Need",
				Authors: []string{"John Smith"},
				Year:    2017,
			}}, nil
		},
	}
	batchID := func(c *domain.Citation) string {
		if c.DOI != "" {
			return "DOI:" + c.DOI
		}
		return ""
	}

	e := New(sources.NewRegistry(), batch, batchID, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("Attention Is All You Need")
	citation.DOI = "10.1000/x"

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))

	assert.Equal(t, 2017, citation.Year)
	assert.Equal(t, []string{"John Smith"}, citation.Authors)
}

func TestBatchPassFailureDegrades(t *testing.T) {
	batch := &fakeBatch{
		lookup: func(context.Context, []string) ([]*domain.MatchCandidate, error) {
			return nil, errors.New("batch endpoint down")
		},
	}
	batchID := func(c *domain.Citation) string { return "DOI:" + c.DOI }

	reg := sources.NewRegistry()
	reg.Register(&fakeResolver{
		name: "crossref",
		resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
			return []*domain.MatchCandidate{candidateFor("crossref", c)}, nil
		},
	})

	e := New(reg, batch, batchID, testConfig(), nil, zerolog.Nop())
	citation := domain.NewCitation("Attention Is All You Need")
	citation.DOI = "10.1000/crossref"

	require.NoError(t, e.Enhance(context.Background(), []*domain.Citation{citation}))

	assert.Equal(t, 2017, citation.Year)
	assert.Equal(t, 1, e.Stats().SourceErrors["semanticscholar"])
}

func TestBatchEnhanceIsolatesBatches(t *testing.T) {
	batch := &fakeBatch{
		lookup: func(_ context.Context, ids []string) ([]*domain.MatchCandidate, error) {
			if ids[0] == "DOI:10.1000/poison" {
				panic("poisoned batch")
			}
			return make([]*domain.MatchCandidate, len(ids)), nil
		},
	}
	batchID := func(c *domain.Citation) string {
		if c.DOI != "" {
			return "DOI:" + c.DOI
		}
		return ""
	}

	reg := sources.NewRegistry()
	reg.Register(&fakeResolver{
		name: "crossref",
		resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
			return []*domain.MatchCandidate{candidateFor("crossref", c)}, nil
		},
	})

	e := New(reg, batch, batchID, testConfig(), nil, zerolog.Nop())

	poisoned := domain.NewCitation("bad batch paper")
	poisoned.DOI = "10.1000/poison"
	healthy := domain.NewCitation("good batch paper")
	healthy.DOI = "10.1000/fine"

	batches := [][]*domain.Citation{{poisoned}, {healthy}}
	require.NoError(t, e.BatchEnhance(context.Background(), batches))

	// The healthy batch still went through the per-source pass.
	assert.Equal(t, 2017, healthy.Year)
}

func TestApplicable(t *testing.T) {
	e := New(sources.NewRegistry(), nil, nil, testConfig(), nil, zerolog.Nop())

	withDOI := domain.NewCitation("t")
	withDOI.DOI = "10.1000/x"
	withArxiv := domain.NewCitation("t")
	withArxiv.BackupID = "arxiv:1706.03762"
	titleOnly := domain.NewCitation("t")
	empty := domain.NewCitation("")

	assert.True(t, e.applicable(withDOI, "opencitations"))
	assert.False(t, e.applicable(titleOnly, "opencitations"))

	assert.True(t, e.applicable(withArxiv, "arxiv"))
	assert.True(t, e.applicable(titleOnly, "arxiv"))
	assert.False(t, e.applicable(withDOI, "arxiv"))

	assert.True(t, e.applicable(titleOnly, "scholarly"))
	assert.False(t, e.applicable(withDOI, "scholarly"))

	assert.True(t, e.applicable(titleOnly, "crossref"))
	assert.True(t, e.applicable(withDOI, "semanticscholar"))
	assert.False(t, e.applicable(empty, "crossref"))
}
