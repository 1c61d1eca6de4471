package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfast/retrieval-router/pkg/types"
)

// fakeScorer returns canned scores or a canned error.
type fakeScorer struct {
	scores []float64
	err    error
	calls  int
}

func (f *fakeScorer) Score(_ context.Context, _ string, docs []Doc) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	return make([]float64, len(docs)), nil
}

func cand(chunkID string, score float64) *types.Candidate {
	return &types.Candidate{
		ChunkID:    chunkID,
		DocumentID: "d-" + chunkID,
		Score:      score,
		Contributions: []types.Contribution{
			{Source: types.SourceLexical, RawScore: score},
		},
	}
}

func fusedList(n int) ([]*types.Candidate, map[string]string) {
	cands := make([]*types.Candidate, n)
	texts := make(map[string]string, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		cands[i] = cand(id, float64(n-i)/float64(n))
		texts[id] = "content for " + id
	}
	return cands, texts
}

func TestGate_NilScorerIsClosed(t *testing.T) {
	gate := NewGate(nil, Options{MinInput: 0, TopN: 10})
	fused, texts := fusedList(5)

	out, err := gate.Apply(context.Background(), "ws", "query", fused, texts)
	assert.ErrorIs(t, err, ErrGateClosed)
	assert.Equal(t, fused, out)
}

func TestGate_BelowMinInputIsClosed(t *testing.T) {
	scorer := &fakeScorer{}
	gate := NewGate(scorer, Options{MinInput: 20, TopN: 10})
	fused, texts := fusedList(5)

	out, err := gate.Apply(context.Background(), "ws", "query", fused, texts)
	assert.ErrorIs(t, err, ErrGateClosed)
	assert.Equal(t, fused, out)
	assert.Zero(t, scorer.calls, "closed gate never calls the scorer")
}

func TestGate_Admits(t *testing.T) {
	gate := NewGate(&fakeScorer{}, Options{MinInput: 5, TopN: 3})
	assert.False(t, gate.Admits(4), "below MinInput the gate cannot open")
	assert.True(t, gate.Admits(5))
	assert.True(t, gate.Admits(50))

	closed := NewGate(nil, Options{MinInput: 0})
	assert.False(t, closed.Admits(100), "a gate without a scorer never opens")
}

func TestGate_ScorerFailureFallsBackToFusedOrder(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("cross-encoder down")}
	gate := NewGate(scorer, Options{MinInput: 2, TopN: 3})
	fused, texts := fusedList(5)

	out, err := gate.Apply(context.Background(), "ws", "query", fused, texts)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGateClosed)
	require.Len(t, out, len(fused))
	for i := range fused {
		assert.Equal(t, fused[i].ChunkID, out[i].ChunkID, "fallback must be the fused order, position %d", i)
	}
}

func TestGate_RerankReordersShortlist(t *testing.T) {
	// Fused order a,b,c,d,e; cross-encoder inverts the top three.
	scorer := &fakeScorer{scores: []float64{0.1, 0.5, 0.9}}
	gate := NewGate(scorer, Options{MinInput: 2, TopN: 3})
	fused, texts := fusedList(5)

	out, err := gate.Apply(context.Background(), "ws", "query", fused, texts)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, "c", out[0].ChunkID)
	assert.Equal(t, "b", out[1].ChunkID)
	assert.Equal(t, "a", out[2].ChunkID)
	assert.Equal(t, "d", out[3].ChunkID, "tail keeps fused order")
	assert.Equal(t, "e", out[4].ChunkID)

	last := out[0].Contributions[len(out[0].Contributions)-1]
	assert.Equal(t, types.SourceRerank, last.Source)
	assert.Equal(t, 0.9, last.RawScore)
}

func TestGate_RerankDoesNotMutateFusedInput(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.1, 0.5, 0.9}}
	gate := NewGate(scorer, Options{MinInput: 2, TopN: 3})
	fused, texts := fusedList(5)
	originalScore := fused[0].Score
	originalContribs := len(fused[0].Contributions)

	_, err := gate.Apply(context.Background(), "ws", "query", fused, texts)
	require.NoError(t, err)
	assert.Equal(t, originalScore, fused[0].Score)
	assert.Len(t, fused[0].Contributions, originalContribs)
}

func TestGate_FloorDropsLowRelevance(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9, 0.1, 0.8}}
	gate := NewGate(scorer, Options{
		MinInput: 2,
		TopN:     3,
		Floors:   map[string]float64{"ws-strict": 0.5},
	})
	fused, texts := fusedList(3)

	out, err := gate.Apply(context.Background(), "ws-strict", "query", fused, texts)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ChunkID)
	assert.Equal(t, "c", out[1].ChunkID)
}

func TestGate_DefaultFloorApplies(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9, 0.1, 0.8}}
	gate := NewGate(scorer, Options{MinInput: 2, TopN: 3, DefaultFloor: 0.5})
	fused, texts := fusedList(3)

	out, err := gate.Apply(context.Background(), "ws-any", "query", fused, texts)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestGate_MissingTextsCloseGate(t *testing.T) {
	scorer := &fakeScorer{}
	gate := NewGate(scorer, Options{MinInput: 1, TopN: 3})
	fused, _ := fusedList(3)

	out, err := gate.Apply(context.Background(), "ws", "query", fused, nil)
	assert.ErrorIs(t, err, ErrGateClosed)
	assert.Equal(t, fused, out)
	assert.Zero(t, scorer.calls)
}

func TestGate_RateLimitClosesGate(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.5, 0.5, 0.5}}
	gate := NewGate(scorer, Options{MinInput: 1, TopN: 3, RateLimit: 1})
	fused, texts := fusedList(3)

	_, err := gate.Apply(context.Background(), "ws", "query", fused, texts)
	require.NoError(t, err, "first call consumes the burst")

	_, err = gate.Apply(context.Background(), "ws", "query", fused, texts)
	assert.ErrorIs(t, err, ErrGateClosed, "immediate second call is limited")
	assert.Equal(t, 1, scorer.calls)
}
