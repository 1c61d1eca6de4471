package hydrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfast/retrieval-router/internal/cache"
	"github.com/lightfast/retrieval-router/internal/storage"
	"github.com/lightfast/retrieval-router/pkg/types"
)

// fakeReader serves documents and chunks from maps and counts batch reads.
type fakeReader struct {
	docs       map[string]*types.Document
	chunks     map[string]*types.Chunk
	docReads   int
	chunkReads int
	fail       bool
}

func (f *fakeReader) GetDocument(_ context.Context, _, id string) (*types.Document, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, types.ErrNotFound
}

func (f *fakeReader) GetDocumentsByID(_ context.Context, _ string, ids []string) (map[string]*types.Document, error) {
	f.docReads++
	if f.fail {
		return nil, errors.New("store down")
	}
	out := make(map[string]*types.Document)
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (f *fakeReader) GetChunk(_ context.Context, _, id string) (*types.Chunk, error) {
	if chunk, ok := f.chunks[id]; ok {
		return chunk, nil
	}
	return nil, types.ErrNotFound
}

func (f *fakeReader) GetChunksByID(_ context.Context, _ string, ids []string) (map[string]*types.Chunk, error) {
	f.chunkReads++
	if f.fail {
		return nil, errors.New("store down")
	}
	out := make(map[string]*types.Chunk)
	for _, id := range ids {
		if chunk, ok := f.chunks[id]; ok {
			out[id] = chunk
		}
	}
	return out, nil
}

func (f *fakeReader) LookupIdentifier(context.Context, string, string) ([]types.ScoredCandidate, error) {
	return nil, nil
}

func (f *fakeReader) SearchChunks(context.Context, string, string, int, *storage.ChunkFilter) ([]storage.TextHit, error) {
	return nil, nil
}

func (f *fakeReader) GetEntity(context.Context, string, string) (*types.Entity, error) {
	return nil, types.ErrNotFound
}

func (f *fakeReader) FindEntitiesByName(context.Context, string, string, int) ([]*types.Entity, error) {
	return nil, nil
}

func (f *fakeReader) EdgesFrom(context.Context, string, types.Ref) ([]*types.Relationship, error) {
	return nil, nil
}

func (f *fakeReader) EdgesTo(context.Context, string, types.Ref) ([]*types.Relationship, error) {
	return nil, nil
}

func (f *fakeReader) ChunksForDocument(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeReader) Close() error { return nil }

func fixtureReader() *fakeReader {
	return &fakeReader{
		docs: map[string]*types.Document{
			"d1": {ID: "d1", WorkspaceID: "ws", Title: "Runbook", Source: "notion", Version: 1},
			"d2": {ID: "d2", WorkspaceID: "ws", Title: "Postmortem", Source: "github", Version: 2},
		},
		chunks: map[string]*types.Chunk{
			"c1": {ID: "c1", DocumentID: "d1", WorkspaceID: "ws", Content: "restart the billing worker"},
			"c2": {ID: "c2", DocumentID: "d2", WorkspaceID: "ws", Content: "root cause was a stale lock"},
		},
	}
}

func candidate(chunkID, docID string) *types.Candidate {
	return &types.Candidate{ChunkID: chunkID, DocumentID: docID, WorkspaceID: "ws", Score: 1.0}
}

func TestHydrate_ResolvesInRankedOrder(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)

	out, degraded, err := svc.Hydrate(context.Background(), "ws", []*types.Candidate{
		candidate("c2", "d2"),
		candidate("c1", "d1"),
	})
	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, out, 2)
	assert.Equal(t, "c2", out[0].Candidate.ChunkID)
	assert.Equal(t, "Postmortem", out[0].Document.Title)
	assert.Equal(t, "c1", out[1].Candidate.ChunkID)
	assert.Contains(t, out[0].Snippet, "stale lock")
}

func TestHydrate_DropsUnresolvedCandidates(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)

	out, degraded, err := svc.Hydrate(context.Background(), "ws", []*types.Candidate{
		candidate("c1", "d1"),
		candidate("c-missing", "d1"),
		candidate("c2", "d-missing"),
	})
	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].Candidate.ChunkID)
}

func TestHydrate_AllUnresolvedIsDegraded(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)

	out, degraded, err := svc.Hydrate(context.Background(), "ws", []*types.Candidate{
		candidate("c-missing", "d-missing"),
	})
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Empty(t, out)
}

func TestHydrate_StoreFailureIsDegradedNotFatal(t *testing.T) {
	reader := fixtureReader()
	reader.fail = true
	svc := New(reader, cache.NewNoopClient(), time.Minute)

	out, degraded, err := svc.Hydrate(context.Background(), "ws", []*types.Candidate{
		candidate("c1", "d1"),
	})
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Empty(t, out)
}

func TestHydrate_DocumentLevelCandidate(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)

	out, _, err := svc.Hydrate(context.Background(), "ws", []*types.Candidate{
		{DocumentID: "d1", WorkspaceID: "ws", Score: 0.4},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Chunk)
	assert.Equal(t, "Runbook", out[0].Document.Title)
}

func TestHydrate_EmptyCandidatesIsNotDegraded(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)

	out, degraded, err := svc.Hydrate(context.Background(), "ws", nil)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Empty(t, out)
}

func TestHydrate_RequiresWorkspace(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)
	_, _, err := svc.Hydrate(context.Background(), "", []*types.Candidate{candidate("c1", "d1")})
	assert.ErrorIs(t, err, types.ErrWorkspaceRequired)
}

func TestHydrate_CacheTransparency(t *testing.T) {
	// The same candidates hydrate identically through a warm cache and
	// through no cache at all; only the store read count differs.
	cands := []*types.Candidate{candidate("c1", "d1"), candidate("c2", "d2")}

	noCacheReader := fixtureReader()
	noCacheSvc := New(noCacheReader, cache.NewNoopClient(), time.Minute)
	baseline, _, err := noCacheSvc.Hydrate(context.Background(), "ws", cands)
	require.NoError(t, err)

	cachedReader := fixtureReader()
	client, err := cache.NewMemoryClient(100)
	require.NoError(t, err)
	cachedSvc := New(cachedReader, client, time.Minute)

	// First pass populates the cache (repopulation is asynchronous).
	_, _, err = cachedSvc.Hydrate(context.Background(), "ws", cands)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		before := cachedReader.docReads + cachedReader.chunkReads
		warm, _, err := cachedSvc.Hydrate(context.Background(), "ws", cands)
		if err != nil || len(warm) != len(baseline) {
			return false
		}
		return cachedReader.docReads+cachedReader.chunkReads == before
	}, time.Second, 10*time.Millisecond, "warm pass should be served from cache")

	warm, _, err := cachedSvc.Hydrate(context.Background(), "ws", cands)
	require.NoError(t, err)
	require.Len(t, warm, len(baseline))
	for i := range baseline {
		assert.Equal(t, baseline[i].Candidate.ChunkID, warm[i].Candidate.ChunkID)
		assert.Equal(t, baseline[i].Document.ID, warm[i].Document.ID)
		assert.Equal(t, baseline[i].Document.Title, warm[i].Document.Title)
		assert.Equal(t, baseline[i].Snippet, warm[i].Snippet)
	}
}

func TestContents_ChunkID(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)

	payload, err := svc.Contents(context.Background(), "ws", "c1")
	require.NoError(t, err)
	require.NotNil(t, payload.Chunk)
	assert.Equal(t, "c1", payload.Chunk.ID)
	assert.Equal(t, "d1", payload.Document.ID)
	assert.Contains(t, payload.Snippet, "billing worker")
}

func TestContents_DocumentID(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)

	payload, err := svc.Contents(context.Background(), "ws", "d2")
	require.NoError(t, err)
	assert.Nil(t, payload.Chunk)
	assert.Equal(t, "d2", payload.Document.ID)
}

func TestContents_UnknownID(t *testing.T) {
	svc := New(fixtureReader(), cache.NewNoopClient(), time.Minute)
	_, err := svc.Contents(context.Background(), "ws", "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSnippet_Truncation(t *testing.T) {
	long := strings.Repeat("а", 500)
	got := Snippet(long)
	assert.Less(t, len([]rune(got)), 500)
	assert.True(t, strings.HasSuffix(got, "…"))

	short := "short content"
	assert.Equal(t, short, Snippet(short))
}

var _ storage.Reader = (*fakeReader)(nil)
