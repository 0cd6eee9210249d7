package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bidforge/internal/assembler"
	"bidforge/internal/cache"
	"bidforge/internal/common/logger"
	"bidforge/internal/search"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================================
// Test Doubles
// ==========================================

type stubEmbedder struct {
	vector []float64
	err    error
	calls  int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

type stubHybrid struct {
	matches []search.Match
	err     error
	calls   int
}

func (s *stubHybrid) SearchHybrid(ctx context.Context, query string, vector []float64, projectID string, companyID *string, limit int, weights search.Weights) ([]search.Match, error) {
	s.calls++
	return s.matches, s.err
}

type stubKnowledge struct {
	matches []search.Match
	err     error
	calls   int
}

func (s *stubKnowledge) SearchKnowledgeBase(ctx context.Context, vector []float64, companyID string, limit int) ([]search.Match, error) {
	s.calls++
	return s.matches, s.err
}

type stubIntelligence struct {
	hasCollection bool
	result        *IntelligenceResult
	err           error
	calls         int
}

func (s *stubIntelligence) HasCollection(ctx context.Context, companyID string) bool {
	return s.hasCollection
}

func (s *stubIntelligence) Search(ctx context.Context, query, projectID, companyID string) (*IntelligenceResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubDocuments struct {
	docs  []Document
	err   error
	calls int
}

func (s *stubDocuments) ListDocuments(ctx context.Context, projectID string) ([]Document, error) {
	s.calls++
	return s.docs, s.err
}

type fixture struct {
	embedder     *stubEmbedder
	hybrid       *stubHybrid
	knowledge    *stubKnowledge
	intelligence *stubIntelligence
	documents    *stubDocuments
	fanout       *Fanout
}

func newFixture(t *testing.T, cacheFacade *cache.Facade) *fixture {
	t.Helper()

	f := &fixture{
		embedder:     &stubEmbedder{vector: []float64{0.1, 0.2, 0.3}},
		hybrid:       &stubHybrid{},
		knowledge:    &stubKnowledge{},
		intelligence: &stubIntelligence{},
		documents:    &stubDocuments{},
	}

	fo, err := NewFanout(
		f.embedder, f.hybrid, f.knowledge, f.intelligence, f.documents,
		cacheFacade,
		Config{
			HybridLimit:      20,
			KnowledgeLimit:   10,
			Weights:          search.Weights{Vector: 0.7, Text: 0.3},
			FallbackDocLimit: 5000,
		},
		logger.NewTestLogger(t),
	)
	require.NoError(t, err)
	f.fanout = fo
	return f
}

func newCacheFacade(t *testing.T) (*cache.Facade, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(client, logger.NewTestLogger(t)), mr
}

func companyID(id string) *string { return &id }

// ==========================================
// Retrieve
// ==========================================

func TestRetrieveHybridPath(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.hybrid.matches = []search.Match{
		{Content: "foundation plan", Score: 2.0},
		{Content: "electrical rough-in", Score: 1.0},
	}

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		Instructions: "Write a bid for the foundation work",
	})
	require.NoError(t, err)

	assert.Equal(t, MethodHybrid, bundle.RetrievalMethod)
	assert.Equal(t, 2, bundle.ChunksUsed)
	assert.Contains(t, bundle.PrimaryContext, "RELEVANT PROJECT DOCUMENTS")
	assert.Contains(t, bundle.PrimaryContext, "[Match 1] (relevance: 100%)")
	assert.Contains(t, bundle.PrimaryContext, "[Match 2] (relevance: 50%)")
	assert.Contains(t, bundle.PrimaryContext, "foundation plan")
	assert.Zero(t, f.documents.calls)
}

func TestRetrieveKnowledgeBaseRequiresCompany(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}
	f.knowledge.matches = []search.Match{{Content: "past project", Score: 1.0}}

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Empty(t, bundle.KnowledgeContext)
	assert.Zero(t, f.knowledge.calls)

	bundle, err = f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		CompanyID:    companyID("org-1"),
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Contains(t, bundle.KnowledgeContext, "COMPANY KNOWLEDGE BASE")
	assert.Contains(t, bundle.KnowledgeContext, "past project")
	assert.Equal(t, 2, bundle.ChunksUsed)
}

func TestRetrieveIntelligenceContributes(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}
	f.intelligence.hasCollection = true
	f.intelligence.result = &IntelligenceResult{
		Combined: []search.Match{{Content: "external spec sheet", Score: 0.9}},
	}

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		CompanyID:    companyID("org-1"),
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Equal(t, MethodHybridIntelligence, bundle.RetrievalMethod)
	assert.Contains(t, bundle.IntelligenceContext, "DOCUMENT INTELLIGENCE")
	assert.Contains(t, bundle.IntelligenceContext, "external spec sheet")
	assert.Equal(t, 2, bundle.ChunksUsed)
}

func TestRetrieveIntelligenceSkippedWithoutCollection(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}
	f.intelligence.hasCollection = false
	f.intelligence.result = &IntelligenceResult{Combined: []search.Match{{Content: "x"}}}

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		CompanyID:    companyID("org-1"),
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Empty(t, bundle.IntelligenceContext)
	assert.Zero(t, f.intelligence.calls)
	assert.Equal(t, MethodHybrid, bundle.RetrievalMethod)
}

func TestRetrieveSourceFailureIsolated(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}
	f.knowledge.err = errors.New("es timeout")

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		CompanyID:    companyID("org-1"),
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Contains(t, bundle.PrimaryContext, "doc")
	assert.Empty(t, bundle.KnowledgeContext)
	assert.Equal(t, 1, bundle.ChunksUsed)
}

// ==========================================
// Document Fallback
// ==========================================

func TestRetrieveDocumentFallback(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.documents.docs = []Document{
		{Filename: "plans.pdf", Content: strings.Repeat("a", 6000)},
		{Filename: "scan.pdf", Unextractable: true, Content: "garbage"},
		{Filename: "notes.txt", Content: "site access from north gate"},
	}

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		Instructions: "bid",
	})
	require.NoError(t, err)

	assert.Equal(t, MethodFallback, bundle.RetrievalMethod)
	assert.Equal(t, 2, bundle.ChunksUsed)
	assert.Contains(t, bundle.PrimaryContext, "--- plans.pdf ---")
	assert.Contains(t, bundle.PrimaryContext, "--- notes.txt ---")
	assert.NotContains(t, bundle.PrimaryContext, "scan.pdf")
	assert.NotContains(t, bundle.PrimaryContext, strings.Repeat("a", 5001))
	assert.Contains(t, bundle.PrimaryContext, strings.Repeat("a", 5000))
}

func TestRetrieveFallbackWhenEmbeddingFails(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.embedder.err = errors.New("quota exceeded")
	f.documents.docs = []Document{{Filename: "plans.pdf", Content: "plan text"}}

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		CompanyID:    companyID("org-1"),
		Instructions: "bid",
	})
	require.NoError(t, err)

	// With no vector the hybrid and knowledge searches are skipped.
	assert.Zero(t, f.hybrid.calls)
	assert.Zero(t, f.knowledge.calls)
	assert.Equal(t, MethodFallback, bundle.RetrievalMethod)
	assert.Contains(t, bundle.PrimaryContext, "plan text")
}

func TestRetrieveFallbackListFailureYieldsEmptyPrimary(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.documents.err = errors.New("db down")

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, bundle.RetrievalMethod)
	assert.Empty(t, bundle.PrimaryContext)
	assert.Zero(t, bundle.ChunksUsed)
}

// ==========================================
// Caching
// ==========================================

func TestRetrieveEmbeddingCachedByContentHash(t *testing.T) {
	facade, _ := newCacheFacade(t)
	f := newFixture(t, facade)
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}

	_, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		Instructions: "Write the bid",
	})
	require.NoError(t, err)

	// Same text after normalization, different project: embedding reused.
	_, err = f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-2",
		Instructions: "  WRITE   the   bid ",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.embedder.calls)
}

func TestRetrieveBundleCacheRoundTrip(t *testing.T) {
	facade, _ := newCacheFacade(t)
	f := newFixture(t, facade)
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}

	req := Request{ProjectID: "proj-1", Instructions: "bid", CacheEnabled: true}

	first, err := f.fanout.Retrieve(context.Background(), req)
	require.NoError(t, err)

	second, err := f.fanout.Retrieve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.hybrid.calls)
}

func TestRetrieveBundleCacheDisabled(t *testing.T) {
	facade, _ := newCacheFacade(t)
	f := newFixture(t, facade)
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}

	req := Request{ProjectID: "proj-1", Instructions: "bid"}

	_, err := f.fanout.Retrieve(context.Background(), req)
	require.NoError(t, err)
	_, err = f.fanout.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.hybrid.calls)
}

// ==========================================
// Metadata & Sections
// ==========================================

func TestRetrieveIncludesPrimedMetadata(t *testing.T) {
	f := newFixture(t, cache.New(nil, logger.NewTestLogger(t)))
	f.hybrid.matches = []search.Match{{Content: "doc", Score: 1.0}}
	f.fanout.PrimeMetadata("proj-1", ProjectMetadata{
		Name:     "Riverside Tower",
		Location: "Portland, OR",
		Drawings: []assembler.DrawingExtraction{{DrawingID: "SK-200"}},
	})

	bundle, err := f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Contains(t, bundle.MetadataContext, "PROJECT DETAILS")
	assert.Contains(t, bundle.MetadataContext, "Project: Riverside Tower")
	assert.Contains(t, bundle.MetadataContext, "SK-200")

	f.fanout.DropMetadata("proj-1")
	bundle, err = f.fanout.Retrieve(context.Background(), Request{
		ProjectID:    "proj-1",
		Instructions: "bid",
	})
	require.NoError(t, err)
	assert.Empty(t, bundle.MetadataContext)
}

func TestPromptContextSectionOrder(t *testing.T) {
	b := &Bundle{
		PrimaryContext:      "PRIMARY",
		KnowledgeContext:    "KNOWLEDGE",
		IntelligenceContext: "INTEL",
		MetadataContext:     "META",
		CompanyProfile:      "PROFILE",
	}
	joined := b.PromptContext()

	order := []string{"PROFILE", "PRIMARY", "KNOWLEDGE", "INTEL", "META"}
	last := -1
	for _, section := range order {
		idx := strings.Index(joined, section)
		require.GreaterOrEqual(t, idx, 0, section)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestPromptContextSkipsEmptySections(t *testing.T) {
	b := &Bundle{PrimaryContext: "PRIMARY"}
	assert.Equal(t, "PRIMARY", b.PromptContext())
}
