// Package retrieval assembles the context bundle for a generation by
// querying up to four independent sources concurrently: hybrid document
// search, the company knowledge base, external document intelligence,
// and cached project metadata.
//
// A failure in any one source never aborts the others or the overall
// request; the failing source is logged and substituted with an empty
// result.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"bidforge/internal/assembler"
	"bidforge/internal/cache"
	"bidforge/internal/common/logger"
	"bidforge/internal/common/metrics"
	"bidforge/internal/contenthash"
	"bidforge/internal/fanout"
	"bidforge/internal/search"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Method records which combination of sources actually contributed.
type Method string

const (
	MethodHybrid             Method = "hybrid_search"
	MethodHybridIntelligence Method = "hybrid_search+intelligence"
	MethodFallback           Method = "document_fallback"
)

// Bundle is the fully assembled context passed to a generation backend.
// Immutable once built; cached by (projectID, contenthash(instructions)).
type Bundle struct {
	PrimaryContext      string `json:"primaryContext"`
	KnowledgeContext    string `json:"knowledgeContext"`
	IntelligenceContext string `json:"intelligenceContext"`
	MetadataContext     string `json:"metadataContext"`
	CompanyProfile      string `json:"companyProfile"`
	ChunksUsed          int    `json:"chunksUsed"`
	RetrievalMethod     Method `json:"retrievalMethod"`
}

// PromptContext concatenates the non-empty sections in the fixed order
// primary, knowledge base, intelligence, metadata.
func (b *Bundle) PromptContext() string {
	sections := make([]string, 0, 5)
	if b.CompanyProfile != "" {
		sections = append(sections, b.CompanyProfile)
	}
	for _, s := range []string{b.PrimaryContext, b.KnowledgeContext, b.IntelligenceContext, b.MetadataContext} {
		if s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n\n")
}

// --- Collaborator interfaces ---

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type HybridSearcher interface {
	SearchHybrid(ctx context.Context, query string, vector []float64, projectID string, companyID *string, limit int, weights search.Weights) ([]search.Match, error)
}

type KnowledgeSearcher interface {
	SearchKnowledgeBase(ctx context.Context, vector []float64, companyID string, limit int) ([]search.Match, error)
}

// IntelligenceResult mirrors the external document-intelligence
// service response.
type IntelligenceResult struct {
	LocalResults    []search.Match
	ExternalResults []search.Match
	Combined        []search.Match
}

type IntelligenceSearcher interface {
	// HasCollection reports whether the organization has an external
	// collection configured; the source is skipped entirely when not.
	HasCollection(ctx context.Context, companyID string) bool
	Search(ctx context.Context, query, projectID, companyID string) (*IntelligenceResult, error)
}

// Document is one raw project document, used by the degraded-mode
// fallback when hybrid search returns nothing.
type Document struct {
	Filename      string
	Content       string
	Unextractable bool
}

type DocumentLister interface {
	ListDocuments(ctx context.Context, projectID string) ([]Document, error)
}

// ProjectMetadata is the synchronously-readable project record kept in
// the in-process LRU; no network call is made for source (d).
type ProjectMetadata struct {
	Name        string
	Location    string
	Phase       string
	BudgetRange string
	Deadline    string
	Description string
	Drawings    []assembler.DrawingExtraction
}

// Config bounds the fan-out.
type Config struct {
	HybridLimit      int
	KnowledgeLimit   int
	Weights          search.Weights
	FallbackDocLimit int // characters kept per fallback document
	MetadataCacheSize int
}

// Request is one retrieval invocation.
type Request struct {
	ProjectID    string
	CompanyID    *string
	Instructions string
	Profile      assembler.CompanyProfile
	CacheEnabled bool
}

// Fanout coordinates the concurrent retrieval sources.
type Fanout struct {
	embedder     Embedder
	hybrid       HybridSearcher
	knowledge    KnowledgeSearcher
	intelligence IntelligenceSearcher
	documents    DocumentLister
	cache        *cache.Facade
	metadata     *lru.Cache[string, ProjectMetadata]
	cfg          Config
	logger       logger.Logger
}

func NewFanout(
	embedder Embedder,
	hybrid HybridSearcher,
	knowledge KnowledgeSearcher,
	intelligence IntelligenceSearcher,
	documents DocumentLister,
	cacheFacade *cache.Facade,
	cfg Config,
	log logger.Logger,
) (*Fanout, error) {
	size := cfg.MetadataCacheSize
	if size <= 0 {
		size = 1024
	}
	metadataCache, err := lru.New[string, ProjectMetadata](size)
	if err != nil {
		return nil, fmt.Errorf("metadata cache: %w", err)
	}

	return &Fanout{
		embedder:     embedder,
		hybrid:       hybrid,
		knowledge:    knowledge,
		intelligence: intelligence,
		documents:    documents,
		cache:        cacheFacade,
		metadata:     metadataCache,
		cfg:          cfg,
		logger:       log.WithFields(map[string]interface{}{"component": "retrieval"}),
	}, nil
}

// PrimeMetadata stores project metadata for synchronous reads during
// retrieval.
func (f *Fanout) PrimeMetadata(projectID string, meta ProjectMetadata) {
	f.metadata.Add(projectID, meta)
}

// DropMetadata evicts the cached metadata for a project.
func (f *Fanout) DropMetadata(projectID string) {
	f.metadata.Remove(projectID)
}

// BundleCacheKey is the cache key for an assembled bundle.
func BundleCacheKey(projectID, instructions string) string {
	return fmt.Sprintf("context:%s:%s", projectID, contenthash.Sum(instructions))
}

func embeddingCacheKey(instructions string) string {
	return fmt.Sprintf("embedding:%s", contenthash.Sum(instructions))
}

// Retrieve builds the context bundle for a request, consulting the
// bundle cache first when enabled.
func (f *Fanout) Retrieve(ctx context.Context, req Request) (*Bundle, error) {
	if req.CacheEnabled {
		var cached Bundle
		if f.cache.GetJSON(ctx, BundleCacheKey(req.ProjectID, req.Instructions), &cached) {
			f.logger.Debug("context bundle served from cache", map[string]interface{}{
				"projectId": req.ProjectID,
			})
			return &cached, nil
		}
	}

	vector := f.embedInstructions(ctx, req.Instructions)

	hybridMatches, knowledgeMatches, intelMatches := f.gatherSources(ctx, req, vector)

	bundle := &Bundle{
		CompanyProfile:  assembler.FormatCompanyProfile(req.Profile),
		RetrievalMethod: MethodHybrid,
	}

	if len(hybridMatches) > 0 {
		bundle.PrimaryContext = formatMatches("RELEVANT PROJECT DOCUMENTS", hybridMatches, true)
		bundle.ChunksUsed += len(hybridMatches)
	} else {
		fallback, count := f.fallbackDocuments(ctx, req.ProjectID)
		bundle.PrimaryContext = fallback
		bundle.ChunksUsed += count
		bundle.RetrievalMethod = MethodFallback
	}

	if len(knowledgeMatches) > 0 {
		bundle.KnowledgeContext = formatMatches("COMPANY KNOWLEDGE BASE", knowledgeMatches, false)
		bundle.ChunksUsed += len(knowledgeMatches)
	}

	if len(intelMatches) > 0 {
		bundle.IntelligenceContext = formatMatches("DOCUMENT INTELLIGENCE", intelMatches, true)
		bundle.ChunksUsed += len(intelMatches)
		if bundle.RetrievalMethod == MethodHybrid {
			bundle.RetrievalMethod = MethodHybridIntelligence
		}
	}

	if meta, ok := f.metadata.Get(req.ProjectID); ok {
		bundle.MetadataContext = formatMetadata(meta)
	}

	if req.CacheEnabled {
		f.cache.SetJSON(ctx, BundleCacheKey(req.ProjectID, req.Instructions), bundle, cache.ContextTTL)
	}

	return bundle, nil
}

// embedInstructions returns the embedding for the instructions text,
// cached by content hash. A nil vector disables the vector-dependent
// sources and pushes the request toward the document fallback.
func (f *Fanout) embedInstructions(ctx context.Context, instructions string) []float64 {
	key := embeddingCacheKey(instructions)

	var vector []float64
	if f.cache.GetJSON(ctx, key, &vector) && len(vector) > 0 {
		return vector
	}

	vector, err := f.embedder.Embed(ctx, instructions)
	if err != nil {
		metrics.RetrievalSourceFailures.WithLabelValues("embedding").Inc()
		f.logger.Warn("embedding failed, vector search disabled for this request", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	f.cache.SetJSON(ctx, key, vector, cache.EmbeddingTTL)
	return vector
}

// gatherSources runs the three network sources concurrently; each
// failure is captured per branch and substituted with an empty result.
func (f *Fanout) gatherSources(ctx context.Context, req Request, vector []float64) (hybrid, knowledge, intel []search.Match) {
	companyID := ""
	if req.CompanyID != nil {
		companyID = *req.CompanyID
	}

	tasks := []fanout.Task[[]search.Match]{
		{Name: "hybrid", Run: func(ctx context.Context) ([]search.Match, error) {
			if len(vector) == 0 {
				return nil, nil
			}
			return f.hybrid.SearchHybrid(ctx, req.Instructions, vector, req.ProjectID, req.CompanyID, f.cfg.HybridLimit, f.cfg.Weights)
		}},
		{Name: "knowledge", Run: func(ctx context.Context) ([]search.Match, error) {
			// Skipped entirely without an organization id.
			if companyID == "" || len(vector) == 0 {
				return nil, nil
			}
			return f.knowledge.SearchKnowledgeBase(ctx, vector, companyID, f.cfg.KnowledgeLimit)
		}},
		{Name: "intelligence", Run: func(ctx context.Context) ([]search.Match, error) {
			// Skipped when the org has no external collection configured.
			if f.intelligence == nil || companyID == "" || !f.intelligence.HasCollection(ctx, companyID) {
				return nil, nil
			}
			result, err := f.intelligence.Search(ctx, req.Instructions, req.ProjectID, companyID)
			if err != nil {
				return nil, err
			}
			return result.Combined, nil
		}},
	}

	results := fanout.Gather(ctx, tasks)

	settled := make([][]search.Match, len(results))
	for i, res := range results {
		if res.Err != nil {
			metrics.RetrievalSourceFailures.WithLabelValues(res.Name).Inc()
			f.logger.Warn("retrieval source failed, substituting empty result", map[string]interface{}{
				"source":    res.Name,
				"projectId": req.ProjectID,
				"error":     res.Err.Error(),
			})
			continue
		}
		settled[i] = res.Value
	}

	return settled[0], settled[1], settled[2]
}

// fallbackDocuments reads raw content of all documents attached to the
// project when hybrid search yields nothing, truncating each document
// and excluding the unextractable ones.
func (f *Fanout) fallbackDocuments(ctx context.Context, projectID string) (string, int) {
	metrics.RetrievalFallbacks.Inc()
	f.logger.Warn("hybrid search returned no matches, falling back to raw document content", map[string]interface{}{
		"projectId": projectID,
	})

	docs, err := f.documents.ListDocuments(ctx, projectID)
	if err != nil {
		metrics.RetrievalSourceFailures.WithLabelValues("documents").Inc()
		f.logger.Warn("document fallback failed", map[string]interface{}{
			"projectId": projectID,
			"error":     err.Error(),
		})
		return "", 0
	}

	var b strings.Builder
	count := 0
	for _, doc := range docs {
		if doc.Unextractable || doc.Content == "" {
			continue
		}
		content := doc.Content
		if f.cfg.FallbackDocLimit > 0 && len(content) > f.cfg.FallbackDocLimit {
			content = content[:f.cfg.FallbackDocLimit]
		}
		if count == 0 {
			b.WriteString("== PROJECT DOCUMENTS (full content) ==")
		}
		b.WriteString(fmt.Sprintf("\n\n--- %s ---\n%s", doc.Filename, content))
		count++
	}

	if count == 0 {
		return "", 0
	}
	return b.String(), count
}

// formatMatches renders one labeled section. Relevance percentages are
// included where scores apply, normalized against the best match.
func formatMatches(label string, matches []search.Match, withRelevance bool) string {
	if len(matches) == 0 {
		return ""
	}

	maxScore := 0.0
	for _, m := range matches {
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("== %s ==", label))
	for i, m := range matches {
		if withRelevance && maxScore > 0 {
			b.WriteString(fmt.Sprintf("\n\n[Match %d] (relevance: %.0f%%)\n%s", i+1, m.Score/maxScore*100, m.Content))
		} else {
			b.WriteString(fmt.Sprintf("\n\n[Match %d]\n%s", i+1, m.Content))
		}
	}
	return b.String()
}

func formatMetadata(meta ProjectMetadata) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", label, value))
		}
	}
	add("Project", meta.Name)
	add("Location", meta.Location)
	add("Phase", meta.Phase)
	add("Budget Range", meta.BudgetRange)
	add("Deadline", meta.Deadline)
	add("Description", meta.Description)

	if len(lines) == 0 && len(meta.Drawings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("== PROJECT DETAILS ==")
	for _, line := range lines {
		b.WriteString("\n" + line)
	}
	if drawings := assembler.FormatDrawingExtractions(meta.Drawings); drawings != "" {
		b.WriteString("\n\n" + drawings)
	}
	return b.String()
}
