// Package orchestrator coordinates a full bid generation: project
// lookup, context retrieval, backend dispatch with retry, cost
// metering, and best-effort persistence.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"bidforge/internal/assembler"
	"bidforge/internal/backend"
	"bidforge/internal/cache"
	apperrors "bidforge/internal/common/errors"
	"bidforge/internal/common/logger"
	"bidforge/internal/common/metrics"
	"bidforge/internal/fanout"
	"bidforge/internal/pricing"
	"bidforge/internal/retrieval"
	"bidforge/internal/retry"
	"bidforge/internal/store"
)

// ContextRetriever is the retrieval fan-out surface used here.
type ContextRetriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Bundle, error)
	PrimeMetadata(projectID string, meta retrieval.ProjectMetadata)
	DropMetadata(projectID string)
}

// ProjectLookup is the read slice of the store.
type ProjectLookup interface {
	GetProject(ctx context.Context, projectID string) (*store.Project, error)
	GetCompanyProfile(ctx context.Context, companyID string) (assembler.CompanyProfile, error)
}

// BackendInvoker dispatches generations by backend name.
type BackendInvoker interface {
	Invoke(ctx context.Context, name backend.Name, input backend.GenerationInput) (*backend.GenerationOutcome, backend.Name, error)
	Default() backend.Name
}

// ArtifactPersister stores artifacts and emits usage events.
type ArtifactPersister interface {
	Persist(ctx context.Context, a store.Artifact) (*store.Artifact, error)
}

// Config carries the orchestration knobs.
type Config struct {
	MaxRetries     int
	MaxConcurrency int
	CacheEnabled   bool
	// Models maps each backend to the model identifier recorded on
	// artifacts and usage events.
	Models map[backend.Name]string
}

// Service is the exposed orchestration API.
type Service struct {
	projects  ProjectLookup
	retriever ContextRetriever
	backends  BackendInvoker
	persister ArtifactPersister
	cache     *cache.Facade
	cfg       Config
	logger    logger.Logger

	// newPolicy is swapped in tests to avoid real backoff sleeps.
	newPolicy func(maxAttempts int) retry.Policy
}

func NewService(
	projects ProjectLookup,
	retriever ContextRetriever,
	backends BackendInvoker,
	persister ArtifactPersister,
	cacheFacade *cache.Facade,
	cfg Config,
	log logger.Logger,
) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	return &Service{
		projects:  projects,
		retriever: retriever,
		backends:  backends,
		persister: persister,
		cache:     cacheFacade,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		newPolicy: retry.Default,
	}
}

// GenerateBid runs the single-backend path end to end.
func (s *Service) GenerateBid(ctx context.Context, req GenerationRequest, opts Options) (*BidGenerationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	bundle, companyID, err := s.buildContext(ctx, req, opts)
	if err != nil {
		return nil, err
	}

	opts.progress("generating", "Generating bid document", 60)

	result, err := s.generateOne(ctx, req, opts, req.Backend, bundle)
	if err != nil {
		return nil, err
	}

	opts.progress("persisting", "Saving bid document", 85)
	s.persistResult(ctx, req.ProjectID, companyID, bundle, result)

	opts.progress("done", "Bid document ready", 100)
	return result, nil
}

// GenerateBidComparison generates with several backends over one shared
// context bundle. Backend failures are captured per item; the
// comparison itself only fails on preconditions.
func (s *Service) GenerateBidComparison(ctx context.Context, req GenerationRequest, opts Options) (*ComparisonOutcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Backends) < 2 {
		return nil, apperrors.NewComparisonTooSmallError(len(req.Backends))
	}

	bundle, companyID, err := s.buildContext(ctx, req, opts)
	if err != nil {
		return nil, err
	}

	opts.progress("generating", fmt.Sprintf("Generating with %d backends", len(req.Backends)), 50)

	tasks := make([]fanout.Task[*BidGenerationResult], len(req.Backends))
	for i, name := range req.Backends {
		name := name
		tasks[i] = fanout.Task[*BidGenerationResult]{
			Name: string(name),
			Run: func(ctx context.Context) (*BidGenerationResult, error) {
				return s.generateOne(ctx, req, opts, name, bundle)
			},
		}
	}
	results := fanout.GatherBounded(ctx, s.cfg.MaxConcurrency, tasks)

	opts.progress("persisting", "Saving generated documents", 80)

	outcome := &ComparisonOutcome{
		Items:           make([]ComparisonItem, len(results)),
		ChunksUsed:      bundle.ChunksUsed,
		RetrievalMethod: string(bundle.RetrievalMethod),
	}
	for i, res := range results {
		item := ComparisonItem{Backend: req.Backends[i]}
		if res.Err != nil {
			item.Err = res.Err.Error()
			s.logger.Warn("comparison backend failed", map[string]interface{}{
				"backend":   res.Name,
				"projectId": req.ProjectID,
				"error":     res.Err.Error(),
			})
		} else {
			item.Result = res.Value
			item.Succeeded = true
			// Persistence stays sequential: artifact versions must come
			// out in a stable order.
			s.persistResult(ctx, req.ProjectID, companyID, bundle, item.Result)
		}
		outcome.Items[i] = item
	}

	opts.progress("done", "Comparison ready", 100)
	return outcome, nil
}

// InvalidateProjectCache drops every cached context bundle and the
// in-process metadata for a project.
func (s *Service) InvalidateProjectCache(ctx context.Context, projectID string) {
	s.cache.InvalidatePattern(ctx, fmt.Sprintf("context:%s:*", projectID))
	s.retriever.DropMetadata(projectID)
}

// buildContext loads the project, primes metadata, and assembles the
// context bundle. PROJECT_NOT_FOUND is raised here, before any
// retrieval or generation work.
func (s *Service) buildContext(ctx context.Context, req GenerationRequest, opts Options) (*retrieval.Bundle, *string, error) {
	opts.progress("retrieving", "Loading project", 10)

	project, err := s.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	s.retriever.PrimeMetadata(project.ID, retrieval.ProjectMetadata{
		Name:        project.Name,
		Location:    project.Location,
		Phase:       project.Phase,
		BudgetRange: project.BudgetRange,
		Deadline:    project.Deadline,
		Description: project.Description,
		Drawings:    project.Drawings(),
	})

	companyID := req.CompanyID
	if companyID == nil {
		companyID = project.CompanyID
	}

	var profile assembler.CompanyProfile
	if companyID != nil {
		profile, err = s.projects.GetCompanyProfile(ctx, *companyID)
		if err != nil {
			// The profile header is additive context; proceed without it.
			s.logger.Warn("company profile unavailable", map[string]interface{}{
				"companyId": *companyID,
				"error":     err.Error(),
			})
			profile = assembler.CompanyProfile{}
		}
	}

	opts.progress("assembling", "Retrieving project context", 30)

	bundle, err := s.retriever.Retrieve(ctx, retrieval.Request{
		ProjectID:    req.ProjectID,
		CompanyID:    companyID,
		Instructions: req.Instructions,
		Profile:      profile,
		CacheEnabled: s.cfg.CacheEnabled && !opts.DisableCache,
	})
	if err != nil {
		return nil, nil, err
	}
	return bundle, companyID, nil
}

// generateOne invokes a single backend under the retry policy and
// meters its cost. Exhaustion surfaces as a fatal BACKEND_EXHAUSTED
// error carrying the last backend failure.
func (s *Service) generateOne(ctx context.Context, req GenerationRequest, opts Options, name backend.Name, bundle *retrieval.Bundle) (*BidGenerationResult, error) {
	attempts := s.cfg.MaxRetries
	if opts.MaxRetries > 0 {
		attempts = opts.MaxRetries
	}

	input := backend.GenerationInput{
		Instructions: req.Instructions,
		Context:      bundle.PromptContext(),
		Tone:         req.Tone,
	}

	start := time.Now()
	var (
		outcome  *backend.GenerationOutcome
		resolved backend.Name
	)
	err := s.newPolicy(attempts).Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		outcome, resolved, attemptErr = s.backends.Invoke(ctx, name, input)
		if attemptErr != nil {
			s.logger.Warn("generation attempt failed", map[string]interface{}{
				"backend":   string(resolved),
				"projectId": req.ProjectID,
				"error":     attemptErr.Error(),
			})
		}
		return attemptErr
	})
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationsFailed.WithLabelValues(string(resolved), string(apperrors.ErrCodeBackendExhausted)).Inc()
		return nil, apperrors.NewBackendExhaustedError(string(resolved), attempts, err)
	}

	metrics.GenerationsCompleted.WithLabelValues(string(resolved)).Inc()
	metrics.GenerationDuration.WithLabelValues(string(resolved)).Observe(duration.Seconds())

	return &BidGenerationResult{
		Content:         outcome.Content,
		HTMLContent:     renderHTML(outcome.Content),
		Backend:         resolved,
		Model:           s.cfg.Models[resolved],
		InputTokens:     outcome.InputTokens,
		OutputTokens:    outcome.OutputTokens,
		CostUSD:         pricing.Cost(string(resolved), outcome.InputTokens, outcome.OutputTokens),
		ChunksUsed:      bundle.ChunksUsed,
		RetrievalMethod: string(bundle.RetrievalMethod),
		DurationSeconds: duration.Seconds(),
	}, nil
}

// persistResult stores the artifact best-effort and records the outcome
// on the result. A persistence failure never discards the content.
func (s *Service) persistResult(ctx context.Context, projectID string, companyID *string, bundle *retrieval.Bundle, result *BidGenerationResult) {
	stored, err := s.persister.Persist(ctx, store.Artifact{
		ProjectID:       projectID,
		CompanyID:       companyID,
		RawContent:      result.Content,
		HTMLContent:     result.HTMLContent,
		Backend:         string(result.Backend),
		Model:           result.Model,
		InputTokens:     result.InputTokens,
		OutputTokens:    result.OutputTokens,
		CostUSD:         result.CostUSD,
		ChunksUsed:      result.ChunksUsed,
		RetrievalMethod: result.RetrievalMethod,
		DurationSeconds: result.DurationSeconds,
	})
	if err != nil {
		result.PersistError = err.Error()
		return
	}

	result.Persisted = true
	result.ArtifactID = stored.ID
	result.Version = stored.Version

	// A stored artifact changes what future retrievals should see.
	s.cache.InvalidatePattern(ctx, fmt.Sprintf("context:%s:*", projectID))
}

func validateRequest(req GenerationRequest) error {
	if req.ProjectID == "" {
		return apperrors.NewInvalidRequestError("projectId is required")
	}
	if req.Instructions == "" {
		return apperrors.NewInvalidRequestError("instructions are required")
	}
	return nil
}
