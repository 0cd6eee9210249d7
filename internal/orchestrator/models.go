package orchestrator

import (
	"html"
	"strings"

	"bidforge/internal/backend"
)

// GenerationRequest describes one bid generation. Backend selects the
// provider for the single path; Backends lists the providers for a
// comparison. Both empty means the configured default backend.
type GenerationRequest struct {
	ProjectID    string
	CompanyID    *string
	UserID       *string
	Instructions string
	Tone         string
	Backend      backend.Name
	Backends     []backend.Name
}

// ProgressFunc receives coarse progress updates during a generation.
type ProgressFunc func(stage, message string, percent int)

// Options tune a single invocation.
type Options struct {
	Progress     ProgressFunc
	DisableCache bool
	// MaxRetries overrides the configured per-backend attempt budget
	// when positive.
	MaxRetries int
}

func (o Options) progress(stage, message string, percent int) {
	if o.Progress != nil {
		o.Progress(stage, message, percent)
	}
}

// BidGenerationResult is the full outcome of one generation, returned
// even when persistence failed.
type BidGenerationResult struct {
	ArtifactID      string       `json:"artifactId,omitempty"`
	Version         int          `json:"version,omitempty"`
	Content         string       `json:"content"`
	HTMLContent     string       `json:"htmlContent"`
	Backend         backend.Name `json:"backend"`
	Model           string       `json:"model"`
	InputTokens     int          `json:"inputTokens"`
	OutputTokens    int          `json:"outputTokens"`
	CostUSD         float64      `json:"costUsd"`
	ChunksUsed      int          `json:"chunksUsed"`
	RetrievalMethod string       `json:"retrievalMethod"`
	DurationSeconds float64      `json:"durationSeconds"`
	Persisted       bool         `json:"persisted"`
	PersistError    string       `json:"persistError,omitempty"`
}

// ComparisonItem is one backend's entry in a comparison, in request
// order. Items are independent; a failed backend never hides the rest.
type ComparisonItem struct {
	Backend   backend.Name         `json:"backend"`
	Result    *BidGenerationResult `json:"result,omitempty"`
	Err       string               `json:"error,omitempty"`
	Succeeded bool                 `json:"succeeded"`
}

// ComparisonOutcome is the result of a multi-backend comparison over a
// single shared context bundle.
type ComparisonOutcome struct {
	Items           []ComparisonItem `json:"items"`
	ChunksUsed      int              `json:"chunksUsed"`
	RetrievalMethod string           `json:"retrievalMethod"`
}

// renderHTML converts raw backend output into a render-ready fragment:
// one escaped <p> per blank-line-separated paragraph, single newlines
// as <br>.
func renderHTML(content string) string {
	paragraphs := strings.Split(strings.TrimSpace(content), "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		escaped := html.EscapeString(p)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>")
		b.WriteString("<p>")
		b.WriteString(escaped)
		b.WriteString("</p>")
	}
	return b.String()
}
