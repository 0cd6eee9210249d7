// Package usage handles post-generation bookkeeping: persisting the
// bid artifact and publishing a usage accounting event.
//
// Everything here is best effort. A generated bid that cannot be
// persisted or metered is still returned to the caller.
package usage

import (
	"context"
	"encoding/json"
	"time"

	"bidforge/internal/common/logger"
	"bidforge/internal/common/metrics"
	"bidforge/internal/store"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

// Event is the usage record published per completed generation.
type Event struct {
	EventID      string    `json:"eventId"`
	ArtifactID   string    `json:"artifactId,omitempty"`
	ProjectID    string    `json:"projectId"`
	CompanyID    string    `json:"companyId,omitempty"`
	Backend      string    `json:"backend"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	CostUSD      float64   `json:"costUsd"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// ArtifactCreator is the persistence slice of the store used here.
type ArtifactCreator interface {
	CreateArtifact(ctx context.Context, a store.Artifact) (*store.Artifact, error)
}

// Publisher is the SNS publish surface.
type Publisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Persister stores artifacts and emits usage events.
type Persister struct {
	store    ArtifactCreator
	events   Publisher
	topicARN string
	now      func() time.Time
	logger   logger.Logger
}

func NewPersister(artifacts ArtifactCreator, events Publisher, topicARN string, log logger.Logger) *Persister {
	return &Persister{
		store:    artifacts,
		events:   events,
		topicARN: topicARN,
		now:      time.Now,
		logger:   log.WithFields(map[string]interface{}{"component": "usage"}),
	}
}

// Persist stores the artifact and publishes the usage event. The
// returned error reports the persistence failure for the caller's
// result payload; the usage event failure is only logged. Either way
// the caller keeps the generated content.
func (p *Persister) Persist(ctx context.Context, a store.Artifact) (*store.Artifact, error) {
	stored, err := p.store.CreateArtifact(ctx, a)
	if err != nil {
		p.logger.Error("artifact persistence failed, returning unsaved content", map[string]interface{}{
			"projectId": a.ProjectID,
			"backend":   a.Backend,
			"error":     err.Error(),
		})
	} else {
		a = *stored
	}

	metrics.TokensConsumed.WithLabelValues(a.Backend, "input").Add(float64(a.InputTokens))
	metrics.TokensConsumed.WithLabelValues(a.Backend, "output").Add(float64(a.OutputTokens))
	metrics.GenerationCost.WithLabelValues(a.Backend).Add(a.CostUSD)

	p.publishEvent(ctx, a)

	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (p *Persister) publishEvent(ctx context.Context, a store.Artifact) {
	if p.events == nil || p.topicARN == "" {
		return
	}

	event := Event{
		EventID:      uuid.New().String(),
		ArtifactID:   a.ID,
		ProjectID:    a.ProjectID,
		Backend:      a.Backend,
		Model:        a.Model,
		InputTokens:  a.InputTokens,
		OutputTokens: a.OutputTokens,
		CostUSD:      a.CostUSD,
		OccurredAt:   p.now().UTC(),
	}
	if a.CompanyID != nil {
		event.CompanyID = *a.CompanyID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("usage event not serializable", map[string]interface{}{
			"projectId": a.ProjectID,
			"error":     err.Error(),
		})
		return
	}

	_, err = p.events.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(p.topicARN),
		Message:  awssdk.String(string(payload)),
	})
	if err != nil {
		p.logger.Error("usage event publish failed", map[string]interface{}{
			"projectId": a.ProjectID,
			"eventId":   event.EventID,
			"error":     err.Error(),
		})
	}
}
