// Package store is the Postgres persistence layer for projects,
// project documents, company profiles and generated bid artifacts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bidforge/internal/assembler"
	apperrors "bidforge/internal/common/errors"
	"bidforge/internal/common/logger"
	"bidforge/internal/retrieval"
)

// Project is the project row read ahead of every generation.
type Project struct {
	ID          string
	CompanyID   *string
	Name        string
	Location    string
	Phase       string
	BudgetRange string
	Deadline    string
	Description string
	DrawingData json.RawMessage
}

// Drawings decodes the structured drawing extractions stored alongside
// the project. Absent or malformed data yields an empty slice.
func (p *Project) Drawings() []assembler.DrawingExtraction {
	if len(p.DrawingData) == 0 {
		return nil
	}
	var out []assembler.DrawingExtraction
	if err := json.Unmarshal(p.DrawingData, &out); err != nil {
		return nil
	}
	return out
}

// Artifact is one persisted generation result. RawContent is the
// backend output verbatim; HTMLContent is the render-ready form.
type Artifact struct {
	ID              string
	ProjectID       string
	CompanyID       *string
	RawContent      string
	HTMLContent     string
	Backend         string
	Model           string
	InputTokens     int
	OutputTokens    int
	CostUSD         float64
	ChunksUsed      int
	RetrievalMethod string
	DurationSeconds float64
	Version         int
	CreatedAt       time.Time
}

// ArtifactStore reads projects and writes versioned bid artifacts.
type ArtifactStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewArtifactStore(db *sql.DB, log logger.Logger) *ArtifactStore {
	return &ArtifactStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
	}
}

// GetProject loads the project row or reports PROJECT_NOT_FOUND.
func (s *ArtifactStore) GetProject(ctx context.Context, projectID string) (*Project, error) {
	const query = `
		SELECT id, company_id, name, location, phase, budget_range, deadline, description, drawing_data
		FROM projects
		WHERE id = $1`

	var (
		p           Project
		companyID   sql.NullString
		location    sql.NullString
		phase       sql.NullString
		budgetRange sql.NullString
		deadline    sql.NullString
		description sql.NullString
		drawingData []byte
	)

	err := s.db.QueryRowContext(ctx, query, projectID).Scan(
		&p.ID, &companyID, &p.Name, &location, &phase, &budgetRange, &deadline, &description, &drawingData,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewProjectNotFoundError(projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}

	if companyID.Valid {
		p.CompanyID = &companyID.String
	}
	p.Location = location.String
	p.Phase = phase.String
	p.BudgetRange = budgetRange.String
	p.Deadline = deadline.String
	p.Description = description.String
	p.DrawingData = drawingData
	return &p, nil
}

// GetCompanyProfile loads the bidding company profile. A missing
// company yields a zero profile, not an error; the profile header is
// simply omitted from the prompt.
func (s *ArtifactStore) GetCompanyProfile(ctx context.Context, companyID string) (assembler.CompanyProfile, error) {
	const query = `
		SELECT name, tagline, address, license, contact_name, contact_email, contact_phone
		FROM companies
		WHERE id = $1`

	var (
		profile                                                      assembler.CompanyProfile
		tagline, address, license, contactName, contactEmail, contactPhone sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, companyID).Scan(
		&profile.Name, &tagline, &address, &license, &contactName, &contactEmail, &contactPhone,
	)
	if err == sql.ErrNoRows {
		return assembler.CompanyProfile{}, nil
	}
	if err != nil {
		return assembler.CompanyProfile{}, fmt.Errorf("get company %s: %w", companyID, err)
	}

	profile.Tagline = tagline.String
	profile.Address = address.String
	profile.License = license.String
	profile.ContactName = contactName.String
	profile.ContactEmail = contactEmail.String
	profile.ContactPhone = contactPhone.String
	return profile, nil
}

// ListDocuments returns the raw documents attached to a project, used
// by the retrieval fallback when search yields nothing.
func (s *ArtifactStore) ListDocuments(ctx context.Context, projectID string) ([]retrieval.Document, error) {
	const query = `
		SELECT filename, COALESCE(extracted_text, ''), extraction_failed
		FROM project_documents
		WHERE project_id = $1
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", projectID, err)
	}
	defer rows.Close()

	var docs []retrieval.Document
	for rows.Next() {
		var doc retrieval.Document
		if err := rows.Scan(&doc.Filename, &doc.Content, &doc.Unextractable); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// CreateArtifact inserts a new bid artifact with the next version
// number for its project and returns the stored row.
func (s *ArtifactStore) CreateArtifact(ctx context.Context, a Artifact) (*Artifact, error) {
	const query = `
		INSERT INTO bid_artifacts
			(project_id, company_id, raw_content, html_content, backend, model,
			 input_tokens, output_tokens, cost_usd, chunks_used, retrieval_method, duration_seconds, version)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			 (SELECT COALESCE(MAX(version), 0) + 1 FROM bid_artifacts WHERE project_id = $1))
		RETURNING id, version, created_at`

	err := s.db.QueryRowContext(ctx, query,
		a.ProjectID, a.CompanyID, a.RawContent, a.HTMLContent, a.Backend, a.Model,
		a.InputTokens, a.OutputTokens, a.CostUSD, a.ChunksUsed, a.RetrievalMethod, a.DurationSeconds,
	).Scan(&a.ID, &a.Version, &a.CreatedAt)
	if err != nil {
		return nil, apperrors.NewPersistenceFailedError(err)
	}

	s.logger.Info("bid artifact stored", map[string]interface{}{
		"artifactId": a.ID,
		"projectId":  a.ProjectID,
		"backend":    a.Backend,
		"version":    a.Version,
	})
	return &a, nil
}
