package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/stages"
)

// AdvisoryRepo — репозиторий опубликованных предупреждений.
type AdvisoryRepo struct {
	pool *pgxpool.Pool
}

// NewAdvisoryRepo создаёт новый AdvisoryRepo.
func NewAdvisoryRepo(pool *pgxpool.Pool) *AdvisoryRepo {
	return &AdvisoryRepo{pool: pool}
}

// SaveAdvisory пишет предупреждение (upsert по workflow_id).
func (r *AdvisoryRepo) SaveAdvisory(ctx context.Context, adv *stages.Advisory) error {
	topicsJSON, err := json.Marshal(adv.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	translationsJSON, err := json.Marshal(adv.Translations)
	if err != nil {
		return fmt.Errorf("marshal translations: %w", err)
	}

	query := `
		INSERT INTO advisories (workflow_id, headline, body, severity, language, topics, risk_score, translations, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workflow_id) DO UPDATE SET
			headline     = EXCLUDED.headline,
			body         = EXCLUDED.body,
			severity     = EXCLUDED.severity,
			language     = EXCLUDED.language,
			topics       = EXCLUDED.topics,
			risk_score   = EXCLUDED.risk_score,
			translations = EXCLUDED.translations,
			published_at = EXCLUDED.published_at
	`
	_, err = r.pool.Exec(ctx, query,
		adv.WorkflowID,
		adv.Headline,
		adv.Body,
		adv.Severity,
		adv.Language,
		topicsJSON,
		adv.RiskScore,
		translationsJSON,
		adv.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert advisory: %w", err)
	}
	return nil
}

// GetByWorkflowID возвращает предупреждение по workflow.
func (r *AdvisoryRepo) GetByWorkflowID(ctx context.Context, workflowID string) (*stages.Advisory, error) {
	query := `
		SELECT workflow_id, headline, body, severity, language, topics, risk_score, translations, published_at
		FROM advisories
		WHERE workflow_id = $1
	`
	return r.scanAdvisory(r.pool.QueryRow(ctx, query, workflowID))
}

// List возвращает последние предупреждения.
func (r *AdvisoryRepo) List(ctx context.Context, limit, offset int) ([]stages.Advisory, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT workflow_id, headline, body, severity, language, topics, risk_score, translations, published_at
		FROM advisories
		ORDER BY published_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list advisories: %w", err)
	}
	defer rows.Close()

	var advisories []stages.Advisory
	for rows.Next() {
		adv, err := r.scanAdvisory(rows)
		if err != nil {
			return nil, err
		}
		advisories = append(advisories, *adv)
	}
	return advisories, rows.Err()
}

// scanAdvisory разбирает строку результата.
func (r *AdvisoryRepo) scanAdvisory(row pgx.Row) (*stages.Advisory, error) {
	var adv stages.Advisory
	var topicsJSON, translationsJSON []byte

	err := row.Scan(
		&adv.WorkflowID,
		&adv.Headline,
		&adv.Body,
		&adv.Severity,
		&adv.Language,
		&topicsJSON,
		&adv.RiskScore,
		&translationsJSON,
		&adv.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan advisory: %w", err)
	}

	if err := json.Unmarshal(topicsJSON, &adv.Topics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	if err := json.Unmarshal(translationsJSON, &adv.Translations); err != nil {
		return nil, fmt.Errorf("unmarshal translations: %w", err)
	}
	return &adv, nil
}
