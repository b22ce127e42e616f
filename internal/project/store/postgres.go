package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kycverify/internal/project/models"
	id "kycverify/pkg/domain"
	"kycverify/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const selectColumns = `id, name, key_prefix, key_hash, webhook_url, webhook_secret, active, created_at`

func (s *Postgres) Create(ctx context.Context, p *models.Project) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects (`+selectColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.UUID(p.ID), p.Name, p.KeyPrefix, p.KeyHash,
		nullString(p.WebhookURL), nullString(p.WebhookSecret), p.Active, p.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM projects WHERE id = $1`, uuid.UUID(projectID))
	return scanProject(row)
}

func (s *Postgres) FindByKeyPrefix(ctx context.Context, prefix string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM projects WHERE key_prefix = $1`, prefix)
	return scanProject(row)
}

func (s *Postgres) Update(ctx context.Context, p *models.Project) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects
		SET name = $2, key_prefix = $3, key_hash = $4, webhook_url = $5, webhook_secret = $6, active = $7
		WHERE id = $1`,
		uuid.UUID(p.ID), p.Name, p.KeyPrefix, p.KeyHash,
		nullString(p.WebhookURL), nullString(p.WebhookSecret), p.Active,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var (
		p                   models.Project
		pid                 uuid.UUID
		webhookURL, webhook sql.NullString
	)
	err := row.Scan(&pid, &p.Name, &p.KeyPrefix, &p.KeyHash, &webhookURL, &webhook, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.ID = id.ProjectID(pid)
	p.WebhookURL = webhookURL.String
	p.WebhookSecret = webhook.String
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
