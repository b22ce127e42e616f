package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kycverify/internal/decision"
	"kycverify/internal/fraud"
	"kycverify/internal/verification/models"
	id "kycverify/pkg/domain"
	"kycverify/pkg/platform/sentinel"
	"kycverify/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists verifications in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

const selectColumns = `id, project_id, external_id, status, hint_first_name, hint_last_name, email,
	first_name, last_name, date_of_birth, document_number, nationality,
	face_match_score, liveness_score, fraud_score, fraud_risk_level, rejection_reason, reasons,
	document_front, document_back, selfie, ip_address, user_agent, device_info, geolocation,
	session_events, created_at, completed_at`

// CreateUnlessRecent serializes check-and-insert per project with a
// transaction-scoped advisory lock, so two concurrent submissions cannot both
// miss the window check.
func (s *Postgres) CreateUnlessRecent(ctx context.Context, v *models.Verification, window time.Duration) (*models.Verification, bool, error) {
	var (
		stored  *models.Verification
		created bool
	)
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		c := s.conn(ctx)
		if _, err := c.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, v.ProjectID.String()); err != nil {
			return fmt.Errorf("acquire dedup lock: %w", err)
		}
		row := c.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM verifications
			WHERE project_id = $1 AND status = $2 AND created_at >= $3
			ORDER BY created_at DESC LIMIT 1`,
			uuid.UUID(v.ProjectID), string(decision.StatusProcessing), v.CreatedAt.Add(-window))
		existing, err := scanVerification(row)
		switch {
		case err == nil:
			stored = existing
			return nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}
		if err := s.insert(ctx, c, v); err != nil {
			return err
		}
		stored, created = v.Clone(), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Postgres) insert(ctx context.Context, c execer, v *models.Verification) error {
	events, err := json.Marshal(nonNilEvents(v.SessionEvents))
	if err != nil {
		return fmt.Errorf("encode session events: %w", err)
	}
	device, err := jsonOrNull(v.Client.DeviceInfo)
	if err != nil {
		return err
	}
	geo, err := jsonOrNull(v.Client.Geolocation)
	if err != nil {
		return err
	}
	_, err = c.ExecContext(ctx, `INSERT INTO verifications (
		id, project_id, external_id, status, hint_first_name, hint_last_name, email,
		document_front, document_back, selfie, ip_address, user_agent, device_info, geolocation,
		session_events, reasons, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::jsonb,$14::jsonb,$15::jsonb,$16,$17)`,
		uuid.UUID(v.ID), uuid.UUID(v.ProjectID), nullString(v.ExternalID), string(v.Status),
		nullString(v.Hints.FirstName), nullString(v.Hints.LastName), nullString(v.Hints.Email),
		nullString(v.Documents.Front), nullString(v.Documents.Back), nullString(v.Documents.Selfie),
		nullString(v.Client.IPAddress), nullString(v.Client.UserAgent), device, geo,
		string(events), pq.Array(nonNilStrings(v.Reasons)), v.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, vid id.VerificationID) (*models.Verification, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+selectColumns+` FROM verifications WHERE id = $1`, uuid.UUID(vid))
	return scanVerification(row)
}

func (s *Postgres) SetDocuments(ctx context.Context, vid id.VerificationID, docs models.Documents) error {
	return s.execOne(ctx, `UPDATE verifications SET document_front = $2, document_back = $3, selfie = $4 WHERE id = $1`,
		uuid.UUID(vid), nullString(docs.Front), nullString(docs.Back), nullString(docs.Selfie))
}

func (s *Postgres) AppendEvent(ctx context.Context, vid id.VerificationID, ev models.SessionEvent) error {
	raw, err := json.Marshal([]models.SessionEvent{ev})
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	return s.execOne(ctx, `UPDATE verifications SET session_events = session_events || $2::jsonb WHERE id = $1`,
		uuid.UUID(vid), string(raw))
}

// Complete writes the decision only while the row is still non-terminal.
func (s *Postgres) Complete(ctx context.Context, vid id.VerificationID, result models.Result) (bool, error) {
	if !result.Outcome.Status.IsTerminal() {
		return false, nil
	}
	var (
		fraudScore sql.NullInt64
		riskLevel  sql.NullString
	)
	if result.Fraud != nil {
		fraudScore = sql.NullInt64{Int64: int64(result.Fraud.Score), Valid: true}
		riskLevel = nullString(string(result.Fraud.RiskLevel))
	}
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE verifications SET
		status = $2, first_name = $3, last_name = $4, date_of_birth = $5, document_number = $6,
		nationality = $7, face_match_score = $8, liveness_score = $9, fraud_score = $10,
		fraud_risk_level = $11, rejection_reason = $12, reasons = $13, completed_at = $14
		WHERE id = $1 AND status IN ($15, $16)`,
		uuid.UUID(vid), string(result.Outcome.Status),
		nullString(result.Identity.FirstName), nullString(result.Identity.LastName),
		nullString(result.Identity.DateOfBirth), nullString(result.Identity.DocumentNumber),
		nullString(result.Identity.Nationality), nullFloat(result.FaceMatchScore), nullInt(result.LivenessScore),
		fraudScore, riskLevel, nullString(result.Outcome.RejectionReason), pq.Array(result.Reasons()),
		result.CompletedAt, string(decision.StatusPending), string(decision.StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("complete verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete verification: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, vid); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Postgres) PatchEnrichment(ctx context.Context, vid id.VerificationID, e models.Enrichment) error {
	device, err := jsonOrNull(e.DeviceInfo)
	if err != nil {
		return err
	}
	geo, err := jsonOrNull(e.Geolocation)
	if err != nil {
		return err
	}
	return s.execOne(ctx, `UPDATE verifications SET
		device_info = COALESCE($2::jsonb, device_info),
		geolocation = COALESCE($3::jsonb, geolocation)
		WHERE id = $1`, uuid.UUID(vid), device, geo)
}

func (s *Postgres) ListByProject(ctx context.Context, projectID id.ProjectID, filter models.ListFilter) (models.Page, error) {
	filter = filter.Normalize()
	page := models.Page{Page: filter.Page, Limit: filter.Limit, Items: []*models.Verification{}}

	where := []string{"project_id = $1"}
	args := []any{uuid.UUID(projectID)}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	c := s.conn(ctx)
	if err := c.QueryRowContext(ctx, `SELECT count(*) FROM verifications WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return models.Page{}, fmt.Errorf("count verifications: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	rows, err := c.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM verifications WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, selectColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return models.Page{}, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return models.Page{}, err
		}
		page.Items = append(page.Items, v)
	}
	if err := rows.Err(); err != nil {
		return models.Page{}, fmt.Errorf("list verifications: %w", err)
	}
	return page, nil
}

func (s *Postgres) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]id.VerificationID, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT id FROM verifications
		WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		string(decision.StatusProcessing), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale verifications: %w", err)
	}
	defer rows.Close()
	var ids []id.VerificationID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan stale verification: %w", err)
		}
		ids = append(ids, id.VerificationID(u))
	}
	return ids, rows.Err()
}

func (s *Postgres) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVerification(row scanner) (*models.Verification, error) {
	var (
		v                                      models.Verification
		vid, pid                               uuid.UUID
		status                                 string
		externalID, hintFirst, hintLast, email sql.NullString
		first, last, dob, docNum, nationality  sql.NullString
		faceMatch                              sql.NullFloat64
		liveness, fraudScore                   sql.NullInt64
		riskLevel, rejection                   sql.NullString
		reasons                                pq.StringArray
		front, back, selfie, ip, ua            sql.NullString
		device, geo                            []byte
		events                                 []byte
		completedAt                            sql.NullTime
	)
	err := row.Scan(&vid, &pid, &externalID, &status, &hintFirst, &hintLast, &email,
		&first, &last, &dob, &docNum, &nationality,
		&faceMatch, &liveness, &fraudScore, &riskLevel, &rejection, &reasons,
		&front, &back, &selfie, &ip, &ua, &device, &geo,
		&events, &v.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification: %w", err)
	}

	v.ID = id.VerificationID(vid)
	v.ProjectID = id.ProjectID(pid)
	v.ExternalID = externalID.String
	v.Status = decision.Status(status)
	v.Hints = models.Hints{FirstName: hintFirst.String, LastName: hintLast.String, Email: email.String}
	v.Identity = models.Identity{
		FirstName:      first.String,
		LastName:       last.String,
		DateOfBirth:    dob.String,
		DocumentNumber: docNum.String,
		Nationality:    nationality.String,
	}
	if faceMatch.Valid {
		f := faceMatch.Float64
		v.FaceMatchScore = &f
	}
	if liveness.Valid {
		l := int(liveness.Int64)
		v.LivenessScore = &l
	}
	if fraudScore.Valid {
		f := int(fraudScore.Int64)
		v.FraudScore = &f
	}
	v.FraudRiskLevel = fraud.RiskLevel(riskLevel.String)
	v.RejectionReason = rejection.String
	v.Reasons = []string(reasons)
	v.Documents = models.Documents{Front: front.String, Back: back.String, Selfie: selfie.String}
	v.Client.IPAddress = ip.String
	v.Client.UserAgent = ua.String
	if len(device) > 0 {
		v.Client.DeviceInfo = &models.DeviceInfo{}
		if err := json.Unmarshal(device, v.Client.DeviceInfo); err != nil {
			return nil, fmt.Errorf("decode device info: %w", err)
		}
	}
	if len(geo) > 0 {
		v.Client.Geolocation = &models.Geolocation{}
		if err := json.Unmarshal(geo, v.Client.Geolocation); err != nil {
			return nil, fmt.Errorf("decode geolocation: %w", err)
		}
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &v.SessionEvents); err != nil {
			return nil, fmt.Errorf("decode session events: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		v.CompletedAt = &t
	}
	return &v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// jsonOrNull encodes v as a JSON string parameter, or SQL NULL when v is nil.
// Strings keep lib/pq from sending the value as bytea.
func jsonOrNull[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(b), nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilEvents(e []models.SessionEvent) []models.SessionEvent {
	if e == nil {
		return []models.SessionEvent{}
	}
	return e
}
