// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/cityfix/internal/geo"
	"github.com/linnemanlabs/cityfix/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/cityfix/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists complaints in PostgreSQL. Concurrent intakes near the same
// location are serialized with transaction-scoped advisory locks.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const complaintColumns = `id, created_at, lat, lng, text, language, ui_category, object_type, photo_ref,
	image_label, image_confidence, is_relevant,
	text_category, text_category_confidence, text_urgency, text_urgency_confidence,
	department, theme, routing_explanation,
	duplicate_group_id, duplicates_count, confirmations,
	priority_score, priority_level, status, export_status, exported_at, after_photo_ref`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Get retrieves a complaint by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Complaint, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	c, err := getComplaint(ctx, s.pool, id, false)
	if err != nil {
		return nil, false, fail(span, err)
	}
	return c, c != nil, nil
}

// List returns all complaints, newest first.
func (s *Store) List(ctx context.Context) ([]*triage.Complaint, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+complaintColumns+` FROM complaints ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query complaints: %w", err))
	}
	out, err := collectComplaints(rows)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// Update locks the complaint row, applies fn and writes back the mutable columns.
func (s *Store) Update(ctx context.Context, id string, fn triage.UpdateFunc) (*triage.Complaint, error) {
	ctx, span := startSpan(ctx, "pgstore.Update", "UPDATE")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	c, err := getComplaint(ctx, tx, id, true)
	if err != nil {
		return nil, fail(span, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", triage.ErrNotFound, id)
	}

	if err := fn(c); err != nil {
		return nil, err
	}

	if err := saveComplaint(ctx, tx, c); err != nil {
		return nil, fail(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fail(span, fmt.Errorf("commit: %w", err))
	}
	return c, nil
}

// Intake runs fn in one transaction. When near is set, advisory locks on the grid
// cells around it are taken first so overlapping intakes see each other's inserts.
func (s *Store) Intake(ctx context.Context, near *geo.Point, radiusMeters float64, fn triage.IntakeFunc) error {
	ctx, span := startSpan(ctx, "pgstore.Intake", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if near != nil && near.Valid() {
		keys := geo.NeighborhoodKeys(*near, radiusMeters)
		span.SetAttributes(attribute.Int("intake.lock_keys", len(keys)))
		// keys are sorted, so every intake acquires in the same order
		for _, k := range keys {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, k); err != nil {
				return fail(span, fmt.Errorf("advisory lock: %w", err))
			}
		}
	}

	if err := fn(ctx, &intakeTx{tx: tx}); err != nil {
		return fail(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

type intakeTx struct {
	tx pgx.Tx
}

func (t *intakeTx) Recent(ctx context.Context, limit int) ([]*triage.Complaint, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+complaintColumns+` FROM complaints
		 WHERE lat IS NOT NULL
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return collectComplaints(rows)
}

func (t *intakeTx) Get(ctx context.Context, id string) (*triage.Complaint, bool, error) {
	c, err := getComplaint(ctx, t.tx, id, true)
	if err != nil {
		return nil, false, err
	}
	return c, c != nil, nil
}

func (t *intakeTx) Insert(ctx context.Context, c *triage.Complaint) error {
	return insertComplaint(ctx, t.tx, c)
}

func (t *intakeTx) Save(ctx context.Context, c *triage.Complaint) error {
	return saveComplaint(ctx, t.tx, c)
}

func getComplaint(ctx context.Context, q querier, id string, forUpdate bool) (*triage.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanComplaint(q.QueryRow(ctx, query, id))
}

func insertComplaint(ctx context.Context, q querier, c *triage.Complaint) error {
	lat, lng := coords(c.Location)

	_, err := q.Exec(ctx, `INSERT INTO complaints (`+complaintColumns+`) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		c.ID, c.CreatedAt, lat, lng, c.Text, c.Language, c.UICategory, c.ObjectType, c.PhotoRef,
		c.Image.Label, c.Image.Confidence, c.Image.Relevant,
		c.Topic.Category, c.Topic.CategoryConfidence, c.Topic.Urgency, c.Topic.UrgencyConfidence,
		c.Department, string(c.Theme), c.RoutingExplanation,
		nullString(c.DuplicateGroupID), c.DuplicatesCount, c.Confirmations,
		c.PriorityScore, string(c.PriorityLevel), string(c.Status),
		nullString(string(c.ExportStatus)), nullTime(c.ExportedAt), c.AfterPhotoRef,
	)
	if err != nil {
		return fmt.Errorf("insert complaint %s: %w", c.ID, err)
	}
	return nil
}

// saveComplaint writes the columns that may change after intake.
func saveComplaint(ctx context.Context, q querier, c *triage.Complaint) error {
	tag, err := q.Exec(ctx, `UPDATE complaints SET
		duplicates_count = $2,
		confirmations    = $3,
		priority_score   = $4,
		priority_level   = $5,
		status           = $6,
		export_status    = $7,
		exported_at      = $8,
		after_photo_ref  = $9
	WHERE id = $1`,
		c.ID, c.DuplicatesCount, c.Confirmations, c.PriorityScore, string(c.PriorityLevel),
		string(c.Status), nullString(string(c.ExportStatus)), nullTime(c.ExportedAt), c.AfterPhotoRef,
	)
	if err != nil {
		return fmt.Errorf("update complaint %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", triage.ErrNotFound, c.ID)
	}
	return nil
}

func collectComplaints(rows pgx.Rows) ([]*triage.Complaint, error) {
	defer rows.Close()
	var out []*triage.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaints: %w", err)
	}
	return out, nil
}

// scanComplaint scans a single row into a triage.Complaint.
// Returns (nil, nil) when no row is found.
func scanComplaint(row pgx.Row) (*triage.Complaint, error) {
	var (
		c            triage.Complaint
		lat, lng     *float64
		theme        string
		groupID      *string
		level        string
		status       string
		exportStatus *string
		exportedAt   *time.Time
	)

	err := row.Scan(
		&c.ID, &c.CreatedAt, &lat, &lng, &c.Text, &c.Language, &c.UICategory, &c.ObjectType, &c.PhotoRef,
		&c.Image.Label, &c.Image.Confidence, &c.Image.Relevant,
		&c.Topic.Category, &c.Topic.CategoryConfidence, &c.Topic.Urgency, &c.Topic.UrgencyConfidence,
		&c.Department, &theme, &c.RoutingExplanation,
		&groupID, &c.DuplicatesCount, &c.Confirmations,
		&c.PriorityScore, &level, &status, &exportStatus, &exportedAt, &c.AfterPhotoRef,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	c.CreatedAt = c.CreatedAt.UTC()
	if lat != nil && lng != nil {
		c.Location = &geo.Point{Lat: *lat, Lng: *lng}
	}
	c.Theme = triage.Theme(theme)
	if groupID != nil {
		c.DuplicateGroupID = *groupID
	}
	c.PriorityLevel = triage.PriorityLevel(level)
	c.Status = triage.Status(status)
	if exportStatus != nil {
		c.ExportStatus = triage.ExportStatus(*exportStatus)
	}
	if exportedAt != nil {
		c.ExportedAt = exportedAt.UTC()
	}

	return &c, nil
}

func coords(p *geo.Point) (lat, lng *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Lat, &p.Lng
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
