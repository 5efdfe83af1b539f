package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/analysis"
	"github.com/oceanguard/hazard-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time.
// This ensures schema init works inside the Docker runtime image which
// does not copy internal/db/schema.sql into the final stage.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Info().Str("component", "db").Msg("connected to PostgreSQL")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetPool exposes the connection pool for subsystems that batch their own SQL.
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}

	log.Info().Str("component", "db").Msg("hazard schema initialized")
	return nil
}

const reportColumns = `id, source, text, latitude, longitude, ts, media_paths,
	has_media, media_verified, user_id, user_name, declared_severity,
	nlp_kind, nlp_confidence, nlp_keywords, severity_boost, credibility,
	group_id, processed, created_at`

func scanReport(row pgx.Row) (models.Report, error) {
	var r models.Report
	var ts *time.Time
	err := row.Scan(
		&r.ID, &r.Source, &r.Text, &r.Latitude, &r.Longitude, &ts, &r.MediaPaths,
		&r.HasMedia, &r.MediaVerified, &r.UserID, &r.UserName, &r.DeclaredSeverity,
		&r.NLPKind, &r.NLPConfidence, &r.NLPKeywords, &r.SeverityBoost, &r.Credibility,
		&r.GroupID, &r.Processed, &r.CreatedAt,
	)
	if err != nil {
		return models.Report{}, err
	}
	if ts != nil {
		r.Timestamp = ts.UTC()
	}
	return r, nil
}

func collectReports(rows pgx.Rows) ([]models.Report, error) {
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// InsertReport stores a raw report and fills in its id and created_at.
// A zero timestamp is stored as NULL.
func (s *PostgresStore) InsertReport(ctx context.Context, r *models.Report) error {
	var ts *time.Time
	if !r.Timestamp.IsZero() {
		utc := r.Timestamp.UTC()
		ts = &utc
	}

	sql := `
		INSERT INTO reports
			(source, text, latitude, longitude, ts, media_paths, has_media,
			 media_verified, user_id, user_name, declared_severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at;
	`
	err := s.pool.QueryRow(ctx, sql,
		string(r.Source), r.Text, r.Latitude, r.Longitude, ts, r.MediaPaths,
		r.HasMedia, r.MediaVerified, r.UserID, r.UserName, r.DeclaredSeverity,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id int64) (models.Report, error) {
	sql := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	r, err := scanReport(s.pool.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Report{}, ErrNotFound
	}
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to load report %d: %w", id, err)
	}
	return r, nil
}

// ReportFilter narrows ListReports. Zero values mean "no filter".
type ReportFilter struct {
	Source    string
	Processed *bool
	Page      int
	Limit     int
}

// ListReports returns a page of reports (newest first) and the total count
// for the filter.
func (s *PostgresStore) ListReports(ctx context.Context, f ReportFilter) ([]models.Report, int, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := " WHERE TRUE"
	args := []any{}
	if f.Source != "" {
		args = append(args, f.Source)
		where += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if f.Processed != nil {
		args = append(args, *f.Processed)
		where += fmt.Sprintf(" AND processed = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM reports"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	args = append(args, limit, offset)
	dataSQL := fmt.Sprintf("SELECT %s FROM reports%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		reportColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}

	reports, err := collectReports(rows)
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// ListProcessedReports returns every processed report except the given one.
// The clusterer scores a new report against this set.
func (s *PostgresStore) ListProcessedReports(ctx context.Context, excludeID int64) ([]models.Report, error) {
	sql := `SELECT ` + reportColumns + ` FROM reports WHERE processed AND id != $1 ORDER BY id`
	rows, err := s.pool.Query(ctx, sql, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed reports: %w", err)
	}
	return collectReports(rows)
}

// ListGroupReports returns the processed members of a group in insertion order.
func (s *PostgresStore) ListGroupReports(ctx context.Context, groupID int64) ([]models.Report, error) {
	sql := `SELECT ` + reportColumns + ` FROM reports WHERE processed AND group_id = $1 ORDER BY id`
	rows, err := s.pool.Query(ctx, sql, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group %d reports: %w", groupID, err)
	}
	return collectReports(rows)
}

// UnprocessedReportIDs returns up to limit report ids awaiting processing,
// oldest first, for the sweeper.
func (s *PostgresStore) UnprocessedReportIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM reports WHERE NOT processed ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE NOT processed`).Scan(&n)
	return n, err
}

// MaxGroupID returns the highest group id assigned so far, 0 when none.
func (s *PostgresStore) MaxGroupID(ctx context.Context) (int64, error) {
	var maxGroup int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(group_id), 0) FROM reports`).Scan(&maxGroup)
	return maxGroup, err
}

// FuseFunc computes the fused snapshot for a group from its processed
// members. It must be pure: SaveProcessingResult calls it mid-transaction.
type FuseFunc func(groupReports []models.Report) models.HazardSnapshot

// SaveProcessingResult persists one pipeline pass atomically: it writes the
// report's derived fields, loads the group's processed members inside the same
// transaction, runs fuse over them, and upserts the fused event. An event
// whose status was pinned by an administrator keeps its status and confidence;
// every other field still refreshes. Returns the event as stored.
//
// When the report was already processed by a concurrent pass the update is a
// no-op, fuse never runs, and the event fused by that pass is returned.
func (s *PostgresStore) SaveProcessingResult(ctx context.Context, r *models.Report, fuse FuseFunc) (models.HazardEvent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.HazardEvent{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updateSQL := `
		UPDATE reports SET
			nlp_kind = $1,
			nlp_confidence = $2,
			nlp_keywords = $3,
			severity_boost = $4,
			credibility = $5,
			group_id = $6,
			processed = TRUE
		WHERE id = $7 AND NOT processed;
	`
	keywords := r.NLPKeywords
	if keywords == nil {
		keywords = []string{}
	}
	tag, err := tx.Exec(ctx, updateSQL,
		string(r.NLPKind), r.NLPConfidence, keywords, r.SeverityBoost,
		r.Credibility, r.GroupID, r.ID)
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to update report %d: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var storedGroup int64
		if err := tx.QueryRow(ctx, `SELECT group_id FROM reports WHERE id = $1`, r.ID).Scan(&storedGroup); err != nil {
			return models.HazardEvent{}, fmt.Errorf("failed to load group for processed report %d: %w", r.ID, err)
		}
		return s.GetEventByGroup(ctx, storedGroup)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE processed AND group_id = $1 ORDER BY id`, r.GroupID)
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to load group %d members: %w", r.GroupID, err)
	}
	members, err := collectReports(rows)
	if err != nil {
		return models.HazardEvent{}, err
	}

	snapshot := fuse(members)
	evidence, err := json.Marshal(snapshot.Evidence)
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	event, err := upsertEvent(ctx, tx, snapshot, evidence)
	if err != nil {
		return models.HazardEvent{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.HazardEvent{}, err
	}
	return event, nil
}

const eventColumns = `id, group_id, kind, confidence, severity, status,
	latitude, longitude, evidence, created_at, updated_at`

func scanEvent(row pgx.Row) (models.HazardEvent, error) {
	var e models.HazardEvent
	var evidence []byte
	err := row.Scan(&e.ID, &e.GroupID, &e.Kind, &e.Confidence, &e.Severity,
		&e.Status, &e.Latitude, &e.Longitude, &evidence, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return models.HazardEvent{}, err
	}
	e.Evidence = json.RawMessage(evidence)
	return e, nil
}

func upsertEvent(ctx context.Context, tx pgx.Tx, snapshot models.HazardSnapshot, evidence []byte) (models.HazardEvent, error) {
	sql := `
		INSERT INTO hazard_events
			(group_id, kind, confidence, severity, status, latitude, longitude, evidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (group_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			confidence = CASE WHEN hazard_events.status IN ('approved', 'rejected')
				THEN hazard_events.confidence ELSE EXCLUDED.confidence END,
			severity = EXCLUDED.severity,
			status = CASE WHEN hazard_events.status IN ('approved', 'rejected')
				THEN hazard_events.status ELSE EXCLUDED.status END,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			evidence = EXCLUDED.evidence,
			updated_at = NOW()
		RETURNING ` + eventColumns + `;
	`
	event, err := scanEvent(tx.QueryRow(ctx, sql,
		snapshot.GroupID, string(snapshot.Kind), snapshot.Confidence, snapshot.Severity,
		string(snapshot.Status), snapshot.Latitude, snapshot.Longitude, evidence))
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to upsert event for group %d: %w", snapshot.GroupID, err)
	}
	return event, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (models.HazardEvent, error) {
	sql := `SELECT ` + eventColumns + ` FROM hazard_events WHERE id = $1`
	e, err := scanEvent(s.pool.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.HazardEvent{}, ErrNotFound
	}
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to load event %d: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) GetEventByGroup(ctx context.Context, groupID int64) (models.HazardEvent, error) {
	sql := `SELECT ` + eventColumns + ` FROM hazard_events WHERE group_id = $1`
	e, err := scanEvent(s.pool.QueryRow(ctx, sql, groupID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.HazardEvent{}, ErrNotFound
	}
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to load event for group %d: %w", groupID, err)
	}
	return e, nil
}

// EventFilter narrows ListEvents. Zero values mean "no filter".
type EventFilter struct {
	Status string
	Kind   string
	Page   int
	Limit  int
}

func (s *PostgresStore) ListEvents(ctx context.Context, f EventFilter) ([]models.HazardEvent, int, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := " WHERE TRUE"
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM hazard_events"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	args = append(args, limit, offset)
	dataSQL := fmt.Sprintf("SELECT %s FROM hazard_events%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		eventColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]models.HazardEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// ValidateEvent applies an administrator decision. The two terminal decisions
// adjust confidence (+0.20 capped at 1.0 / -0.30 floored at 0.0); any other
// status is set verbatim.
func (s *PostgresStore) ValidateEvent(ctx context.Context, id int64, status models.EventStatus) (models.HazardEvent, error) {
	sql := `
		UPDATE hazard_events SET
			status = $2,
			confidence = CASE
				WHEN $2 = 'approved' THEN LEAST(1.0, confidence + 0.20)
				WHEN $2 = 'rejected' THEN GREATEST(0.0, confidence - 0.30)
				ELSE confidence
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + eventColumns + `;
	`
	e, err := scanEvent(s.pool.QueryRow(ctx, sql, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.HazardEvent{}, ErrNotFound
	}
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to validate event %d: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) InsertBulletin(ctx context.Context, b *models.Bulletin) error {
	sql := `
		INSERT INTO bulletins (hazard_kind, severity, description, issued_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at;
	`
	err := s.pool.QueryRow(ctx, sql,
		string(b.HazardKind), b.Severity, b.Description, b.IssuedAt.UTC(),
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bulletin: %w", err)
	}
	return nil
}

func collectBulletins(rows pgx.Rows) ([]models.Bulletin, error) {
	defer rows.Close()

	bulletins := make([]models.Bulletin, 0)
	for rows.Next() {
		var b models.Bulletin
		if err := rows.Scan(&b.ID, &b.HazardKind, &b.Severity, &b.Description, &b.IssuedAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		bulletins = append(bulletins, b)
	}
	return bulletins, rows.Err()
}

// ListBulletins returns the newest bulletins, most recent first.
func (s *PostgresStore) ListBulletins(ctx context.Context, limit int) ([]models.Bulletin, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, hazard_kind, severity, description, issued_at, created_at
		FROM bulletins ORDER BY issued_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bulletins: %w", err)
	}
	return collectBulletins(rows)
}

// BulletinsInWindow returns the bulletins inside the correlation window
// around a reference time, newest first.
func (s *PostgresStore) BulletinsInWindow(ctx context.Context, ref time.Time) ([]models.Bulletin, error) {
	ref = ref.UTC()
	rows, err := s.pool.Query(ctx, `
		SELECT id, hazard_kind, severity, description, issued_at, created_at
		FROM bulletins
		WHERE issued_at >= $1 AND issued_at <= $2
		ORDER BY issued_at DESC
		LIMIT $3`,
		ref.Add(-analysis.CorrelationWindowBefore),
		ref.Add(analysis.CorrelationWindowAfter),
		analysis.CorrelationBulletinLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load correlation bulletins: %w", err)
	}
	return collectBulletins(rows)
}

// SystemStats is the aggregate served by GET /stats.
type SystemStats struct {
	TotalReports       int            `json:"total_reports"`
	ProcessedReports   int            `json:"processed_reports"`
	UnprocessedReports int            `json:"unprocessed_reports"`
	ReportsLast24h     int            `json:"reports_last_24h"`
	ReportsBySource    map[string]int `json:"reports_by_source"`
	TotalEvents        int            `json:"total_events"`
	EventsLast24h      int            `json:"events_last_24h"`
	EventsByStatus     map[string]int `json:"events_by_status"`
	PendingValidation  int            `json:"pending_validation"`
	ConfidenceHigh     int            `json:"confidence_high"`
	ConfidenceMedium   int            `json:"confidence_medium"`
	ConfidenceLow      int            `json:"confidence_low"`
	TotalBulletins     int            `json:"total_bulletins"`
}

func (s *PostgresStore) Stats(ctx context.Context) (SystemStats, error) {
	var stats SystemStats
	stats.ReportsBySource = make(map[string]int)
	stats.EventsByStatus = make(map[string]int)

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE processed),
			COUNT(*) FILTER (WHERE NOT processed),
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '24 hours')
		FROM reports`).Scan(
		&stats.TotalReports, &stats.ProcessedReports,
		&stats.UnprocessedReports, &stats.ReportsLast24h)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate reports: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT source, COUNT(*) FROM reports GROUP BY source`)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate sources: %w", err)
	}
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ReportsBySource[source] = n
	}
	rows.Close()
	if rows.Err() != nil {
		return stats, rows.Err()
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE updated_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE status IN ('pending', 'review')),
			COUNT(*) FILTER (WHERE confidence >= 0.8),
			COUNT(*) FILTER (WHERE confidence >= 0.5 AND confidence < 0.8),
			COUNT(*) FILTER (WHERE confidence < 0.5)
		FROM hazard_events`).Scan(
		&stats.TotalEvents, &stats.EventsLast24h, &stats.PendingValidation,
		&stats.ConfidenceHigh, &stats.ConfidenceMedium, &stats.ConfidenceLow)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate events: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT status, COUNT(*) FROM hazard_events GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate statuses: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.EventsByStatus[status] = n
	}
	rows.Close()
	if rows.Err() != nil {
		return stats, rows.Err()
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bulletins`).Scan(&stats.TotalBulletins); err != nil {
		return stats, fmt.Errorf("failed to count bulletins: %w", err)
	}

	return stats, nil
}

// GroupSummary is one row of the group statistics listing.
type GroupSummary struct {
	GroupID     int64      `json:"group_id"`
	ReportCount int        `json:"report_count"`
	CentroidLat float64    `json:"centroid_lat"`
	CentroidLon float64    `json:"centroid_lon"`
	Earliest    *time.Time `json:"earliest"`
	Latest      *time.Time `json:"latest"`
	SourceCount int        `json:"source_count"`
}

// GroupSummaries lists the largest processed groups with their plain-mean
// centroids and time spans.
func (s *PostgresStore) GroupSummaries(ctx context.Context, limit int) ([]GroupSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT group_id, COUNT(*), AVG(latitude), AVG(longitude),
			MIN(ts), MAX(ts), COUNT(DISTINCT source)
		FROM reports
		WHERE processed AND group_id > 0
		GROUP BY group_id
		ORDER BY COUNT(*) DESC, group_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize groups: %w", err)
	}
	defer rows.Close()

	summaries := make([]GroupSummary, 0)
	for rows.Next() {
		var g GroupSummary
		if err := rows.Scan(&g.GroupID, &g.ReportCount, &g.CentroidLat, &g.CentroidLon,
			&g.Earliest, &g.Latest, &g.SourceCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, g)
	}
	return summaries, rows.Err()
}
