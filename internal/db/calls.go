package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/call-transcriber/internal/types"
)

const callColumns = `id, filename, audio_file_path, transcript, summary,
	tags, tags_original, tags_override, roles, emotions, intent, mood, insights,
	upload_timestamp, created_at, updated_at`

func scanCall(row pgx.Row) (*Call, error) {
	var c Call
	err := row.Scan(
		&c.ID, &c.Filename, &c.AudioFilePath, &c.Transcript, &c.Summary,
		&c.Tags, &c.TagsOriginal, &c.TagsOverride, &c.Roles, &c.Emotions,
		&c.Intent, &c.Mood, &c.Insights,
		&c.UploadTimestamp, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Roles == nil {
		c.Roles = map[string]string{}
	}
	return &c, nil
}

// CreateCall inserts a placeholder record for an uploaded file and returns its ID
func (db *DB) CreateCall(ctx context.Context, filename, audioFilePath string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO calls (filename, audio_file_path)
		 VALUES ($1, $2)
		 RETURNING id`,
		filename, audioFilePath,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create call: %w", err)
	}
	return id, nil
}

// UpdateCallResults stores the transcript and analysis for a call.
// A previous tag override keeps precedence over the analyzed tags.
func (db *DB) UpdateCallResults(ctx context.Context, id uuid.UUID, transcript string, a *types.CallAnalysis) error {
	analysis := *a
	analysis.Normalize()

	result, err := db.pool.Exec(ctx,
		`UPDATE calls SET
			transcript = $2,
			summary = $3,
			tags_original = $4,
			tags = COALESCE(tags_override, $4),
			roles = $5,
			emotions = $6,
			intent = $7,
			mood = $8,
			insights = $9,
			updated_at = NOW()
		 WHERE id = $1`,
		id, transcript, analysis.Summary, analysis.Tags, analysis.Roles,
		analysis.Emotions, analysis.Intent, analysis.Mood, analysis.Insights,
	)
	if err != nil {
		return fmt.Errorf("failed to update call results: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	return nil
}

// UpdateCallTags overrides the tags of a call
func (db *DB) UpdateCallTags(ctx context.Context, id uuid.UUID, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE calls SET tags_override = $2, tags = $2, updated_at = NOW() WHERE id = $1`,
		id, tags,
	)
	if err != nil {
		return fmt.Errorf("failed to update call tags: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	return nil
}

// DeleteCall removes a call record
func (db *DB) DeleteCall(ctx context.Context, id uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete call: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	return nil
}

// GetCall retrieves a call by ID. Returns nil, nil if not found.
func (db *DB) GetCall(ctx context.Context, id uuid.UUID) (*Call, error) {
	c, err := scanCall(db.pool.QueryRow(ctx,
		`SELECT `+callColumns+` FROM calls WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return c, nil
}

// ListCalls retrieves calls matching the filters, newest first
func (db *DB) ListCalls(ctx context.Context, filters CallFilters) ([]Call, error) {
	query, args := buildListCallsQuery(filters)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	calls := []Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

// NormalizeLimit clamps a requested page size into the allowed range
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultCallLimit
	}
	if limit > MaxCallLimit {
		return MaxCallLimit
	}
	return limit
}

func buildListCallsQuery(filters CallFilters) (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	if filters.Tag != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", argNum))
		args = append(args, filters.Tag)
		argNum++
	}
	if filters.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("upload_timestamp >= $%d", argNum))
		args = append(args, *filters.StartDate)
		argNum++
	}
	if filters.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("upload_timestamp <= $%d", argNum))
		args = append(args, *filters.EndDate)
		argNum++
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	skip := filters.Skip
	if skip < 0 {
		skip = 0
	}
	query += fmt.Sprintf(" ORDER BY upload_timestamp DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, NormalizeLimit(filters.Limit), skip)

	return query, args
}

// GetCallAnalytics aggregates tag and transcript statistics across all calls
func (db *DB) GetCallAnalytics(ctx context.Context) (*CallAnalytics, error) {
	var total, totalTags, withTranscript int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(cardinality(tags)), 0),
			COUNT(*) FILTER (WHERE btrim(transcript) <> '')
		 FROM calls`,
	).Scan(&total, &totalTags, &withTranscript)
	if err != nil {
		return nil, fmt.Errorf("failed to compute call totals: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT tag, COUNT(*) FROM calls, unnest(tags) AS tag
		 GROUP BY tag
		 ORDER BY COUNT(*) DESC, tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute tag distribution: %w", err)
	}
	defer rows.Close()

	var dist []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		dist = append(dist, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return newCallAnalytics(total, totalTags, withTranscript, dist), nil
}

func newCallAnalytics(total, totalTags, withTranscript int, dist []TagCount) *CallAnalytics {
	a := &CallAnalytics{
		TotalCalls:             total,
		TotalTags:              totalTags,
		CallsWithTranscript:    withTranscript,
		CallsWithoutTranscript: total - withTranscript,
		TagDistribution:        dist,
	}
	if a.TagDistribution == nil {
		a.TagDistribution = []TagCount{}
	}
	if total > 0 {
		a.AverageTagsPerCall = float64(totalTags) / float64(total)
	}
	return a
}
