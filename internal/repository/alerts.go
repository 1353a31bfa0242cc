package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
	"github.com/kealoha/emergency-alert-hub/internal/models"
)

// UpsertByExternalID inserts a new alert or overwrites the mutable fields of
// an existing row with the same external id. The ON CONFLICT clause keeps the
// write atomic per external id even with concurrent source syncs.
func (s *SQLiteDB) UpsertByExternalID(ctx context.Context, a *models.Alert) (bool, error) {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	polygon, err := marshalJSON(a.Polygon)
	if err != nil {
		return false, fmt.Errorf("error encoding polygon: %w", err)
	}
	regions, err := marshalJSON(a.AffectedRegions)
	if err != nil {
		return false, fmt.Errorf("error encoding regions: %w", err)
	}
	metadata, err := marshalJSON(a.Metadata)
	if err != nil {
		return false, fmt.Errorf("error encoding metadata: %w", err)
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM alerts WHERE external_id = ?`, a.ExternalID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		// insert path below
	case err != nil:
		return false, fmt.Errorf("error checking existing alert: %w", err)
	default:
		a.ID = existing
	}
	created := existing == ""

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, external_id, title, description, severity, category,
			location_name, latitude, longitude, radius_miles, polygon,
			affected_regions, effective_time, expires_time, source, source_url,
			metadata, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			severity = excluded.severity,
			category = excluded.category,
			location_name = excluded.location_name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			radius_miles = excluded.radius_miles,
			polygon = excluded.polygon,
			affected_regions = excluded.affected_regions,
			effective_time = excluded.effective_time,
			expires_time = excluded.expires_time,
			source = excluded.source,
			source_url = excluded.source_url,
			metadata = excluded.metadata,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		a.ID, a.ExternalID, a.Title, a.Description, string(a.Severity), string(a.Category),
		a.LocationName, a.Latitude, a.Longitude, a.RadiusMiles, polygon,
		regions, a.EffectiveTime.UTC(), nullableTime(a.ExpiresTime), a.Source, a.SourceURL,
		metadata, a.Active, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("error upserting alert %s: %w", a.ExternalID, err)
	}

	return created, nil
}

func (s *SQLiteDB) GetByExternalID(ctx context.Context, externalID string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, title, description, severity, category,
		       location_name, latitude, longitude, radius_miles, polygon,
		       affected_regions, effective_time, expires_time, source,
		       source_url, metadata, is_active, created_at, updated_at
		FROM alerts WHERE external_id = ?`, externalID)

	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading alert %s: %w", externalID, err)
	}
	return a, nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	query := `
		SELECT id, external_id, title, description, severity, category,
		       location_name, latitude, longitude, radius_miles, polygon,
		       affected_regions, effective_time, expires_time, source,
		       source_url, metadata, is_active, created_at, updated_at
		FROM alerts WHERE 1=1`
	var args []any

	if f.ActiveOnly {
		query += ` AND is_active = 1 AND (expires_time IS NULL OR expires_time > ?)`
		args = append(args, time.Now().UTC())
	}
	if f.Severity != nil {
		query += ` AND severity = ?`
		args = append(args, string(*f.Severity))
	}
	if f.Category != nil {
		query += ` AND category = ?`
		args = append(args, string(*f.Category))
	}
	if f.Region != "" {
		query += ` AND affected_regions LIKE ?`
		args = append(args, `%"`+f.Region+`"%`)
	}
	if f.Since != nil {
		query += ` AND effective_time >= ?`
		args = append(args, f.Since.UTC())
	}

	query += ` ORDER BY effective_time DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		if f.MinSeverity != nil && a.Severity.Rank() < f.MinSeverity.Rank() {
			continue
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteDB) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND expires_time IS NOT NULL AND expires_time < ?`,
		now.UTC(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("error expiring alerts: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a        models.Alert
		severity string
		category string
		polygon  sql.NullString
		regions  sql.NullString
		metadata sql.NullString
		expires  sql.NullTime
	)

	err := row.Scan(
		&a.ID, &a.ExternalID, &a.Title, &a.Description, &severity, &category,
		&a.LocationName, &a.Latitude, &a.Longitude, &a.RadiusMiles, &polygon,
		&regions, &a.EffectiveTime, &expires, &a.Source,
		&a.SourceURL, &metadata, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Severity = models.AlertSeverity(severity)
	a.Category = models.AlertCategory(category)
	if expires.Valid {
		t := expires.Time
		a.ExpiresTime = &t
	}
	if err := unmarshalJSON(polygon, &a.Polygon); err != nil {
		return nil, fmt.Errorf("error decoding polygon: %w", err)
	}
	if err := unmarshalJSON(regions, &a.AffectedRegions); err != nil {
		return nil, fmt.Errorf("error decoding regions: %w", err)
	}
	if err := unmarshalJSON(metadata, &a.Metadata); err != nil {
		return nil, fmt.Errorf("error decoding metadata: %w", err)
	}

	return &a, nil
}

func marshalJSON(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case geo.Polygon:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON(s sql.NullString, dest any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dest)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
