package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kealoha/emergency-alert-hub/internal/models"
)

func (s *SQLiteDB) ListActiveRecipients(ctx context.Context) ([]models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, home_latitude, home_longitude, alert_radius_miles, regions,
		       severity_threshold, quiet_hours_start, quiet_hours_end, plan
		FROM recipients WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("error listing recipients: %w", err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var (
			r          models.Recipient
			regions    sql.NullString
			threshold  string
			quietStart sql.NullInt64
			quietEnd   sql.NullInt64
			plan       string
		)
		if err := rows.Scan(
			&r.ID, &r.HomeLatitude, &r.HomeLongitude, &r.AlertRadiusMiles,
			&regions, &threshold, &quietStart, &quietEnd, &plan); err != nil {
			return nil, fmt.Errorf("error scanning recipient: %w", err)
		}
		r.SeverityThreshold = models.AlertSeverity(threshold)
		r.Plan = models.SubscriptionPlan(plan)
		r.Active = true
		if quietStart.Valid {
			h := int(quietStart.Int64)
			r.QuietHoursStart = &h
		}
		if quietEnd.Valid {
			h := int(quietEnd.Int64)
			r.QuietHoursEnd = &h
		}
		if err := unmarshalJSON(regions, &r.Regions); err != nil {
			return nil, fmt.Errorf("error decoding recipient regions: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

func (s *SQLiteDB) ListActiveZones(ctx context.Context) ([]models.Zone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, name, center_latitude, center_longitude,
		       radius_miles, polygon, severity_threshold, categories
		FROM zones WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("error listing zones: %w", err)
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var (
			z          models.Zone
			name       sql.NullString
			polygon    sql.NullString
			threshold  string
			categories sql.NullString
		)
		if err := rows.Scan(
			&z.ID, &z.RecipientID, &name, &z.CenterLatitude, &z.CenterLongitude,
			&z.RadiusMiles, &polygon, &threshold, &categories); err != nil {
			return nil, fmt.Errorf("error scanning zone: %w", err)
		}
		z.Name = name.String
		z.SeverityThreshold = models.AlertSeverity(threshold)
		z.Active = true
		if err := unmarshalJSON(polygon, &z.Polygon); err != nil {
			return nil, fmt.Errorf("error decoding zone polygon: %w", err)
		}
		if err := unmarshalJSON(categories, &z.Categories); err != nil {
			return nil, fmt.Errorf("error decoding zone categories: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

func (s *SQLiteDB) ActiveVerifiedChannels(ctx context.Context, recipientID string) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, channel_type, destination, severity_threshold, categories
		FROM channels WHERE recipient_id = ? AND is_active = 1 AND is_verified = 1`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("error listing channels for %s: %w", recipientID, err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var (
			c          models.Channel
			chType     string
			threshold  string
			categories sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.RecipientID, &chType, &c.Destination,
			&threshold, &categories); err != nil {
			return nil, fmt.Errorf("error scanning channel: %w", err)
		}
		c.Type = models.ChannelType(chType)
		c.SeverityThreshold = models.AlertSeverity(threshold)
		c.Verified = true
		c.Active = true
		if err := unmarshalJSON(categories, &c.Categories); err != nil {
			return nil, fmt.Errorf("error decoding channel categories: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

func (s *SQLiteDB) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, recipient_id, alert_id, channel, status, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RecipientID, d.AlertID, string(d.Channel), d.Status, d.Error, d.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("error recording delivery: %w", err)
	}
	return nil
}

// AddRecipient, AddZone and AddChannel exist for seeding and tests; the
// dispatch engine itself never writes recipient state.
func (s *SQLiteDB) AddRecipient(ctx context.Context, r *models.Recipient) error {
	regions, err := marshalJSON(r.Regions)
	if err != nil {
		return fmt.Errorf("error encoding regions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipients (id, home_latitude, home_longitude, alert_radius_miles,
			regions, severity_threshold, quiet_hours_start, quiet_hours_end, plan, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.HomeLatitude, r.HomeLongitude, r.AlertRadiusMiles,
		regions, string(r.SeverityThreshold), nullableInt(r.QuietHoursStart),
		nullableInt(r.QuietHoursEnd), string(r.Plan), r.Active)
	if err != nil {
		return fmt.Errorf("error adding recipient: %w", err)
	}
	return nil
}

func (s *SQLiteDB) AddZone(ctx context.Context, z *models.Zone) error {
	polygon, err := marshalJSON(z.Polygon)
	if err != nil {
		return fmt.Errorf("error encoding polygon: %w", err)
	}
	categories, err := marshalJSON(z.Categories)
	if err != nil {
		return fmt.Errorf("error encoding categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO zones (id, recipient_id, name, center_latitude, center_longitude,
			radius_miles, polygon, severity_threshold, categories, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		z.ID, z.RecipientID, z.Name, z.CenterLatitude, z.CenterLongitude,
		z.RadiusMiles, polygon, string(z.SeverityThreshold), categories, z.Active)
	if err != nil {
		return fmt.Errorf("error adding zone: %w", err)
	}
	return nil
}

func (s *SQLiteDB) AddChannel(ctx context.Context, c *models.Channel) error {
	categories, err := marshalJSON(c.Categories)
	if err != nil {
		return fmt.Errorf("error encoding categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO channels (id, recipient_id, channel_type, destination,
			is_verified, is_active, severity_threshold, categories)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.RecipientID, string(c.Type), c.Destination,
		c.Verified, c.Active, string(c.SeverityThreshold), categories)
	if err != nil {
		return fmt.Errorf("error adding channel: %w", err)
	}
	return nil
}

func (s *SQLiteDB) DeliveriesForAlert(ctx context.Context, alertID string) ([]models.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, alert_id, channel, status, error, sent_at
		FROM deliveries WHERE alert_id = ?`, alertID)
	if err != nil {
		return nil, fmt.Errorf("error listing deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []models.Delivery
	for rows.Next() {
		var (
			d      models.Delivery
			ch     string
			errMsg sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.RecipientID, &d.AlertID, &ch, &d.Status,
			&errMsg, &d.SentAt); err != nil {
			return nil, fmt.Errorf("error scanning delivery: %w", err)
		}
		d.Channel = models.ChannelType(ch)
		d.Error = errMsg.String
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
