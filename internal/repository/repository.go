package repository

import (
	"context"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/models"
)

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Limit       int
	Offset      int
	ActiveOnly  bool
	Severity    *models.AlertSeverity
	MinSeverity *models.AlertSeverity
	Category    *models.AlertCategory
	Region      string
	Since       *time.Time
}

// AlertRepository is the system of record for dedup and expiry state.
// UpsertByExternalID must be atomic per external id so concurrent source
// syncs never produce duplicate rows.
type AlertRepository interface {
	UpsertByExternalID(ctx context.Context, a *models.Alert) (created bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error)
	// MarkExpired flips active alerts whose expiry is before now to inactive
	// and returns how many rows changed. Alerts without an expiry are never
	// touched.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// RecipientRepository exposes the read-only recipient and zone views the
// dispatch engine needs. Attribute filtering happens here; geometry happens
// in the engine.
type RecipientRepository interface {
	ListActiveRecipients(ctx context.Context) ([]models.Recipient, error)
	ListActiveZones(ctx context.Context) ([]models.Zone, error)
}

// ChannelRepository reads delivery destinations and records outcomes.
type ChannelRepository interface {
	ActiveVerifiedChannels(ctx context.Context, recipientID string) ([]models.Channel, error)
	RecordDelivery(ctx context.Context, d *models.Delivery) error
}
