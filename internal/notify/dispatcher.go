// Package notify implements the dispatch engine that resolves which
// recipients are affected by an alert and fans a notification out across
// their eligible channels.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
	"github.com/kealoha/emergency-alert-hub/internal/models"
	"github.com/kealoha/emergency-alert-hub/internal/observability"
	"github.com/kealoha/emergency-alert-hub/internal/repository"
	"github.com/kealoha/emergency-alert-hub/internal/worker"
)

// Outcome is one channel send result. Dispatch returns an outcome per
// attempted (recipient, channel) pair; it never returns an error for send
// failures.
type Outcome struct {
	RecipientID string
	ChannelID   string
	Channel     models.ChannelType
	OK          bool
	Error       string
}

// Dispatcher resolves affected recipients and sends through their channels.
type Dispatcher struct {
	recipients   repository.RecipientRepository
	channels     repository.ChannelRepository
	entitlements EntitlementChecker
	senders      map[models.ChannelType]Sender
	pool         *worker.Pool
	clock        clockwork.Clock
	quietZone    *time.Location
	fromAddress  string
	metrics      *observability.Metrics
}

func NewDispatcher(
	recipients repository.RecipientRepository,
	channels repository.ChannelRepository,
	entitlements EntitlementChecker,
	senders map[models.ChannelType]Sender,
	pool *worker.Pool,
	quietZone *time.Location,
	fromAddress string,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		recipients:   recipients,
		channels:     channels,
		entitlements: entitlements,
		senders:      senders,
		pool:         pool,
		clock:        clockwork.NewRealClock(),
		quietZone:    quietZone,
		fromAddress:  fromAddress,
		metrics:      metrics,
	}
}

// SetClock swaps the time source used for quiet-hours evaluation.
func (d *Dispatcher) SetClock(c clockwork.Clock) {
	d.clock = c
}

// Dispatch resolves the affected recipient set for an alert, applies the
// eligibility filter chain, and sends through every surviving channel
// concurrently. One channel failure never aborts sibling sends.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) []Outcome {
	candidates, err := d.resolveAffected(ctx, alert)
	if err != nil {
		slog.Error("error resolving affected recipients", "alert", alert.ExternalID, "error", err)
		return nil
	}
	if len(candidates) == 0 {
		slog.Debug("no recipients affected", "alert", alert.ExternalID)
		return nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes []Outcome
	)

	for _, recipient := range candidates {
		if !d.eligible(alert, recipient) {
			continue
		}

		channels, err := d.channels.ActiveVerifiedChannels(ctx, recipient.ID)
		if err != nil {
			slog.Error("error loading channels", "recipient", recipient.ID, "error", err)
			continue
		}

		for _, channel := range channels {
			if !d.channelAccepts(alert, recipient, channel) {
				continue
			}

			wg.Add(1)
			task := func(taskCtx context.Context) {
				defer wg.Done()
				out := d.send(taskCtx, alert, recipient, channel)
				mu.Lock()
				outcomes = append(outcomes, out)
				mu.Unlock()
			}
			if d.pool != nil {
				d.pool.Submit(task)
			} else {
				go task(ctx)
			}
		}
	}

	wg.Wait()

	slog.Info("dispatch complete", "alert", alert.ExternalID,
		"candidates", len(candidates), "sends", len(outcomes))
	return outcomes
}

// resolveAffected returns the union of recipients matched by home location,
// custom zone, or region subscription. A recipient reached by multiple routes
// appears once.
func (d *Dispatcher) resolveAffected(ctx context.Context, alert *models.Alert) (map[string]*models.Recipient, error) {
	recipients, err := d.recipients.ListActiveRecipients(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Recipient, len(recipients))
	for i := range recipients {
		byID[recipients[i].ID] = &recipients[i]
	}

	shape := alert.Shape()
	affected := make(map[string]*models.Recipient)

	// Home location within the combined alert + personal radius.
	for i := range recipients {
		r := &recipients[i]
		if r.HomeLatitude == nil || r.HomeLongitude == nil {
			continue
		}
		if geo.WithinRadius(shape, *r.HomeLatitude, *r.HomeLongitude, r.AlertRadiusMiles) {
			affected[r.ID] = r
		}
	}

	// Custom zones, each with its own geometry and filters.
	zones, err := d.recipients.ListActiveZones(ctx)
	if err != nil {
		return nil, err
	}
	for _, z := range zones {
		if _, ok := affected[z.RecipientID]; ok {
			continue
		}
		owner, ok := byID[z.RecipientID]
		if !ok {
			continue
		}
		if zoneMatches(alert, shape, &z) {
			affected[owner.ID] = owner
		}
	}

	// Region subscriptions intersecting the alert's regions.
	if len(alert.AffectedRegions) > 0 {
		alertRegions := make(map[string]bool, len(alert.AffectedRegions))
		for _, region := range alert.AffectedRegions {
			alertRegions[region] = true
		}
		for i := range recipients {
			r := &recipients[i]
			if _, ok := affected[r.ID]; ok {
				continue
			}
			for _, region := range r.Regions {
				if alertRegions[region] {
					affected[r.ID] = r
					break
				}
			}
		}
	}

	return affected, nil
}

func zoneMatches(alert *models.Alert, shape geo.Shape, z *models.Zone) bool {
	if z.SeverityThreshold != "" && alert.Severity.Rank() < z.SeverityThreshold.Rank() {
		return false
	}
	if len(z.Categories) > 0 && !containsString(z.Categories, string(alert.Category)) {
		return false
	}

	if len(z.Polygon) > 0 {
		return geo.IntersectsPolygon(shape, z.Polygon)
	}
	if z.CenterLatitude != nil && z.CenterLongitude != nil {
		return geo.WithinRadius(shape, *z.CenterLatitude, *z.CenterLongitude, z.RadiusMiles)
	}
	return false
}

// eligible applies the recipient-level filter chain in order, short-circuiting
// on the first failure: entitlement, severity threshold, quiet hours.
func (d *Dispatcher) eligible(alert *models.Alert, r *models.Recipient) bool {
	if !d.entitlements.Permits(r, FeatureNotifications) {
		return false
	}
	if alert.Severity.Rank() < r.SeverityThreshold.Rank() {
		return false
	}
	// Quiet hours suppress all sends, extreme alerts included.
	if d.inQuietHours(r) {
		return false
	}
	return true
}

// inQuietHours checks the recipient-local hour against the quiet window,
// handling windows that wrap past midnight.
func (d *Dispatcher) inQuietHours(r *models.Recipient) bool {
	if r.QuietHoursStart == nil || r.QuietHoursEnd == nil {
		return false
	}

	hour := d.clock.Now().In(d.quietZone).Hour()
	start, end := *r.QuietHoursStart, *r.QuietHoursEnd

	if start > end {
		return hour >= start || hour < end
	}
	return start <= hour && hour < end
}

// channelAccepts applies channel-level filters: per-channel severity and
// category overrides, channel-type entitlements, and the severe/extreme
// restriction on voice calls.
func (d *Dispatcher) channelAccepts(alert *models.Alert, r *models.Recipient, c models.Channel) bool {
	if c.SeverityThreshold != "" && alert.Severity.Rank() < c.SeverityThreshold.Rank() {
		return false
	}
	if len(c.Categories) > 0 && !containsString(c.Categories, string(alert.Category)) {
		return false
	}

	switch c.Type {
	case models.ChannelSMS:
		if !d.entitlements.Permits(r, FeatureSMS) {
			return false
		}
	case models.ChannelVoice:
		if !d.entitlements.Permits(r, FeatureVoice) {
			return false
		}
		if alert.Severity != models.SeveritySevere && alert.Severity != models.SeverityExtreme {
			return false
		}
	}
	return true
}

// send delivers through one channel and records the outcome. Failures are
// recorded and logged, never propagated.
func (d *Dispatcher) send(ctx context.Context, alert *models.Alert, r *models.Recipient, c models.Channel) Outcome {
	sender, ok := d.senders[c.Type]
	if !ok {
		sender = LogSender{Channel: c.Type}
	}

	msg := RenderMessage(alert, c.Type, d.fromAddress)
	err := sender.Send(ctx, c.Destination, msg)

	out := Outcome{
		RecipientID: r.ID,
		ChannelID:   c.ID,
		Channel:     c.Type,
		OK:          err == nil,
	}
	status := "sent"
	if err != nil {
		out.Error = err.Error()
		status = "failed"
		slog.Error("channel send failed", "recipient", r.ID, "channel", c.Type, "error", err)
	}
	if d.metrics != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(c.Type), status).Inc()
	}

	delivery := &models.Delivery{
		RecipientID: r.ID,
		AlertID:     alert.ID,
		Channel:     c.Type,
		Status:      status,
		Error:       out.Error,
		SentAt:      d.clock.Now().UTC(),
	}
	if err := d.channels.RecordDelivery(ctx, delivery); err != nil {
		slog.Error("error recording delivery", "recipient", r.ID, "channel", c.Type, "error", err)
	}

	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
