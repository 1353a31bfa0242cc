package models

import (
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
)

type SubscriptionPlan string

const (
	PlanFree     SubscriptionPlan = "free"
	PlanStandard SubscriptionPlan = "standard"
	PlanPremium  SubscriptionPlan = "premium"
)

// Recipient is a person who can receive alert notifications. The dispatch
// engine reads recipients; it never mutates them.
type Recipient struct {
	ID string

	HomeLatitude     *float64
	HomeLongitude    *float64
	AlertRadiusMiles float64
	Regions          []string // subscribed region names, e.g. counties

	SeverityThreshold AlertSeverity
	QuietHoursStart   *int // hour of day, recipient-local
	QuietHoursEnd     *int

	Plan   SubscriptionPlan
	Active bool
}

type ChannelType string

const (
	ChannelEmail ChannelType = "email"
	ChannelSMS   ChannelType = "sms"
	ChannelVoice ChannelType = "voice"
)

// Channel is a recipient-owned notification destination. Only active and
// verified channels are ever considered for delivery.
type Channel struct {
	ID          string
	RecipientID string
	Type        ChannelType
	Destination string
	Verified    bool
	Active      bool

	// Optional per-channel overrides; empty means inherit the recipient's.
	SeverityThreshold AlertSeverity
	Categories        []string
}

// Zone is a recipient-defined custom geofence, consulted in addition to the
// home location: point+radius or polygon, with its own filters.
type Zone struct {
	ID          string
	RecipientID string
	Name        string

	CenterLatitude  *float64
	CenterLongitude *float64
	RadiusMiles     float64
	Polygon         geo.Polygon

	SeverityThreshold AlertSeverity
	Categories        []string
	Active            bool
}

// Delivery records one channel send outcome for auditing and admin counts.
type Delivery struct {
	ID          string
	RecipientID string
	AlertID     string
	Channel     ChannelType
	Status      string // sent | failed
	Error       string
	SentAt      time.Time
}
