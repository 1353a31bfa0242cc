package notify

import "github.com/kealoha/emergency-alert-hub/internal/models"

// Feature names checked against a recipient's entitlements.
type Feature string

const (
	FeatureNotifications Feature = "notifications"
	FeatureSMS           Feature = "sms"
	FeatureVoice         Feature = "voice"
)

// EntitlementChecker decides whether a recipient's plan permits a feature.
type EntitlementChecker interface {
	Permits(r *models.Recipient, f Feature) bool
}

// PlanEntitlements derives entitlements from the subscription tier: free
// recipients get no outbound channels at all, standard adds email and SMS,
// premium adds voice.
type PlanEntitlements struct{}

func (PlanEntitlements) Permits(r *models.Recipient, f Feature) bool {
	switch r.Plan {
	case models.PlanPremium:
		return true
	case models.PlanStandard:
		return f == FeatureNotifications || f == FeatureSMS
	default:
		return false
	}
}
