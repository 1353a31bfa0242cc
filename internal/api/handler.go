package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kealoha/emergency-alert-hub/internal/hub"
	"github.com/kealoha/emergency-alert-hub/internal/models"
	"github.com/kealoha/emergency-alert-hub/internal/repository"
)

// Syncer is the scheduler surface the admin endpoints need.
type Syncer interface {
	ForceSync()
	State() string
}

type Handler struct {
	repo   repository.AlertRepository
	hub    *hub.Hub
	syncer Syncer
}

func NewHandler(repo repository.AlertRepository, h *hub.Hub, syncer Syncer) *Handler {
	return &Handler{
		repo:   repo,
		hub:    h,
		syncer: syncer,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/alerts", h.getAlerts)
	r.GET("/health", h.health)
	r.POST("/api/admin/sync", h.forceSync)
	r.GET("/api/admin/stats", h.stats)
	r.POST("/api/debug/test-alert", h.createTestAlert)
}

func (h *Handler) getAlerts(c *gin.Context) {
	filter := repository.AlertFilter{
		Limit:      20, // Default to 20 alerts if limit param not supplied
		ActiveOnly: true,
	}

	if c.Query("include_inactive") == "true" {
		filter.ActiveOnly = false
	}
	if s := c.Query("severity"); s != "" {
		if sev, ok := parseSeverity(s); ok {
			filter.Severity = &sev
		}
	}
	if ms := c.Query("min_severity"); ms != "" {
		if sev, ok := parseSeverity(ms); ok {
			filter.MinSeverity = &sev
		}
	}
	if ct := c.Query("category"); ct != "" {
		if cat, ok := parseCategory(ct); ok {
			filter.Category = &cat
		}
	}
	if region := c.Query("region"); region != "" {
		filter.Region = region
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	alerts, err := h.repo.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}

	fc := toGeoJSON(alerts)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) forceSync(c *gin.Context) {
	h.syncer.ForceSync()
	c.JSON(http.StatusAccepted, gin.H{
		"message": "sync requested",
		"state":   h.syncer.State(),
	})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sync_state":  h.syncer.State(),
		"connections": h.hub.Stats(),
	})
}

func (h *Handler) createTestAlert(c *gin.Context) {
	lat, lon := 19.4069, -155.2834
	alert := &models.Alert{
		ID:              fmt.Sprintf("test_%d", time.Now().UnixNano()),
		ExternalID:      fmt.Sprintf("test_%d", time.Now().UnixNano()),
		Title:           "Test Alert - M7.5 Earthquake",
		Description:     "This is a test alert for debugging",
		Severity:        models.SeverityExtreme,
		Category:        models.CategoryEarthquake,
		LocationName:    "Kilauea summit region",
		Latitude:        &lat,
		Longitude:       &lon,
		RadiusMiles:     200,
		AffectedRegions: []string{"Hawaii County"},
		EffectiveTime:   time.Now(),
		Source:          "TEST",
		CreatedAt:       time.Now(),
		Active:          true,
	}

	// Broadcast only - don't persist test data to DB
	sent := h.hub.BroadcastAll(alert)

	c.JSON(http.StatusOK, gin.H{
		"message":    "test alert broadcast (not persisted)",
		"id":         alert.ID,
		"recipients": sent,
	})
}

func parseSeverity(s string) (models.AlertSeverity, bool) {
	switch strings.ToLower(s) {
	case "minor":
		return models.SeverityMinor, true
	case "moderate":
		return models.SeverityModerate, true
	case "severe":
		return models.SeveritySevere, true
	case "extreme":
		return models.SeverityExtreme, true
	default:
		return "", false
	}
}

func parseCategory(s string) (models.AlertCategory, bool) {
	switch strings.ToLower(s) {
	case "weather":
		return models.CategoryWeather, true
	case "earthquake":
		return models.CategoryEarthquake, true
	case "tsunami":
		return models.CategoryTsunami, true
	case "volcano":
		return models.CategoryVolcano, true
	case "wildfire":
		return models.CategoryWildfire, true
	case "flood":
		return models.CategoryFlood, true
	case "hurricane":
		return models.CategoryHurricane, true
	case "marine":
		return models.CategoryMarine, true
	case "security":
		return models.CategorySecurity, true
	case "civil":
		return models.CategoryCivil, true
	case "health":
		return models.CategoryHealth, true
	case "other":
		return models.CategoryOther, true
	default:
		return "", false
	}
}
