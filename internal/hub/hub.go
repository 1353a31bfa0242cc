// Package hub manages live client sessions and pushes alerts to them as
// they arrive. Sessions can narrow what they receive by subscribing to a
// location or to named regions; admin sessions receive operational events.
package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
	"github.com/kealoha/emergency-alert-hub/internal/observability"
)

// Conn is the transport side of a session. The websocket layer adapts its
// connections to this; tests substitute in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one live client connection.
type Session struct {
	ID          string
	RecipientID string
	ConnectedAt time.Time

	conn     Conn
	location *geo.Point
	regions  map[string]bool
}

// AdminSession is a monitoring connection that receives connection events
// and broadcast summaries rather than alerts.
type AdminSession struct {
	ID          string
	ConnectedAt time.Time

	conn Conn
}

// Envelope is the wire frame pushed to sessions.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Stats     *Stats    `json:"stats,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is a point-in-time summary of hub state. Regions breaks the region
// subscriptions down by name.
type Stats struct {
	ActiveSessions        int            `json:"active_sessions"`
	AdminSessions         int            `json:"admin_sessions"`
	TotalConnections      int            `json:"total_connections"`
	PeakConnections       int            `json:"peak_connections"`
	MessagesSent          int64          `json:"messages_sent"`
	LocationSubscriptions int            `json:"location_subscriptions"`
	RegionSubscriptions   int            `json:"region_subscriptions"`
	Regions               map[string]int `json:"regions"`
}

// Hub tracks live sessions and fans messages out to them.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	admins     map[string]*AdminSession
	byRegion   map[string]map[string]bool
	byLocation map[string]map[string]bool
	total      int
	peak       int

	messagesSent atomic.Int64

	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		admins:     make(map[string]*AdminSession),
		byRegion:   make(map[string]map[string]bool),
		byLocation: make(map[string]map[string]bool),
		metrics:    metrics,
	}
}

// locationKey buckets coordinates to two decimals so nearby subscribers
// share a broadcast group.
func locationKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

// Connect registers a session and greets it. The recipient id may be empty
// for anonymous listeners.
func (h *Hub) Connect(sessionID, recipientID string, conn Conn) *Session {
	s := &Session{
		ID:          sessionID,
		RecipientID: recipientID,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		regions:     make(map[string]bool),
	}

	h.mu.Lock()
	h.sessions[sessionID] = s
	h.total++
	if len(h.sessions) > h.peak {
		h.peak = len(h.sessions)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	slog.Info("session connected", "session", sessionID, "recipient", recipientID)

	h.write(s, Envelope{
		Type:      "connection",
		Data:      map[string]string{"session_id": sessionID, "status": "connected"},
		Timestamp: time.Now().UTC(),
	})
	h.notifyAdmins("connection_event", map[string]string{
		"event":      "connected",
		"session_id": sessionID,
	})
	return s
}

// Disconnect removes a session and all its subscriptions. Unknown ids are
// a no-op, so teardown after a write failure is safe to race with an
// explicit close.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	if s.location != nil {
		h.dropSubscription(h.byLocation, locationKey(s.location.Lat, s.location.Lon), sessionID)
	}
	for region := range s.regions {
		h.dropSubscription(h.byRegion, region, sessionID)
	}
	h.mu.Unlock()

	_ = s.conn.Close()
	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	slog.Info("session disconnected", "session", sessionID)

	h.notifyAdmins("connection_event", map[string]string{
		"event":      "disconnected",
		"session_id": sessionID,
	})
}

func (h *Hub) dropSubscription(index map[string]map[string]bool, key, sessionID string) {
	if members, ok := index[key]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(index, key)
		}
	}
}

// ConnectAdmin registers a monitoring session and sends it current stats.
func (h *Hub) ConnectAdmin(sessionID string, conn Conn) *AdminSession {
	a := &AdminSession{
		ID:          sessionID,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
	}

	h.mu.Lock()
	h.admins[sessionID] = a
	h.mu.Unlock()

	slog.Info("admin session connected", "session", sessionID)

	stats := h.Stats()
	if err := conn.WriteJSON(Envelope{
		Type:      "admin_connected",
		Stats:     &stats,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		h.DisconnectAdmin(sessionID)
	} else {
		h.messagesSent.Add(1)
	}
	return a
}

func (h *Hub) DisconnectAdmin(sessionID string) {
	h.mu.Lock()
	a, ok := h.admins[sessionID]
	if ok {
		delete(h.admins, sessionID)
	}
	h.mu.Unlock()

	if ok {
		_ = a.conn.Close()
		slog.Info("admin session disconnected", "session", sessionID)
	}
}

// SubscribeLocation points a session at a coordinate bucket, replacing any
// previous location subscription.
func (h *Hub) SubscribeLocation(sessionID string, lat, lon float64) bool {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if s.location != nil {
		h.dropSubscription(h.byLocation, locationKey(s.location.Lat, s.location.Lon), sessionID)
	}
	s.location = &geo.Point{Lat: lat, Lon: lon}
	key := locationKey(lat, lon)
	if h.byLocation[key] == nil {
		h.byLocation[key] = make(map[string]bool)
	}
	h.byLocation[key][sessionID] = true
	h.mu.Unlock()

	h.write(s, Envelope{
		Type:      "subscription",
		Data:      map[string]string{"kind": "location", "key": key},
		Timestamp: time.Now().UTC(),
	})
	return true
}

// SubscribeRegion adds a named region to a session's subscriptions.
func (h *Hub) SubscribeRegion(sessionID, region string) bool {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	s.regions[region] = true
	if h.byRegion[region] == nil {
		h.byRegion[region] = make(map[string]bool)
	}
	h.byRegion[region][sessionID] = true
	h.mu.Unlock()

	h.write(s, Envelope{
		Type:      "subscription",
		Data:      map[string]string{"kind": "region", "key": region},
		Timestamp: time.Now().UTC(),
	})
	return true
}

// Send writes an envelope to a single session.
func (h *Hub) Send(sessionID string, env Envelope) bool {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.write(s, env)
}

// BroadcastAll pushes an alert payload to every session and reports the
// broadcast to admins. Returns the number of successful writes.
func (h *Hub) BroadcastAll(data any) int {
	sent := h.broadcast(h.snapshotAll(), Envelope{
		Type:      "alert",
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	h.notifyAdmins("alert_broadcast", map[string]any{"recipients": sent})
	if h.metrics != nil {
		h.metrics.BroadcastsSent.Inc()
	}
	return sent
}

// BroadcastToRegion pushes to sessions subscribed to a region.
func (h *Hub) BroadcastToRegion(region string, data any) int {
	h.mu.RLock()
	targets := h.membersLocked(h.byRegion[region])
	h.mu.RUnlock()

	return h.broadcast(targets, Envelope{
		Type:      "alert",
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// DefaultLocationRadiusMiles is the broadcast reach callers use when no
// radius is given.
const DefaultLocationRadiusMiles = 25.0

// BroadcastToLocation pushes to sessions whose subscribed location lies
// within radiusMiles of the given center, by great-circle distance.
// Sessions without a location subscription are skipped.
func (h *Hub) BroadcastToLocation(lat, lon, radiusMiles float64, data any) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.location == nil {
			continue
		}
		if geo.DistanceMiles(lat, lon, s.location.Lat, s.location.Lon) <= radiusMiles {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	return h.broadcast(targets, Envelope{
		Type:      "alert",
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// Pong answers a client ping.
func (h *Hub) Pong(sessionID string) {
	h.Send(sessionID, Envelope{Type: "pong", Timestamp: time.Now().UTC()})
}

// Stats reports current hub state.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	locSubs := 0
	for _, members := range h.byLocation {
		locSubs += len(members)
	}
	regionSubs := 0
	regions := make(map[string]int, len(h.byRegion))
	for region, members := range h.byRegion {
		regionSubs += len(members)
		regions[region] = len(members)
	}
	return Stats{
		ActiveSessions:        len(h.sessions),
		AdminSessions:         len(h.admins),
		TotalConnections:      h.total,
		PeakConnections:       h.peak,
		MessagesSent:          h.messagesSent.Load(),
		LocationSubscriptions: locSubs,
		RegionSubscriptions:   regionSubs,
		Regions:               regions,
	}
}

func (h *Hub) snapshotAll() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *Hub) membersLocked(ids map[string]bool) []*Session {
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if s, ok := h.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// broadcast writes outside the lock; sessions whose write fails are torn
// down so a dead connection cannot wedge future broadcasts.
func (h *Hub) broadcast(targets []*Session, env Envelope) int {
	sent := 0
	for _, s := range targets {
		if h.write(s, env) {
			sent++
		}
	}
	return sent
}

// write delivers one envelope and disconnects the session on failure.
func (h *Hub) write(s *Session, env Envelope) bool {
	if err := s.conn.WriteJSON(env); err != nil {
		slog.Warn("write failed, removing session", "session", s.ID, "error", err)
		h.Disconnect(s.ID)
		return false
	}
	h.messagesSent.Add(1)
	return true
}

// notifyAdmins pushes an event to every admin session, best effort.
func (h *Hub) notifyAdmins(eventType string, data any) {
	h.mu.RLock()
	admins := make([]*AdminSession, 0, len(h.admins))
	for _, a := range h.admins {
		admins = append(admins, a)
	}
	h.mu.RUnlock()

	env := Envelope{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
	for _, a := range admins {
		if err := a.conn.WriteJSON(env); err != nil {
			slog.Warn("admin write failed, removing session", "session", a.ID, "error", err)
			h.DisconnectAdmin(a.ID)
			continue
		}
		h.messagesSent.Add(1)
	}
}
