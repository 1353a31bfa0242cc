package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeConn records writes; it can be told to start failing.
type fakeConn struct {
	mu       sync.Mutex
	writes   []Envelope
	closed   bool
	failNext bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return errors.New("broken pipe")
	}
	c.writes = append(c.writes, v.(Envelope))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) received() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.writes...)
}

func (c *fakeConn) typesSeen() []string {
	var types []string
	for _, e := range c.received() {
		types = append(types, e.Type)
	}
	return types
}

func TestHub_ConnectDisconnect(t *testing.T) {
	h := NewHub(nil)

	conns := make([]*fakeConn, 5)
	for i := range conns {
		conns[i] = &fakeConn{}
		h.Connect(fmt.Sprintf("s%d", i), "", conns[i])
	}

	stats := h.Stats()
	if stats.ActiveSessions != 5 {
		t.Errorf("expected 5 active sessions, got %d", stats.ActiveSessions)
	}
	if stats.TotalConnections != 5 {
		t.Errorf("expected 5 total connections, got %d", stats.TotalConnections)
	}

	// Every session got a greeting.
	for i, c := range conns {
		got := c.received()
		if len(got) != 1 || got[0].Type != "connection" {
			t.Errorf("session %d: expected connection greeting, got %v", i, c.typesSeen())
		}
	}

	for i := range conns {
		h.Disconnect(fmt.Sprintf("s%d", i))
	}

	stats = h.Stats()
	if stats.ActiveSessions != 0 {
		t.Errorf("expected 0 active sessions after disconnect, got %d", stats.ActiveSessions)
	}
	// Total is cumulative, not current.
	if stats.TotalConnections != 5 {
		t.Errorf("expected total to stay at 5, got %d", stats.TotalConnections)
	}
	for i, c := range conns {
		if !c.isClosed() {
			t.Errorf("session %d connection not closed", i)
		}
	}

	// Disconnecting an unknown id is a no-op.
	h.Disconnect("nonexistent")
}

func TestHub_BroadcastAll(t *testing.T) {
	h := NewHub(nil)

	a, b := &fakeConn{}, &fakeConn{}
	h.Connect("a", "", a)
	h.Connect("b", "", b)

	sent := h.BroadcastAll(map[string]string{"title": "test alert"})
	if sent != 2 {
		t.Errorf("expected 2 successful sends, got %d", sent)
	}

	for _, c := range []*fakeConn{a, b} {
		types := c.typesSeen()
		if len(types) != 2 || types[1] != "alert" {
			t.Errorf("expected [connection alert], got %v", types)
		}
	}
}

func TestHub_DeadConnectionTornDownOnBroadcast(t *testing.T) {
	h := NewHub(nil)

	healthy, dead := &fakeConn{}, &fakeConn{}
	h.Connect("healthy", "", healthy)
	h.Connect("dead", "", dead)
	dead.fail()

	sent := h.BroadcastAll("payload")
	if sent != 1 {
		t.Errorf("expected 1 successful send, got %d", sent)
	}

	stats := h.Stats()
	if stats.ActiveSessions != 1 {
		t.Errorf("expected dead session removed, have %d active", stats.ActiveSessions)
	}
	if !dead.isClosed() {
		t.Error("dead connection should be closed after write failure")
	}

	// A later broadcast reaches only the survivor without error.
	if sent := h.BroadcastAll("again"); sent != 1 {
		t.Errorf("expected 1 send on second broadcast, got %d", sent)
	}
}

func TestHub_RegionBroadcast(t *testing.T) {
	h := NewHub(nil)

	maui, hawaii, nowhere := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Connect("maui", "", maui)
	h.Connect("hawaii", "", hawaii)
	h.Connect("nowhere", "", nowhere)

	h.SubscribeRegion("maui", "Maui County")
	h.SubscribeRegion("hawaii", "Hawaii County")

	sent := h.BroadcastToRegion("Maui County", "surf warning")
	if sent != 1 {
		t.Errorf("expected 1 regional send, got %d", sent)
	}

	types := maui.typesSeen()
	if types[len(types)-1] != "alert" {
		t.Errorf("maui subscriber should have received the alert, saw %v", types)
	}
	for _, c := range []*fakeConn{hawaii, nowhere} {
		for _, e := range c.received() {
			if e.Type == "alert" {
				t.Error("non-subscriber received a regional alert")
			}
		}
	}

	// Subscribing an unknown session reports failure.
	if h.SubscribeRegion("ghost", "Maui County") {
		t.Error("expected false subscribing an unknown session")
	}
}

func TestHub_LocationBroadcast(t *testing.T) {
	h := NewHub(nil)

	near, off, none := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Connect("near", "", near)
	h.Connect("off", "", off)
	h.Connect("none", "", none)

	// Hilo and Honolulu; the third session never subscribes a location.
	h.SubscribeLocation("near", 19.7071, -155.0885)
	h.SubscribeLocation("off", 21.3069, -157.8583)

	sent := h.BroadcastToLocation(19.7102, -155.0856, DefaultLocationRadiusMiles, "eruption update")
	if sent != 1 {
		t.Errorf("expected 1 location send, got %d", sent)
	}

	types := near.typesSeen()
	if types[len(types)-1] != "alert" {
		t.Errorf("nearby subscriber should have received the alert, saw %v", types)
	}
	for _, e := range off.received() {
		if e.Type == "alert" {
			t.Error("distant subscriber received a location alert")
		}
	}

	// A wide enough radius reaches both subscribers, never the
	// location-less session.
	if sent := h.BroadcastToLocation(19.7102, -155.0856, 300, "tsunami watch"); sent != 2 {
		t.Errorf("expected 2 sends at 300 miles, got %d", sent)
	}
}

func TestHub_LocationBroadcastCrossesBucketBoundaries(t *testing.T) {
	h := NewHub(nil)

	c := &fakeConn{}
	h.Connect("s", "", c)
	h.SubscribeLocation("s", 19.71, -155.08)

	// Center under a mile away but in a different rounded coordinate
	// bucket; distance is what decides.
	sent := h.BroadcastToLocation(19.70, -155.08, DefaultLocationRadiusMiles, "lava advisory")
	if sent != 1 {
		t.Errorf("expected 1 send to a subscriber under a mile away, got %d", sent)
	}
}

func TestHub_LocationResubscribeReplaces(t *testing.T) {
	h := NewHub(nil)

	c := &fakeConn{}
	h.Connect("s", "", c)
	h.SubscribeLocation("s", 19.71, -155.09)
	h.SubscribeLocation("s", 21.31, -157.86)

	if got := h.Stats().LocationSubscriptions; got != 1 {
		t.Errorf("expected 1 location subscription after resubscribe, got %d", got)
	}

	// The abandoned location no longer reaches the session.
	if sent := h.BroadcastToLocation(19.71, -155.09, 25, "old"); sent != 0 {
		t.Errorf("expected 0 sends to the abandoned location, got %d", sent)
	}
	if sent := h.BroadcastToLocation(21.31, -157.86, 25, "new"); sent != 1 {
		t.Errorf("expected 1 send to the new location, got %d", sent)
	}
}

func TestHub_StatsTracking(t *testing.T) {
	h := NewHub(nil)

	conns := make([]*fakeConn, 3)
	for i := range conns {
		conns[i] = &fakeConn{}
		h.Connect(fmt.Sprintf("s%d", i), "", conns[i])
	}
	h.SubscribeRegion("s0", "Hawaii County")
	h.SubscribeRegion("s1", "Hawaii County")
	h.SubscribeRegion("s2", "Maui County")

	h.Disconnect("s1")
	h.Disconnect("s2")
	h.Connect("s3", "", &fakeConn{})

	stats := h.Stats()
	if stats.ActiveSessions != 2 {
		t.Errorf("expected 2 active sessions, got %d", stats.ActiveSessions)
	}
	// Peak was the three concurrent sessions before the disconnects.
	if stats.PeakConnections != 3 {
		t.Errorf("expected peak of 3, got %d", stats.PeakConnections)
	}
	if stats.TotalConnections != 4 {
		t.Errorf("expected 4 total connections, got %d", stats.TotalConnections)
	}
	if got := stats.Regions["Hawaii County"]; got != 1 {
		t.Errorf("expected 1 remaining Hawaii County subscriber, got %d", got)
	}
	if _, ok := stats.Regions["Maui County"]; ok {
		t.Error("expected Maui County dropped from the breakdown after its last subscriber left")
	}

	// Four greetings and four subscription acks were written so far.
	if stats.MessagesSent != 7 {
		t.Errorf("expected 7 messages sent, got %d", stats.MessagesSent)
	}
	h.BroadcastAll("payload")
	if got := h.Stats().MessagesSent; got != 9 {
		t.Errorf("expected 9 messages sent after broadcast to 2 sessions, got %d", got)
	}
}

func TestHub_AdminSessions(t *testing.T) {
	h := NewHub(nil)

	admin := &fakeConn{}
	h.ConnectAdmin("admin1", admin)

	got := admin.received()
	if len(got) != 1 || got[0].Type != "admin_connected" {
		t.Fatalf("expected admin_connected greeting, got %v", admin.typesSeen())
	}
	if got[0].Stats == nil {
		t.Fatal("admin greeting should carry stats")
	}

	// Client lifecycle events reach the admin.
	client := &fakeConn{}
	h.Connect("c1", "", client)
	h.Disconnect("c1")

	types := admin.typesSeen()
	want := []string{"admin_connected", "connection_event", "connection_event"}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}

	if h.Stats().AdminSessions != 1 {
		t.Errorf("expected 1 admin session, got %d", h.Stats().AdminSessions)
	}
	h.DisconnectAdmin("admin1")
	if h.Stats().AdminSessions != 0 {
		t.Errorf("expected 0 admin sessions, got %d", h.Stats().AdminSessions)
	}
}

func TestHub_BroadcastSummaryReachesAdmins(t *testing.T) {
	h := NewHub(nil)

	admin := &fakeConn{}
	h.ConnectAdmin("admin1", admin)

	c := &fakeConn{}
	h.Connect("c1", "", c)
	h.BroadcastAll("alert payload")

	types := admin.typesSeen()
	if types[len(types)-1] != "alert_broadcast" {
		t.Errorf("expected alert_broadcast summary, saw %v", types)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := NewHub(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n)
			h.Connect(id, "", &fakeConn{})
			h.SubscribeRegion(id, "Hawaii County")
			h.BroadcastToRegion("Hawaii County", n)
			h.Stats()
			h.Disconnect(id)
		}(i)
	}
	wg.Wait()

	if got := h.Stats().ActiveSessions; got != 0 {
		t.Errorf("expected 0 active sessions after churn, got %d", got)
	}
}
