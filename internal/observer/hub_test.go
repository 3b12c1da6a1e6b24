package observer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return NewHub(Config{Store: store.NewMemStore(), Cfg: cfg})
}

// newTestClient attaches a pumpless client with the given rooms and queue size.
func newTestClient(h *Hub, queueSize int, rooms ...string) *Client {
	roomSet := make(map[string]bool)
	for _, r := range rooms {
		roomSet[r] = true
	}
	c := &Client{
		send:  make(chan []byte, queueSize),
		rooms: roomSet,
	}
	h.register(c)
	return c
}

func drainOne(t *testing.T, c *Client) domain.NotificationEvent {
	t.Helper()
	select {
	case raw := <-c.send:
		var ev domain.NotificationEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return domain.NotificationEvent{}
	}
}

func TestBroadcast_RoomRouting(t *testing.T) {
	h := newTestHub(t)
	global := newTestClient(h, 10, RoomGlobal)
	scoped := newTestClient(h, 10, "workflow:wf-1")
	other := newTestClient(h, 10, "workflow:wf-2")

	h.Broadcast(&domain.NotificationEvent{
		Type:       domain.EventStatusChanged,
		WorkflowID: "wf-1",
		At:         time.Now(),
	})

	if ev := drainOne(t, global); ev.WorkflowID != "wf-1" {
		t.Error("global room must receive every event")
	}
	if ev := drainOne(t, scoped); ev.Type != domain.EventStatusChanged {
		t.Error("workflow room must receive its event")
	}

	select {
	case <-other.send:
		t.Error("unrelated room must not receive the event")
	default:
	}
}

func TestBroadcast_OverflowDropsOldestAndMarksLag(t *testing.T) {
	h := newTestHub(t)
	// Queue of 2: the third event overflows.
	c := newTestClient(h, 2, RoomGlobal)

	for i := 0; i < 3; i++ {
		h.Broadcast(&domain.NotificationEvent{
			Type:       domain.EventStatusChanged,
			WorkflowID: "wf-1",
			Payload:    map[string]any{"seq": i},
			At:         time.Now(),
		})
	}

	// The first overflow pushed out the two oldest events (seq 0 and 1) to
	// make room for the lag marker and the newest event.
	first := drainOne(t, c)
	if first.Type != domain.EventLag {
		t.Errorf("first drained = %s, want lag marker", first.Type)
	}
	second := drainOne(t, c)
	if second.Type != domain.EventStatusChanged {
		t.Errorf("second drained = %s, want the newest event", second.Type)
	}
	if got := second.Payload["seq"].(float64); got != 2 {
		t.Errorf("surviving seq = %v, want 2 (oldest dropped)", got)
	}
}

func TestRegisterUnregister(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, 4, RoomGlobal)

	if h.ClientCount() != 1 {
		t.Errorf("clients = %d, want 1", h.ClientCount())
	}
	h.unregister(c)
	if h.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0", h.ClientCount())
	}
	// Double unregister is a no-op.
	h.unregister(c)
}

func TestEventRooms(t *testing.T) {
	rooms := eventRooms(&domain.NotificationEvent{
		WorkflowID: "wf-9",
		Payload:    map[string]any{"recipient_scope": "analyst-7"},
	})

	want := map[string]bool{"global": true, "workflow:wf-9": true, "user:analyst-7": true}
	if len(rooms) != len(want) {
		t.Fatalf("rooms = %v", rooms)
	}
	for _, r := range rooms {
		if !want[r] {
			t.Errorf("unexpected room %s", r)
		}
	}
}

func TestParseRooms(t *testing.T) {
	rooms := parseRooms("workflow:a, user:b")
	if !rooms["workflow:a"] || !rooms["user:b"] {
		t.Errorf("rooms = %v", rooms)
	}
	if len(parseRooms("")) != 1 {
		t.Error("empty spec must default to global")
	}
	if !parseRooms("")[RoomGlobal] {
		t.Error("default room must be global")
	}
}
