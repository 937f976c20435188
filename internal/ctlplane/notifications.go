package ctlplane

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"grimm.is/linkpath/internal/logging"
)

// Event is a single notification pushed to subscribers. Server publishes
// three kinds: "link_added", "link_deleted" and "quality_set"; reachability
// flips and policy/attachment changes are not published. It carries just
// enough to let a subscriber decide whether to re-poll the RPC surface, it
// is not a full state snapshot.
type Event struct {
	Kind        string `json:"kind"`
	InterfaceID uint32 `json:"interface_id,omitempty"`
	Label       uint8  `json:"label,omitempty"`
	PolicyID    uint32 `json:"policy_id,omitempty"`
}

// NotificationHub fans Events out to websocket subscribers, generalizing the
// teacher's internal/ctlplane/notifications.go hub from firewall-rule-change
// events to this engine's link and quality events. It never sits in the
// datapath's critical section: Publish is called only from control-plane
// RPC handlers (LinkAdd, LinkDel, QualitySet), never from Node.Process.
type NotificationHub struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	log *logging.Logger
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// NewNotificationHub builds an empty hub.
func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
		log:  logging.WithComponent("ctlplane.notifications"),
	}
}

// Publish fans out an event to every connected subscriber. Slow subscribers
// are dropped rather than allowed to block the publisher: the send channel
// is buffered and a full channel causes the event to be skipped for that
// subscriber only.
func (h *NotificationHub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- evt:
		default:
			h.log.Warn("notification subscriber slow, dropping event", "kind", evt.Kind)
		}
	}
}

// ServeHTTP upgrades the connection to a websocket and streams Events to it
// until the client disconnects.
func (h *NotificationHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan Event, 32)}
	h.addSubscriber(sub)
	defer h.removeSubscriber(sub)

	// Drain any client-sent frames so the connection's read deadline
	// machinery notices disconnects; we don't expect inbound messages.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.removeSubscriber(sub)
				_ = conn.Close()
				return
			}
		}
	}()

	for evt := range sub.send {
		b, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (h *NotificationHub) addSubscriber(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *NotificationHub) removeSubscriber(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}
