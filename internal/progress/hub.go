package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/call-transcriber/internal/metrics"
)

const (
	// DefaultSubscriberBuffer is the number of events queued per observer
	DefaultSubscriberBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Upgrader configures websocket connections for progress observers
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscription is one observer attached to one channel
type Subscription struct {
	hub     *Hub
	channel string
	events  chan Event
	once    sync.Once
}

// Events returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Channel returns the channel name this subscription listens on
func (s *Subscription) Channel() string {
	return s.channel
}

// Close detaches the subscription from the hub
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub is an in-process pub/sub of progress events for websocket and SSE observers.
// Observers that fall behind by more than the buffer are disconnected.
type Hub struct {
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	bufferSize int

	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub
func NewHub(logger *logrus.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		logger:      logger,
		metrics:     m,
		bufferSize:  DefaultSubscriberBuffer,
		subscribers: make(map[string]map[*Subscription]struct{}),
	}
}

// Name returns the sink name
func (h *Hub) Name() string {
	return "websocket"
}

// Subscribe attaches a new observer to channel
func (h *Hub) Subscribe(channel string) *Subscription {
	if channel == "" {
		channel = GlobalChannel
	}
	sub := &Subscription{
		hub:     h,
		channel: channel,
		events:  make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	subs, ok := h.subscribers[channel]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.subscribers[channel] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.logger.WithField("channel", channel).Debug("Progress observer subscribed")
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if subs, ok := h.subscribers[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, sub.channel)
		}
	}
	close(sub.events)
	h.mu.Unlock()

	h.metrics.ClientDisconnected()
	h.logger.WithField("channel", sub.channel).Debug("Progress observer unsubscribed")
}

// Emit delivers the event to every subscriber of channel without blocking
func (h *Hub) Emit(channel string, event Event) error {
	var slow []*Subscription

	h.mu.RLock()
	for sub := range h.subscribers[channel] {
		select {
		case sub.events <- event:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.WithField("channel", channel).Warn("Disconnecting slow progress observer")
		sub.Close()
	}
	return nil
}

// SubscriberCount returns the number of observers on channel
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}

// Close disconnects every observer
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Subscription
	for _, subs := range h.subscribers {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range all {
		sub.Close()
	}
}

// ServeWs upgrades the request and streams events for the session_id query
// parameter, or the global channel when it is absent.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	sub := h.Subscribe(r.URL.Query().Get("session_id"))
	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

// readPump discards client frames and ends the subscription when the peer goes away
func (h *Hub) readPump(conn *websocket.Conn, sub *Subscription) {
	defer sub.Close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("Progress websocket closed unexpectedly")
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				sub.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.Close()
				return
			}
		}
	}
}
