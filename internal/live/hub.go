// Package live pushes session events to browser clients over websockets.
package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/swing.report/internal/monitoring"
	"github.com/banshee-data/swing.report/internal/registry"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/timeutil"
)

var logf = monitoring.Component("live")

const (
	EventSessionStarted    = "session_started"
	EventSessionEnded      = "session_ended"
	EventReadingRecorded   = "reading_recorded"
	EventAnalysisCompleted = "analysis_completed"
	EventAnalysisFailed    = "analysis_failed"
)

// DefaultReadingInterval limits reading_recorded events per session.
const DefaultReadingInterval = 250 * time.Millisecond

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// Event is one message sent to clients.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // served on the court LAN
	},
}

type client struct {
	conn *websocket.Conn
	send chan Event
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans events out to every connected client. Slow clients miss events
// rather than stall publishers.
type Hub struct {
	Clock           timeutil.Clock
	ReadingInterval time.Duration

	clients *registry.Registry[string, *client]

	mu          sync.Mutex
	lastReading map[string]time.Time
}

func NewHub() *Hub {
	return &Hub{
		Clock:           timeutil.RealClock{},
		ReadingInterval: DefaultReadingInterval,
		clients:         registry.New[string, *client](),
		lastReading:     make(map[string]time.Time),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int { return h.clients.Len() }

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("websocket upgrade error: %v", err)
		return
	}
	id := uuid.NewString()
	c := &client{conn: conn, send: make(chan Event, sendBuffer), done: make(chan struct{})}
	h.clients.Register(id, c)
	logf("client %s connected (%d total)", id, h.clients.Len())

	go h.writeLoop(c)

	// clients never send anything we act on; reading detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.clients.Remove(id)
	c.close()
	logf("client %s disconnected", id)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for {
		select {
		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(e); err != nil {
				logf("websocket write error: %v", err)
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// Publish sends e to every client, stamping the time when unset.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = h.Clock.Now().UTC()
	}
	h.clients.Range(func(_ string, c *client) bool {
		select {
		case <-c.done:
		case c.send <- e:
		default:
		}
		return true
	})
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, id := range h.clients.Keys() {
		if c, ok := h.clients.Get(id); ok {
			h.clients.Remove(id)
			c.close()
		}
	}
}

func (h *Hub) SessionStarted(sessionID string, data any) {
	h.Publish(Event{Type: EventSessionStarted, SessionID: sessionID, Data: data})
}

func (h *Hub) SessionEnded(sessionID string, data any) {
	h.mu.Lock()
	delete(h.lastReading, sessionID)
	h.mu.Unlock()
	h.Publish(Event{Type: EventSessionEnded, SessionID: sessionID, Data: data})
}

// ReadingRecorded publishes at most one reading per session every
// ReadingInterval.
func (h *Hub) ReadingRecorded(sessionID string, r swing.SensorReading) {
	now := h.Clock.Now()
	h.mu.Lock()
	if last, ok := h.lastReading[sessionID]; ok && now.Sub(last) < h.ReadingInterval {
		h.mu.Unlock()
		return
	}
	h.lastReading[sessionID] = now
	h.mu.Unlock()
	h.Publish(Event{Type: EventReadingRecorded, SessionID: sessionID, Time: now.UTC(), Data: r})
}

// AnalysisFinished publishes analysis_completed, or analysis_failed when
// err is set.
func (h *Hub) AnalysisFinished(sessionID string, rep *swing.AnalysisReport, err error) {
	if err != nil {
		h.Publish(Event{Type: EventAnalysisFailed, SessionID: sessionID, Data: map[string]any{
			"error":  err.Error(),
			"report": rep,
		}})
		return
	}
	h.Publish(Event{Type: EventAnalysisCompleted, SessionID: sessionID, Data: rep})
}
