// Package fanout pushes notification change events to the live websocket
// sessions of their recipient.
//
// Delivery is best effort and at most once per session. Events are routed to
// a worker lane chosen by notification id, so every event for one
// notification is written to a given session in the order it was published.
// Events also carry the notification version, which lets clients discard
// anything stale that arrives through another path (e.g. the Redis bridge).
package fanout

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/metrics"
	"github.com/teamflow/notification-service/internal/model"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Conn is the part of *websocket.Conn a session needs.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	conn   Conn
	mu     sync.Mutex
	closed bool
}

func (s *Session) write(event model.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(event)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}

type Hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Session]struct{}
	lanes    []chan model.ChangeEvent
	closed   bool
	wg       sync.WaitGroup
}

func NewHub(logger *zap.Logger, workers, buffer int) *Hub {
	h := &Hub{
		logger:   logger,
		sessions: make(map[uuid.UUID]map[*Session]struct{}),
		lanes:    make([]chan model.ChangeEvent, workers),
	}

	for i := range h.lanes {
		h.lanes[i] = make(chan model.ChangeEvent, buffer)
		h.wg.Add(1)
		go h.deliveryWorker(h.lanes[i])
	}

	return h
}

func (h *Hub) laneFor(notificationID uuid.UUID) chan model.ChangeEvent {
	f := fnv.New32a()
	f.Write(notificationID[:])
	return h.lanes[f.Sum32()%uint32(len(h.lanes))]
}

// Publish never blocks; a full lane drops the event and the client recovers
// on its next list.
func (h *Hub) Publish(event model.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	select {
	case h.laneFor(event.NotificationID) <- event:
	default:
		metrics.FanoutDropped.WithLabelValues("lane_full").Inc()
		h.logger.Sugar().Warnf("fanout lane full, dropping %s event for notification(%s)", event.Kind, event.NotificationID.String())
	}
}

func (h *Hub) deliveryWorker(lane chan model.ChangeEvent) {
	defer h.wg.Done()
	for event := range lane {
		h.deliver(event)
	}
}

func (h *Hub) deliver(event model.ChangeEvent) {
	for _, s := range h.sessionsOf(event.RecipientID) {
		if err := s.write(event); err != nil {
			metrics.FanoutDropped.WithLabelValues("write_failed").Inc()
			h.logger.Sugar().Errorf("failed to write %s event to user(%s)'s session(%s): %s", event.Kind, s.UserID.String(), s.ID.String(), err.Error())
			h.Unregister(s)
			continue
		}
		metrics.FanoutDelivered.Inc()
	}
}

func (h *Hub) sessionsOf(userID uuid.UUID) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.sessions[userID]
	sessions := make([]*Session, 0, len(set))
	for s := range set {
		sessions = append(sessions, s)
	}
	return sessions
}

// Register adds a session and watches its read side; the session is dropped
// as soon as the peer goes away.
func (h *Hub) Register(userID uuid.UUID, conn Conn) *Session {
	s := &Session{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
	}

	h.mu.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*Session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
	h.mu.Unlock()
	metrics.FanoutSessions.Inc()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Unregister(s)
				return
			}
		}
	}()

	return s
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	set, ok := h.sessions[s.UserID]
	_, present := set[s]
	if ok && present {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()

	if present {
		metrics.FanoutSessions.Dec()
	}
	s.close()
}

func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Close stops the workers after draining queued events and closes every session.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, lane := range h.lanes {
		close(lane)
	}
	h.mu.Unlock()

	h.wg.Wait()

	h.mu.Lock()
	var sessions []*Session
	for _, set := range h.sessions {
		for s := range set {
			sessions = append(sessions, s)
		}
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Unregister(s)
	}
}
