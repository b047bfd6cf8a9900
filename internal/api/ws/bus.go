package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/observability"
	"github.com/your-org/safety/pkg/dto"
)

const (
	subscriberBuffer = 64
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// Subscriber is one dashboard connection.
type Subscriber struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Bus fans recognition events out to every subscriber. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	subs     *Registry[*Subscriber]
	upgrader websocket.Upgrader
}

func NewBus(subs *Registry[*Subscriber], allowedOrigins []string) *Bus {
	return &Bus{
		subs:     subs,
		upgrader: newUpgrader(allowedOrigins),
	}
}

// Publish delivers a SUCCESS result with a resolved worker to all current
// subscribers and reports how many received it. Other results are dropped.
func (b *Bus) Publish(result models.RecognitionResult) int {
	if !result.Broadcastable() {
		return 0
	}
	data, err := json.Marshal(dto.EventFromResult(result))
	if err != nil {
		slog.Error("marshal recognition event", "error", err)
		return 0
	}

	delivered := 0
	for _, s := range b.subs.Snapshot() {
		select {
		case <-s.done:
		case s.send <- data:
			delivered++
			observability.BroadcastDelivered.Inc()
		default:
			observability.BroadcastDropped.Inc()
			slog.Debug("subscriber buffer full, event dropped", "subscriber_id", s.ID)
		}
	}
	return delivered
}

// PublishRecognition lets the bus stand in for the queue producer when no
// report channel is configured.
func (b *Bus) PublishRecognition(_ context.Context, result models.RecognitionResult) error {
	b.Publish(result)
	return nil
}

func (b *Bus) Subscribers() int {
	return b.subs.Len()
}

// HandleWS registers a subscriber for the lifetime of the connection.
func (b *Bus) HandleWS(c *gin.Context) {
	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("broadcast upgrade failed", "error", err)
		return
	}

	sub := &Subscriber{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}
	b.subs.Add(sub.ID, sub)
	observability.BroadcastSubscribers.Inc()
	slog.Debug("subscriber connected", "subscriber_id", sub.ID)

	go sub.writePump()
	sub.readPump()

	sub.close()
	b.subs.Remove(sub.ID)
	observability.BroadcastSubscribers.Dec()
	slog.Debug("subscriber disconnected", "subscriber_id", sub.ID)
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

// readPump only detects disconnects; subscribers never send anything we use.
func (s *Subscriber) readPump() {
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
