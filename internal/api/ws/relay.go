// Package ws serves the two WebSocket surfaces: the per-connection frame
// relay and the recognition broadcast to dashboard observers.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/observability"
	"github.com/your-org/safety/pkg/dto"
)

const writeWait = 10 * time.Second

type Recognizer interface {
	RecognizeFrame(ctx context.Context, image []byte) (models.RecognitionResult, error)
}

// Reporter receives SUCCESS results seen by the relay.
type Reporter interface {
	PublishRecognition(ctx context.Context, result models.RecognitionResult) error
}

type SessionState int32

const (
	StateOpen SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Session is one frame sender connection.
type Session struct {
	ID        string
	Remote    string
	StartedAt time.Time

	conn   *websocket.Conn
	state  atomic.Int32
	frames atomic.Int64
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) Frames() int64 {
	return s.frames.Load()
}

type RelayConfig struct {
	MaxFrameBytes  int64
	AllowedOrigins []string
	Source         string
}

type Relay struct {
	recognizer Recognizer
	reporter   Reporter
	sessions   *Registry[*Session]
	upgrader   websocket.Upgrader
	cfg        RelayConfig
}

// NewRelay builds the frame relay. reporter may be nil.
func NewRelay(recognizer Recognizer, reporter Reporter, sessions *Registry[*Session], cfg RelayConfig) *Relay {
	if cfg.Source == "" {
		cfg.Source = "gate"
	}
	return &Relay{
		recognizer: recognizer,
		reporter:   reporter,
		sessions:   sessions,
		upgrader:   newUpgrader(cfg.AllowedOrigins),
		cfg:        cfg,
	}
}

// HandleWS upgrades the request and runs the session until the peer goes away.
func (r *Relay) HandleWS(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("relay upgrade failed", "error", err)
		return
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Remote:    c.ClientIP(),
		StartedAt: time.Now(),
		conn:      conn,
	}
	sess.state.Store(int32(StateOpen))
	r.sessions.Add(sess.ID, sess)
	observability.RelaySessions.Inc()
	slog.Info("relay session opened", "session_id", sess.ID, "remote", sess.Remote)

	defer func() {
		sess.state.Store(int32(StateClosed))
		r.sessions.Remove(sess.ID)
		observability.RelaySessions.Dec()
		conn.Close()
		slog.Info("relay session closed", "session_id", sess.ID, "frames", sess.Frames())
	}()

	sess.state.Store(int32(StateActive))
	r.serve(sess)
}

var errFrameTooLarge = errors.New("frame too large")

func (r *Relay) serve(sess *Session) {
	for {
		msgType, rd, err := sess.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("relay read failed", "session_id", sess.ID, "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			observability.FramesReceived.WithLabelValues("ignored").Inc()
			continue
		}
		data, err := readFrame(rd, r.cfg.MaxFrameBytes)
		if errors.Is(err, errFrameTooLarge) {
			observability.FramesReceived.WithLabelValues("oversize").Inc()
			slog.Warn("oversize frame rejected", "session_id", sess.ID, "limit", r.cfg.MaxFrameBytes)
			r.reply(sess, dto.FrameReply{
				Status:  string(models.RecognitionError),
				Message: fmt.Sprintf("frame exceeds %d bytes", r.cfg.MaxFrameBytes),
			})
			continue
		}
		if err != nil {
			slog.Warn("relay read failed", "session_id", sess.ID, "error", err)
			return
		}
		if len(data) == 0 {
			observability.FramesReceived.WithLabelValues("empty").Inc()
			slog.Warn("empty frame ignored", "session_id", sess.ID)
			continue
		}
		observability.FramesReceived.WithLabelValues("accepted").Inc()
		sess.frames.Add(1)

		r.reply(sess, r.recognize(sess, data))
	}
}

// readFrame reads one message up to limit bytes. The unread rest of an
// oversize message is discarded by the next NextReader call.
func readFrame(rd io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(rd)
	}
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errFrameTooLarge
	}
	return data, nil
}

// reply never ends the session; a failed write is counted and logged.
func (r *Relay) reply(sess *Session, reply dto.FrameReply) {
	if err := sess.send(reply); err != nil {
		observability.ReplyFailures.Inc()
		slog.Warn("relay reply failed", "session_id", sess.ID, "error", err)
	}
}

// recognize runs one backend call. The call is not tied to the connection:
// a peer that disconnects mid-call does not abort it.
func (r *Relay) recognize(sess *Session, frame []byte) dto.FrameReply {
	result, err := r.recognizer.RecognizeFrame(context.Background(), frame)
	if err != nil {
		slog.Error("frame recognition failed", "session_id", sess.ID, "error", err)
		result = models.RecognitionResult{
			Status:  models.RecognitionError,
			Message: "recognition backend unavailable",
		}
	}
	observability.RecognitionResults.WithLabelValues(string(result.Status)).Inc()

	if result.Broadcastable() && r.reporter != nil {
		result.Source = r.cfg.Source
		if result.Timestamp.IsZero() {
			result.Timestamp = time.Now()
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := r.reporter.PublishRecognition(ctx, result); err != nil {
			slog.Warn("report recognition failed", "session_id", sess.ID, "error", err)
		}
		cancel()
	}

	return dto.FrameReply{
		Status:  string(result.Status),
		Message: result.Message,
		Worker:  dto.WorkerFromModel(result.Worker),
	}
}

func (s *Session) send(reply dto.FrameReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
