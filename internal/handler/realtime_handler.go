package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/internal/service"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
	"github.com/edupilot/edupilot-api/pkg/response"
)

type broadcaster interface {
	Subscribe(ownerID string, sub service.Subscriber)
	Unsubscribe(ownerID, subscriberID string)
}

// RealtimeHandler upgrades authenticated clients to websocket subscribers.
type RealtimeHandler struct {
	broadcaster  broadcaster
	metrics      *service.MetricsService
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewRealtimeHandler constructs the handler.
func NewRealtimeHandler(b broadcaster, metrics *service.MetricsService, writeTimeout, pingInterval time.Duration, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &RealtimeHandler{
		broadcaster: b,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// cross-origin clients are screened by the CORS layer; the
			// upgrade itself is gated on the JWT middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// wsSubscriber adapts one websocket connection to the broadcast registry.
// A mutex serializes writes; gorilla connections allow one writer at a time.
type wsSubscriber struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(event)
}

func (s *wsSubscriber) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// Connect upgrades the request and streams the owner's events until the
// client disconnects.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("owner_id", claims.UserID), zap.Error(err))
		return
	}

	sub := &wsSubscriber{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: h.writeTimeout,
	}
	h.broadcaster.Subscribe(claims.UserID, sub)
	h.metrics.SubscriberConnected(1)
	h.logger.Info("realtime subscriber connected",
		zap.String("owner_id", claims.UserID),
		zap.String("subscriber_id", sub.id))

	done := make(chan struct{})
	go h.keepAlive(sub, done)

	// the read loop only consumes control frames; it unblocks on close
	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.broadcaster.Unsubscribe(claims.UserID, sub.id)
	h.metrics.SubscriberConnected(-1)
	_ = conn.Close()
	h.logger.Info("realtime subscriber disconnected",
		zap.String("owner_id", claims.UserID),
		zap.String("subscriber_id", sub.id))
}

func (h *RealtimeHandler) keepAlive(sub *wsSubscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sub.ping(); err != nil {
				return
			}
		}
	}
}
