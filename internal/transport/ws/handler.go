package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/broadcast"
	"github.com/Additional-Code/auctionroom/internal/config"
	auctionsvc "github.com/Additional-Code/auctionroom/internal/service/auction"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var wsTracer = otel.Tracer("github.com/Additional-Code/auctionroom/transport/ws")

// Client commands.
const (
	EventJoinAuction   = "join_auction"
	EventLeaveAuction  = "leave_auction"
	EventExtendAuction = "extend_auction"
)

const maxFrameBytes = 4096

type command struct {
	Event        string `json:"event"`
	AuctionID    string `json:"auctionId"`
	ExtraMinutes int    `json:"extraMinutes"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler upgrades /ws requests and runs one session per connection.
type Handler struct {
	hub      *broadcast.Hub
	auctions *auctionsvc.Service
	cfg      config.Broadcast
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// Params defines dependencies for constructing Handler.
type Params struct {
	fx.In

	Hub      *broadcast.Hub
	Auctions *auctionsvc.Service
	Config   config.Config
	Logger   *zap.Logger
}

// NewHandler constructs the WebSocket Handler.
func NewHandler(p Params) *Handler {
	cfg := p.Config.Broadcast
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Handler{
		hub:      p.Hub,
		auctions: p.Auctions,
		cfg:      cfg,
		logger:   p.Logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/ws", h.serve)
}

func (h *Handler) serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered the request
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	s := &session{
		h:      h,
		conn:   conn,
		sub:    broadcast.NewSubscriber(uuid.NewString(), h.cfg.QueueSize),
		direct: make(chan []byte, 8),
		done:   make(chan struct{}),
	}
	h.logger.Debug("websocket connected", zap.String("subscriber", s.sub.ID()))
	s.run(c.Request().Context())
	return nil
}

// session owns one connection. The read loop runs on the request goroutine
// and a single writer goroutine drains room frames and direct replies.
type session struct {
	h      *Handler
	conn   *websocket.Conn
	sub    *broadcast.Subscriber
	direct chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *session) run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	s.readLoop(ctx)

	s.h.hub.UnsubscribeAll(s.sub)
	s.sub.Close()
	s.stop()
	wg.Wait()
	_ = s.conn.Close()
	s.h.logger.Debug("websocket disconnected", zap.String("subscriber", s.sub.ID()))
}

func (s *session) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *session) readLoop(ctx context.Context) {
	pongWait := 2 * s.h.cfg.PingInterval
	s.conn.SetReadLimit(maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.h.logger.Debug("websocket read failed", zap.String("subscriber", s.sub.ID()), zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.reply(cmd.AuctionID, "invalid_frame", "frame must be a JSON command")
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

func (s *session) dispatch(ctx context.Context, cmd command) {
	if cmd.AuctionID == "" {
		s.reply("", "missing_fields", "auctionId is required")
		return
	}
	switch cmd.Event {
	case EventJoinAuction:
		if err := s.h.hub.Subscribe(cmd.AuctionID, s.sub); err != nil {
			s.reply(cmd.AuctionID, "unavailable", err.Error())
		}
	case EventLeaveAuction:
		s.h.hub.Unsubscribe(cmd.AuctionID, s.sub)
	case EventExtendAuction:
		ctx, span := wsTracer.Start(ctx, "ws.extendAuction", trace.WithAttributes(
			attribute.String("auction.id", cmd.AuctionID),
			attribute.Int("auction.extra_minutes", cmd.ExtraMinutes),
		))
		_, err := s.h.auctions.Extend(ctx, cmd.AuctionID, cmd.ExtraMinutes)
		span.End()
		if err != nil {
			appErr := errorbank.From(err)
			s.reply(cmd.AuctionID, appErr.Code(), appErr.Message())
		}
	default:
		s.reply(cmd.AuctionID, "unknown_event", "unsupported event "+cmd.Event)
	}
}

func (s *session) reply(auctionID, code, message string) {
	ev, err := broadcast.NewEvent(broadcast.KindError, auctionID, errorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	frame, err := ev.Encode()
	if err != nil {
		return
	}
	select {
	case s.direct <- frame:
	default:
		s.h.logger.Warn("dropping error reply for slow client", zap.String("subscriber", s.sub.ID()))
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(s.h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-s.sub.Frames():
			if !ok {
				s.closeConn()
				return
			}
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.abort(err)
				return
			}
		case frame := <-s.direct:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.abort(err)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.abort(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) write(messageType int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}

// closeConn tells the peer why delivery stopped. An evicted client has to
// re-fetch the ranking over HTTP after reconnecting.
func (s *session) closeConn() {
	code, text := websocket.CloseNormalClosure, "closing"
	if s.sub.Evicted() {
		code, text = websocket.ClosePolicyViolation, "subscriber queue overflow"
	}
	deadline := time.Now().Add(s.h.cfg.WriteTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	_ = s.conn.Close()
}

func (s *session) abort(err error) {
	if !errors.Is(err, websocket.ErrCloseSent) {
		s.h.logger.Debug("websocket write failed", zap.String("subscriber", s.sub.ID()), zap.Error(err))
	}
	_ = s.conn.Close()
}
