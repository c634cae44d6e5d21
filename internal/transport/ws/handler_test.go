package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/broadcast"
	"github.com/Additional-Code/auctionroom/internal/clock"
	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/locker"
	auctionrepo "github.com/Additional-Code/auctionroom/internal/repository/auction"
	participantrepo "github.com/Additional-Code/auctionroom/internal/repository/participant"
	auctionsvc "github.com/Additional-Code/auctionroom/internal/service/auction"
	"github.com/Additional-Code/auctionroom/internal/testutil"
)

type harness struct {
	url      string
	hub      *broadcast.Hub
	auctions *auctionsvc.Service
	clock    *clock.Manual
}

func newHarness(t *testing.T, queueSize int) *harness {
	t.Helper()
	conns := testutil.NewTestDB(t)
	h := &harness{
		hub:   broadcast.NewHub(nil),
		clock: clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.auctions = auctionsvc.NewService(auctionsvc.Params{
		Repository:   auctionrepo.NewRepository(conns),
		Participants: participantrepo.NewRepository(conns),
		Locks:        locker.New(),
		Clock:        h.clock,
		Publisher:    broadcast.LocalPublisher{Hub: h.hub},
		Logger:       zap.NewNop(),
	})

	var cfg config.Config
	cfg.Broadcast.QueueSize = queueSize
	cfg.Broadcast.WriteTimeout = time.Second
	cfg.Broadcast.PingInterval = time.Minute

	e := echo.New()
	Register(e, NewHandler(Params{Hub: h.hub, Auctions: h.auctions, Config: cfg, Logger: zap.NewNop()}))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	h.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func receive(t *testing.T, conn *websocket.Conn) broadcast.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := broadcast.Decode(raw)
	require.NoError(t, err)
	return ev
}

func (h *harness) waitMembers(t *testing.T, auctionID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.hub.Members(auctionID) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestSession_JoinReceivesRoomEvents(t *testing.T) {
	h := newHarness(t, 16)
	conn := h.dial(t)

	send(t, conn, `{"event":"join_auction","auctionId":"a1"}`)
	h.waitMembers(t, "a1", 1)

	for i := 0; i < 3; i++ {
		ev, err := broadcast.NewEvent(broadcast.KindUpdateBids, "a1", []int{i})
		require.NoError(t, err)
		h.hub.Publish(ev)
	}
	for i := 0; i < 3; i++ {
		ev := receive(t, conn)
		require.Equal(t, broadcast.KindUpdateBids, ev.Kind)
		var data []int
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		require.Equal(t, []int{i}, data)
	}

	send(t, conn, `{"event":"leave_auction","auctionId":"a1"}`)
	h.waitMembers(t, "a1", 0)
}

func TestSession_DisconnectLeavesAllRooms(t *testing.T) {
	h := newHarness(t, 16)
	conn := h.dial(t)

	send(t, conn, `{"event":"join_auction","auctionId":"a1"}`)
	send(t, conn, `{"event":"join_auction","auctionId":"a2"}`)
	h.waitMembers(t, "a1", 1)
	h.waitMembers(t, "a2", 1)

	require.NoError(t, conn.Close())
	h.waitMembers(t, "a1", 0)
	h.waitMembers(t, "a2", 0)
}

func TestSession_ExtendAuction(t *testing.T) {
	h := newHarness(t, 16)
	a, err := h.auctions.Create(context.Background(), auctionsvc.CreateInput{
		Title: "Pipes", BuyerID: "b1", DurationMinutes: 10, MinDecrementValue: 1,
		InvitedSuppliers: []string{"s@example.com"},
	})
	require.NoError(t, err)

	conn := h.dial(t)
	send(t, conn, `{"event":"join_auction","auctionId":"`+a.ID+`"}`)
	h.waitMembers(t, a.ID, 1)

	h.clock.Set(a.EndTime.Add(-time.Minute))
	send(t, conn, `{"event":"extend_auction","auctionId":"`+a.ID+`","extraMinutes":5}`)

	ev := receive(t, conn)
	require.Equal(t, broadcast.KindAuctionExtended, ev.Kind)
	var payload dto.AuctionExtendedPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	require.True(t, payload.NewEndTime.Equal(a.EndTime.Add(4*time.Minute)))

	// once closed, the extension is refused with a reason
	h.clock.Set(payload.NewEndTime)
	send(t, conn, `{"event":"extend_auction","auctionId":"`+a.ID+`","extraMinutes":5}`)
	ev = receive(t, conn)
	require.Equal(t, broadcast.KindError, ev.Kind)
	require.JSONEq(t, `{"code":"auction_closed","message":"auction is closed"}`, string(ev.Data))
}

func TestSession_ErrorFrames(t *testing.T) {
	h := newHarness(t, 16)
	conn := h.dial(t)

	send(t, conn, `not json`)
	require.Equal(t, broadcast.KindError, receive(t, conn).Kind)

	send(t, conn, `{"event":"join_auction"}`)
	ev := receive(t, conn)
	require.Equal(t, broadcast.KindError, ev.Kind)
	require.Contains(t, string(ev.Data), "missing_fields")

	send(t, conn, `{"event":"dance","auctionId":"a1"}`)
	ev = receive(t, conn)
	require.Contains(t, string(ev.Data), "unknown_event")
}

func TestSession_SlowClientIsEvicted(t *testing.T) {
	h := newHarness(t, 1)
	conn := h.dial(t)

	send(t, conn, `{"event":"join_auction","auctionId":"a1"}`)
	h.waitMembers(t, "a1", 1)

	// publish faster than the single-slot queue can drain until eviction
	require.Eventually(t, func() bool {
		for i := 0; i < 50; i++ {
			ev, _ := broadcast.NewEvent(broadcast.KindUpdateBids, "a1", strings.Repeat("x", 1024))
			h.hub.Publish(ev)
		}
		return h.hub.Members("a1") == 0
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		break
	}
}
