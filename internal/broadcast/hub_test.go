package broadcast

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, kind Kind, auctionID string, data any) Event {
	t.Helper()
	ev, err := NewEvent(kind, auctionID, data)
	require.NoError(t, err)
	return ev
}

func drain(t *testing.T, sub *Subscriber, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		frame, ok := <-sub.Frames()
		require.True(t, ok, "queue closed after %d frames", i)
		ev, err := Decode(frame)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestHub_PublishReachesRoomMembersOnly(t *testing.T) {
	hub := NewHub(nil)
	a := NewSubscriber("a", 8)
	b := NewSubscriber("b", 8)
	require.NoError(t, hub.Subscribe("auction-1", a))
	require.NoError(t, hub.Subscribe("auction-2", b))

	delivered := hub.Publish(mustEvent(t, KindUpdateBids, "auction-1", []int{1}))
	require.Equal(t, 1, delivered)

	got := drain(t, a, 1)
	require.Equal(t, KindUpdateBids, got[0].Kind)
	require.Equal(t, "auction-1", got[0].AuctionID)
	require.JSONEq(t, `[1]`, string(got[0].Data))
	require.Empty(t, b.Frames())
}

func TestHub_FIFOPerRoom(t *testing.T) {
	hub := NewHub(nil)
	sub := NewSubscriber("s", 64)
	require.NoError(t, hub.Subscribe("auction-1", sub))

	for i := 0; i < 50; i++ {
		hub.Publish(mustEvent(t, KindUpdateBids, "auction-1", i))
	}

	events := drain(t, sub, 50)
	for i, ev := range events {
		require.JSONEq(t, fmt.Sprint(i), string(ev.Data))
	}
}

func TestHub_SubscribeTwiceIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	sub := NewSubscriber("s", 4)
	require.NoError(t, hub.Subscribe("auction-1", sub))
	require.NoError(t, hub.Subscribe("auction-1", sub))
	require.Equal(t, 1, hub.Members("auction-1"))

	require.Equal(t, 1, hub.Publish(mustEvent(t, KindUpdateBids, "auction-1", nil)))
}

func TestHub_UnsubscribeAndUnsubscribeAll(t *testing.T) {
	hub := NewHub(nil)
	sub := NewSubscriber("s", 4)
	require.NoError(t, hub.Subscribe("auction-1", sub))
	require.NoError(t, hub.Subscribe("auction-2", sub))

	hub.Unsubscribe("auction-1", sub)
	require.Zero(t, hub.Members("auction-1"))
	require.Equal(t, 1, hub.Members("auction-2"))
	require.Zero(t, hub.Publish(mustEvent(t, KindUpdateBids, "auction-1", nil)))

	hub.UnsubscribeAll(sub)
	require.Zero(t, hub.Members("auction-2"))
	require.Zero(t, hub.Publish(mustEvent(t, KindUpdateBids, "auction-2", nil)))
}

func TestHub_FullQueueEvictsSubscriber(t *testing.T) {
	hub := NewHub(nil)
	slow := NewSubscriber("slow", 2)
	fast := NewSubscriber("fast", 8)
	require.NoError(t, hub.Subscribe("auction-1", slow))
	require.NoError(t, hub.Subscribe("auction-1", fast))

	for i := 0; i < 3; i++ {
		hub.Publish(mustEvent(t, KindUpdateBids, "auction-1", i))
	}

	require.True(t, slow.Evicted())
	require.Equal(t, 1, hub.Members("auction-1"))
	select {
	case <-slow.Done():
	default:
		t.Fatal("evicted subscriber should be closed")
	}

	// frames queued before eviction are still readable, then the queue ends
	events := drain(t, slow, 2)
	require.JSONEq(t, `0`, string(events[0].Data))
	_, ok := <-slow.Frames()
	require.False(t, ok)

	require.Len(t, drain(t, fast, 3), 3)
}

func TestHub_ClosedSubscriberIsDropped(t *testing.T) {
	hub := NewHub(nil)
	sub := NewSubscriber("s", 4)
	require.NoError(t, hub.Subscribe("auction-1", sub))

	sub.Close()
	require.Zero(t, hub.Publish(mustEvent(t, KindUpdateBids, "auction-1", nil)))
	require.Zero(t, hub.Members("auction-1"))
	require.False(t, sub.Evicted())
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(nil)
	sub := NewSubscriber("s", 4)
	require.NoError(t, hub.Subscribe("auction-1", sub))

	hub.Close()
	hub.Close()

	<-sub.Done()
	require.ErrorIs(t, hub.Subscribe("auction-1", NewSubscriber("late", 1)), ErrHubClosed)
	require.Zero(t, hub.Members("auction-1"))
}

func TestHub_ConcurrentMembershipAndPublish(t *testing.T) {
	hub := NewHub(nil)
	stable := NewSubscriber("stable", 1024)
	require.NoError(t, hub.Subscribe("auction-1", stable))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := NewSubscriber(fmt.Sprintf("churn-%d", i), 1024)
			for j := 0; j < 50; j++ {
				_ = hub.Subscribe("auction-1", sub)
				hub.Unsubscribe("auction-1", sub)
			}
		}(i)
	}

	for i := 0; i < 200; i++ {
		hub.Publish(mustEvent(t, KindUpdateBids, "auction-1", i))
	}
	wg.Wait()

	events := drain(t, stable, 200)
	for i, ev := range events {
		require.JSONEq(t, fmt.Sprint(i), string(ev.Data))
	}
	require.Equal(t, 1, hub.Members("auction-1"))
}
