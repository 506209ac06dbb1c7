package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvOne(t *testing.T, ch <-chan *LocalMessage) *LocalMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestPubSubMultipleChannels(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "event:friend_request", "event:global_announcement")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "event:friend_request", `{"from":"a","to":"b"}`))
	require.NoError(t, ps.Publish(ctx, "event:global_announcement", `"hi"`))
	require.NoError(t, ps.Publish(ctx, "event:other", "ignored"))

	first := recvOne(t, ch)
	assert.Equal(t, "event:friend_request", first.Channel)
	second := recvOne(t, ch)
	assert.Equal(t, `"hi"`, second.Payload)

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on %s", msg.Channel)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPubSubCancelClosesAndIsIdempotent(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 1, ps.Subscribers("a"))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
	assert.Equal(t, 0, ps.Subscribers("a"))
	assert.Equal(t, 0, ps.Subscribers("b"))
	assert.NoError(t, ps.Publish(ctx, "a", "msg"))
}

func TestPubSubFanOut(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch1, cancel1, _ := ps.Subscribe(ctx, "broadcast")
	ch2, cancel2, _ := ps.Subscribe(ctx, "broadcast")
	defer cancel1()
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "broadcast", "world"))
	assert.Equal(t, "world", recvOne(t, ch1).Payload)
	assert.Equal(t, "world", recvOne(t, ch2).Payload)
}

func TestPubSubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	ch, cancel, _ := ps.Subscribe(ctx, "c")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = ps.Publish(ctx, "c", "m")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}
