package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elfcodes808/GoodCord-backend/config"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestSession builds a session without a connection; frames stay queued
// on SendChan.
func newTestSession(username string) *Session {
	return &Session{
		Username: username,
		SendChan: make(chan []byte, 8),
		Done:     make(chan struct{}),
		logger:   zap.NewNop(),
	}
}

func nextFrame(t *testing.T, ch <-chan []byte) Frame {
	t.Helper()
	select {
	case data := <-ch:
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestRouter_Ping(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession("alice")

	r.Dispatch(s, []byte(`{"type":"ping"}`))
	assert.Equal(t, "pong", nextFrame(t, s.SendChan).Event)
}

func TestRouter_DispatchPayloadAndTrace(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession("alice")

	var gotPayload, gotTrace string
	r.On("echo", func(ctx context.Context, _ *Session, payload json.RawMessage) error {
		gotPayload = string(payload)
		gotTrace = TraceIDFromCtx(ctx)
		return nil
	})

	r.Dispatch(s, []byte(`{"type":"echo","payload":{"x":1}}`))
	assert.JSONEq(t, `{"x":1}`, gotPayload)
	assert.NotEmpty(t, gotTrace)
	assert.Equal(t, s.TraceID, gotTrace)
}

func TestRouter_DispatchIgnoresBadInput(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession("alice")

	called := 0
	r.On("count", func(context.Context, *Session, json.RawMessage) error {
		called++
		return assert.AnError
	})

	r.Dispatch(s, []byte(`not json`))
	r.Dispatch(s, []byte(`{"type":"unknown"}`))
	assert.Zero(t, called)

	r.Dispatch(s, []byte(`{"type":"count"}`))
	assert.Equal(t, 1, called, "handler errors are logged, not fatal")
}

func TestRouter_SeqRejectsReplays(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession("alice")

	var seen []int
	r.On("n", func(_ context.Context, _ *Session, p json.RawMessage) error {
		var v int
		_ = json.Unmarshal(p, &v)
		seen = append(seen, v)
		return nil
	})

	r.Dispatch(s, []byte(`{"seq":5,"type":"n","payload":1}`))
	r.Dispatch(s, []byte(`{"seq":5,"type":"n","payload":2}`))
	r.Dispatch(s, []byte(`{"seq":3,"type":"n","payload":3}`))
	r.Dispatch(s, []byte(`{"seq":6,"type":"n","payload":4}`))
	r.Dispatch(s, []byte(`{"type":"n","payload":5}`))
	assert.Equal(t, []int{1, 4, 5}, seen)
	assert.Equal(t, uint64(6), s.LastSeq)
}

func TestTraceIDFromCtx_Missing(t *testing.T) {
	assert.Empty(t, TraceIDFromCtx(context.Background()))
}

func TestSession_SendAfterCloseDrops(t *testing.T) {
	s := newTestSession("alice")
	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())

	s.Send(&Frame{Event: "late"})
	assert.Len(t, s.SendChan, 0)
}

func TestSession_ConcurrentClose(t *testing.T) {
	s := newTestSession("alice")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	assert.NotPanics(t, wg.Wait)
	assert.True(t, s.IsClosed())
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	h := NewHub(zap.NewNop())
	a, b := newTestSession("alice"), newTestSession("bob")
	h.Register(a)
	h.Register(b)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.Count())

	h.Broadcast([]byte(`{"event":"x"}`))
	assert.Equal(t, "x", nextFrame(t, a.SendChan).Event)
	assert.Equal(t, "x", nextFrame(t, b.SendChan).Event)

	h.Unregister(a)
	h.Unregister(a)
	assert.Equal(t, 1, h.Count())
}

func TestHub_RelayCatalogEvents(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	h := NewHub(zap.NewNop())
	s := newTestSession("alice")
	h.Register(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Relay(ctx, ps))

	emitter := notify.NewPubSubEmitter(ps, nil, zap.NewNop())
	emitter.Emit(ctx, notify.EventFriendRequest, notify.FriendRequestPayload{From: "alice", To: "bob"})
	emitter.Emit(ctx, notify.EventGlobalAnnouncement, "maintenance at noon")

	f := nextFrame(t, s.SendChan)
	assert.Equal(t, notify.EventFriendRequest, f.Event)
	assert.JSONEq(t, `{"from":"alice","to":"bob"}`, string(f.Data))

	f = nextFrame(t, s.SendChan)
	assert.Equal(t, notify.EventGlobalAnnouncement, f.Event)
	assert.JSONEq(t, `"maintenance at noon"`, string(f.Data))
}

func TestServeWS_EndToEnd(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "ws-secret"}
	logger := zap.NewNop()

	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.Relay(ctx, ps))

	r := gin.New()
	r.GET("/ws", mw.QueryAuth(sec, c), NewHandler(hub, NewRouter(logger), sec, logger).ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err, "no token")
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := mw.GenerateToken(mw.Subject{AccountID: 1, Username: "alice"}, sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, mw.SessionKey(tok), "1", time.Hour))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+tok, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "connected", f.Event)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "pong", f.Event)

	notify.NewPubSubEmitter(ps, nil, logger).Emit(ctx, notify.EventGlobalAnnouncement, "hello")
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, notify.EventGlobalAnnouncement, f.Event)
	assert.JSONEq(t, `"hello"`, string(f.Data))
}
