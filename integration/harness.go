package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elfcodes808/GoodCord-backend/app"
	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/elfcodes808/GoodCord-backend/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminKey is the admin key every TestServer is configured with.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all services wired together.
type TestServer struct {
	App    *app.App
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
	Config *config.Config
}

// TestConfig returns the configuration NewTestServer uses.
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			AdminKey:      AdminKey,
			StatsInterval: time.Hour,
		},
		Security: config.SecurityConfig{
			JWTSecret:      "integration-test-secret",
			JWTTTLH:        time.Hour,
			BcryptCost:     4,
			RateLimitRPS:   1000,
			RateLimitBurst: 2000,
			AllowedOrigins: []string{}, // allow all origins
		},
		Social: config.SocialConfig{InviteCodeBytes: 16, LockTTL: 5 * time.Second},
		Audit:  config.AuditConfig{Enabled: true},
	}
}

// NewTestServer creates a fully wired server for integration testing.
func NewTestServer(t *testing.T) *TestServer {
	return NewTestServerWithConfig(t, TestConfig())
}

// NewTestServerWithConfig is NewTestServer with a caller-supplied config.
// The server is closed through t.Cleanup.
func NewTestServerWithConfig(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)

	a, err := app.New(cfg, db, c, pubsub, zap.NewNop())
	require.NoError(t, err)

	server := httptest.NewServer(a.Engine)
	ts := &TestServer{
		App:    a,
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + server.URL[len("http"):] + "/ws",
		Config: cfg,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the HTTP server and background work.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.App.Close()
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body and extra headers given as
// key/value pairs.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, headers ...string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func bearer(token string) []string {
	if token == "" {
		return nil
	}
	return []string{"Authorization", "Bearer " + token}
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, bearer(token)...)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, bearer(token)...)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Expect asserts the status code and returns the decoded envelope.
func Expect(t *testing.T, resp *http.Response, status int) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	ReadJSON(t, resp, &body)
	require.Equal(t, status, resp.StatusCode, "body: %v", body)
	return body
}

var uniqueSeq int64

// UniqueName returns a username that no other test in this process uses.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, atomic.AddInt64(&uniqueSeq, 1))
}

// --- Auth helpers ---

// Signup registers username with a derived email and returns the email.
func (ts *TestServer) Signup(t *testing.T, username, password string) string {
	t.Helper()
	email := username + "@example.com"
	resp := ts.PostJSON(t, "/signup", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, "")
	Expect(t, resp, http.StatusOK)
	return email
}

// Login logs in with an email or username and returns the token.
func (ts *TestServer) Login(t *testing.T, identifier, password string) string {
	t.Helper()
	resp := ts.PostJSON(t, "/login", map[string]string{
		"email":    identifier,
		"password": password,
	}, "")
	body := Expect(t, resp, http.StatusOK)
	return body["token"].(string)
}

// Register signs up and logs in a fresh user, returning name and token.
func (ts *TestServer) Register(t *testing.T, prefix string) (username, token string) {
	t.Helper()
	username = UniqueName(prefix)
	ts.Signup(t, username, "pass1234")
	return username, ts.Login(t, username, "pass1234")
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop owns the connection's read side.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 64)}
	go wc.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	wc.RecvEvent("connected", 2*time.Second)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	pkt := map[string]interface{}{
		"seq":  atomic.AddUint64(&wc.seq, 1),
		"type": msgType,
	}
	if payload != nil {
		pkt["payload"] = payload
	}
	data, err := json.Marshal(pkt)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// WSFrame is a decoded server frame.
type WSFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RecvEvent reads frames until one named event arrives within timeout.
func (wc *WSClient) RecvEvent(event string, timeout time.Duration) WSFrame {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", event)
			var f WSFrame
			require.NoError(wc.t, json.Unmarshal(res.data, &f))
			if f.Event == event {
				return f
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for event %q", event)
			return WSFrame{}
		}
	}
}

// ExpectSilence asserts no frame named event arrives within d.
func (wc *WSClient) ExpectSilence(event string, d time.Duration) {
	wc.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case res := <-wc.readCh:
			if res.err != nil {
				return
			}
			var f WSFrame
			if json.Unmarshal(res.data, &f) == nil && f.Event == event {
				wc.t.Fatalf("unexpected %q frame: %s", event, string(f.Data))
			}
		case <-deadline:
			return
		}
	}
}
