package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnouncement_RequiresAdminKey(t *testing.T) {
	ts := NewTestServer(t)
	_, tok := ts.Register(t, "alice")
	ws := ts.ConnectWS(t, tok)

	msg := map[string]string{"message": "maintenance at noon"}
	Expect(t, ts.PostJSON(t, "/announcement", msg, ""), http.StatusUnauthorized)
	Expect(t, ts.Do(t, http.MethodPost, "/announcement", msg, "X-Admin-Key", "wrong"), http.StatusUnauthorized)
	ws.ExpectSilence("global_announcement", 200*time.Millisecond)

	body := Expect(t, ts.Do(t, http.MethodPost, "/announcement", msg, "X-Admin-Key", AdminKey), http.StatusOK)
	assert.Equal(t, "Announcement sent", body["message"])

	f := ws.RecvEvent("global_announcement", 3*time.Second)
	var got string
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, "maintenance at noon", got)

	body = Expect(t, ts.Do(t, http.MethodPost, "/announcement", map[string]string{"message": "  "}, "X-Admin-Key", AdminKey), http.StatusBadRequest)
	assert.Equal(t, "Message required", body["message"])
	long := map[string]string{"message": strings.Repeat("a", 2001)}
	Expect(t, ts.Do(t, http.MethodPost, "/announcement", long, "X-Admin-Key", AdminKey), http.StatusBadRequest)
}

func TestAnnouncement_OpenMode(t *testing.T) {
	cfg := TestConfig()
	cfg.Server.OpenAnnouncements = true
	ts := NewTestServerWithConfig(t, cfg)

	body := Expect(t, ts.PostJSON(t, "/announcement", map[string]string{"message": "hi all"}, ""), http.StatusOK)
	assert.Equal(t, "Announcement sent", body["message"])
}

func TestAdmin_StatsAuditMetrics(t *testing.T) {
	ts := NewTestServer(t)
	alice, _ := ts.Register(t, "alice")
	bob, _ := ts.Register(t, "bob")
	Expect(t, ts.PostJSON(t, "/friend-request", map[string]string{"from": alice, "to": bob}, ""), http.StatusOK)

	Expect(t, ts.Get(t, "/api/admin/stats", ""), http.StatusUnauthorized)

	require.NoError(t, ts.App.Stats.Snapshot(context.Background()))
	body := Expect(t, ts.Do(t, http.MethodGet, "/api/admin/stats", nil, "X-Admin-Key", AdminKey), http.StatusOK)
	counts := body["counts"].(map[string]interface{})
	assert.Equal(t, "2", counts["accounts"])
	assert.Equal(t, "1", counts["friend_requests_pending"])
	assert.NotEmpty(t, body["tasks"])

	// audit entries are written in batches
	require.Eventually(t, func() bool {
		resp := ts.Do(t, http.MethodGet, "/api/admin/audit?action=account_registered", nil, "X-Admin-Key", AdminKey)
		var out map[string]interface{}
		ReadJSON(t, resp, &out)
		entries, _ := out["entries"].([]interface{})
		return len(entries) == 2
	}, 5*time.Second, 100*time.Millisecond)

	resp := ts.Get(t, "/metrics", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "goodcord_events_emitted_total")
	assert.Contains(t, string(data), "goodcord_http_requests_total")
}
