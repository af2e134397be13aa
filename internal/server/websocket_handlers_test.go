package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRealtimeAPI runs a Redis-backed server on a real listener so websocket
// clients can dial it.
func newRealtimeAPI(t *testing.T) (*testAPI, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := newTestAPI(t, "")
	srv, err := NewServerWithDeps(api.cfg, api.db, rdb)
	require.NoError(t, err)
	srv.globalLimit = 0

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, srv.StartRealtime(ctx))

	api.srv = srv
	api.app = srv.App()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = api.app.Listener(ln) }()
	t.Cleanup(func() { _ = api.app.Shutdown() })
	t.Cleanup(func() { _ = srv.hub.Shutdown(context.Background()) })

	return api, "ws://" + ln.Addr().String() + "/api/ws/notifications"
}

func dialSocket(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSocketEvent(t *testing.T, conn *websocket.Conn) notifications.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev notifications.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestNotificationSocket_RequiresUpgrade(t *testing.T) {
	api := newTestAPI(t, "")
	user := testutil.CreateUser(t, api.db, models.RoleUser)

	resp, _ := api.do(t, http.MethodGet, "/api/ws/notifications", api.token(t, user), nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	// without redis there is nothing to relay
	req := httptest.NewRequest(http.MethodGet, "/api/ws/notifications", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, _ = api.send(t, req, api.token(t, user))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/ws/ticket", api.token(t, user), nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNotificationSocket_RejectsAnonymous(t *testing.T) {
	_, url := newRealtimeAPI(t)

	tests := []struct {
		name   string
		url    string
		header http.Header
	}{
		{"no credentials", url, nil},
		{"bad bearer", url, http.Header{"Authorization": {"Bearer garbage"}}},
		{"unknown ticket", url + "?ticket=nope", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, tt.header)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestNotificationSocket_RelaysOwnEvents(t *testing.T) {
	api, url := newRealtimeAPI(t)
	author := testutil.CreateUser(t, api.db, models.RoleUser)
	fan := testutil.CreateUser(t, api.db, models.RoleUser)
	post := testutil.CreatePost(t, api.db, author, testutil.WithStatus(models.PostStatusPublished))

	authorConn := dialSocket(t, url, http.Header{"Authorization": {"Bearer " + api.token(t, author)}})

	resp, body := api.do(t, http.MethodPost, "/api/ws/ticket", api.token(t, fan), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticket := body["ticket"].(string)
	fanConn := dialSocket(t, url+"?ticket="+ticket, nil)

	require.Eventually(t, func() bool {
		return api.srv.hub.Connections(author.ID) == 1 && api.srv.hub.Connections(fan.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("Ticket Is Single Use", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url+"?ticket="+ticket, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Like Reaches Author Only", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodPost, "/api/posts/"+itoa(post.ID)+"/like", api.token(t, fan), nil)
		require.Less(t, resp.StatusCode, 300)

		ev := readSocketEvent(t, authorConn)
		assert.Equal(t, notifications.EventPostLiked, ev.Type)
		assert.Equal(t, post.ID, ev.PostID)
		assert.Equal(t, fan.ID, ev.ActorID)

		require.NoError(t, fanConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, _, err := fanConn.ReadMessage()
		var netErr net.Error
		assert.ErrorAs(t, err, &netErr, "fan should not receive the author's event")
	})

	t.Run("Disconnect Unregisters", func(t *testing.T) {
		require.NoError(t, authorConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
		_ = authorConn.Close()
		assert.Eventually(t, func() bool {
			return api.srv.hub.Connections(author.ID) == 0
		}, 2*time.Second, 10*time.Millisecond)
	})
}
