package wsgateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kandev/orchmesh/internal/wsproto"
)

func newTestServer(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := NewGateway(nil)
	router := gin.New()
	gw.SetupRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go gw.Hub.Run(ctx)

	return gw, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHealthCheckRoundTrip(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "")

	req, err := wsproto.NewRequest("1", wsproto.ActionHealthCheck, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp wsproto.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, wsproto.TypeResponse, resp.Type)
}

func TestOnClientConnectedReceivesQueryUserID(t *testing.T) {
	gw, srv := newTestServer(t)

	var gotConn, gotUser string
	done := make(chan struct{})
	gw.OnClientConnected = func(connID, userID string) {
		gotConn, gotUser = connID, userID
		close(done)
	}

	dial(t, srv, "?user_id=alice")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClientConnected was not called")
	}
	require.NotEmpty(t, gotConn)
	require.Equal(t, "alice", gotUser)
}

func TestOnClientConnectedFallsBackToConnID(t *testing.T) {
	gw, srv := newTestServer(t)

	var gotConn, gotUser string
	done := make(chan struct{})
	gw.OnClientConnected = func(connID, userID string) {
		gotConn, gotUser = connID, userID
		close(done)
	}

	dial(t, srv, "")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClientConnected was not called")
	}
	require.Equal(t, gotConn, gotUser)
}

func TestOnClientDisconnectedFiresAfterClose(t *testing.T) {
	gw, srv := newTestServer(t)

	done := make(chan struct{})
	gw.OnClientDisconnected = func(connID string) {
		close(done)
	}

	conn := dial(t, srv, "")
	conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClientDisconnected was not called")
	}
}

func TestGroupBroadcastDeliversToJoinedMember(t *testing.T) {
	gw, srv := newTestServer(t)

	connIDCh := make(chan string, 1)
	gw.OnClientConnected = func(connID, userID string) {
		connIDCh <- connID
	}

	conn := dial(t, srv, "")
	connID := <-connIDCh

	require.Eventually(t, func() bool {
		return gw.Hub.JoinGroupByID(connID, "session-s1")
	}, time.Second, 10*time.Millisecond)

	notif, err := wsproto.NewNotification("push", map[string]string{"hello": "world"})
	require.NoError(t, err)
	gw.Hub.BroadcastToGroup(context.Background(), "session-s1", notif)

	var got wsproto.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, wsproto.TypeNotification, got.Type)
}

func TestGroupBroadcastSkipsNonMembers(t *testing.T) {
	gw, srv := newTestServer(t)
	_ = dial(t, srv, "")

	require.Empty(t, gw.Hub.GroupMembers("session-unused"))
	gw.Hub.BroadcastToGroup(context.Background(), "session-unused", nil)
}

func TestClientCountTracksConnections(t *testing.T) {
	gw, srv := newTestServer(t)
	require.Eventually(t, func() bool { return gw.Hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return gw.Hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return gw.Hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}
