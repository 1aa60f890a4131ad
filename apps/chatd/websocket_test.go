package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/dakiya/pkg/broker"
	"github.com/mahaj/dakiya/pkg/model"
)

func dialWS(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.api.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func Test_WS_Requires_Token(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.api.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.Error(err)
	req.NotNil(resp)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_WS_Receives_Push_For_Live_Receiver(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	aliceToken := env.token(t, "alice")
	bobToken := env.token(t, "bob")

	conn := dialWS(t, env, bobToken)

	// Registration happens right after the upgrade completes.
	req.Eventually(func() bool {
		_, ok := env.server.registry.Lookup("bob")
		return ok
	}, time.Second, 10*time.Millisecond)

	body, contentType := multipartBody(t, "ping", "", "", "", nil)
	request, err := http.NewRequest(http.MethodPost, env.api.URL+"/messages/send/bob", body)
	req.NoError(err)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	req.NoError(err)

	var event struct {
		Event   string        `json:"event"`
		Payload model.Message `json:"payload"`
	}
	req.NoError(json.Unmarshal(payload, &event))
	req.Equal(broker.EventNewMessage, event.Event)
	req.Equal("ping", event.Payload.Text)
	req.Equal("alice", event.Payload.SenderID)
}

func Test_WS_Reconnect_Replaces_Registration(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	bobToken := env.token(t, "bob")

	first := dialWS(t, env, bobToken)
	req.Eventually(func() bool {
		_, ok := env.server.registry.Lookup("bob")
		return ok
	}, time.Second, 10*time.Millisecond)
	firstConn, _ := env.server.registry.Lookup("bob")

	second := dialWS(t, env, bobToken)
	req.Eventually(func() bool {
		conn, ok := env.server.registry.Lookup("bob")
		return ok && conn != firstConn
	}, time.Second, 10*time.Millisecond)

	// The stale socket closing must not evict the fresh registration.
	first.Close()
	time.Sleep(100 * time.Millisecond)
	_, ok := env.server.registry.Lookup("bob")
	req.True(ok, "reconnect registration survives the old socket's teardown")

	second.Close()
	req.Eventually(func() bool {
		_, ok := env.server.registry.Lookup("bob")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func Test_WS_Lifecycle_Drives_Presence_Mirror(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	bobToken := env.token(t, "bob")

	online := func() []string {
		parties, err := env.mirror.Online(context.Background())
		req.NoError(err)
		return parties
	}

	first := dialWS(t, env, bobToken)
	req.Eventually(func() bool {
		return len(online()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal([]string{"bob"}, online())

	firstConn, ok := env.server.registry.Lookup("bob")
	req.True(ok)

	second := dialWS(t, env, bobToken)
	req.Eventually(func() bool {
		conn, ok := env.server.registry.Lookup("bob")
		return ok && conn != firstConn
	}, time.Second, 10*time.Millisecond)

	// Tearing down the replaced socket must leave the mirror showing the
	// party online while the fresh registration holds.
	first.Close()
	time.Sleep(100 * time.Millisecond)
	req.Equal([]string{"bob"}, online())

	second.Close()
	req.Eventually(func() bool {
		return len(online()) == 0
	}, time.Second, 10*time.Millisecond)
}
