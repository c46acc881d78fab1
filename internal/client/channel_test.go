package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades each connection and echoes every envelope back.
func echoServer(t *testing.T) (url string, closed chan struct{}) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	closed = make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			var env domain.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Event == "hangup" {
				close(closed)
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), closed
}

func TestChannelRoundTrip(t *testing.T) {
	url, _ := echoServer(t)

	ch := NewChannel(url, nil)
	require.NoError(t, ch.Dial(context.Background()))
	defer ch.Close()

	env, err := domain.NewEnvelope("ping", domain.TogglePayload{Enabled: true})
	require.NoError(t, err)
	require.NoError(t, ch.Send(env))

	select {
	case got := <-ch.Incoming():
		require.Equal(t, "ping", got.Event)
		var p domain.TogglePayload
		require.NoError(t, got.Decode(&p))
		require.True(t, p.Enabled)
	case <-time.After(5 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestChannelDialFailure(t *testing.T) {
	ch := NewChannel("ws://127.0.0.1:1/ws", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, ch.Dial(ctx))
}

func TestChannelServerDropClosesIncoming(t *testing.T) {
	url, closed := echoServer(t)

	ch := NewChannel(url, nil)
	require.NoError(t, ch.Dial(context.Background()))
	defer ch.Close()

	env, err := domain.NewEnvelope("hangup", nil)
	require.NoError(t, err)
	require.NoError(t, ch.Send(env))

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw hangup")
	}

	// The read pump surfaces the drop by closing the incoming stream.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch.Incoming():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("incoming never closed after server drop")
		}
	}
}

func TestChannelSendAfterCloseFails(t *testing.T) {
	url, _ := echoServer(t)

	ch := NewChannel(url, nil)
	require.NoError(t, ch.Dial(context.Background()))
	ch.Close()

	env, err := domain.NewEnvelope("ping", nil)
	require.NoError(t, err)

	// The write pump drains until done wins the select; eventually Send
	// must refuse.
	require.Eventually(t, func() bool {
		return ch.Send(env) != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestChannelStates(t *testing.T) {
	url, _ := echoServer(t)

	ch := NewChannel(url, nil)
	require.NoError(t, ch.Dial(context.Background()))
	defer ch.Close()

	select {
	case state := <-ch.States():
		require.Equal(t, ChannelConnected, state)
	case <-time.After(time.Second):
		t.Fatal("no connected state reported")
	}
}
