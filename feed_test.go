package minimact

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialFeed(t *testing.T, server *httptest.Server, instanceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?instance=" + instanceID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) feedEnvelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env feedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestFeedStateChangeRoundTrip(t *testing.T) {
	in, _ := newTodoInstance(t)
	feed := NewFeed(time.Hour)
	feed.RegisterInstance(in)

	server := httptest.NewServer(feed)
	defer server.Close()

	ws := dialFeed(t, server, in.ID)

	msg := `{"type":"state_change","changes":{"title":"From the wire"}}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readEnvelope(t, ws)
	if env.Type != "patches" || env.Component != "Todo" {
		t.Fatalf("envelope = %+v", env)
	}
	if len(env.Patches) != 1 || env.Patches[0].Op != OpUpdateText || env.Patches[0].Content != "From the wire" {
		t.Errorf("patches = %s", env.Patches)
	}
}

func TestFeedFansOutToAllSubscribers(t *testing.T) {
	in, _ := newTodoInstance(t)
	feed := NewFeed(time.Hour)
	feed.RegisterInstance(in)

	server := httptest.NewServer(feed)
	defer server.Close()

	ws1 := dialFeed(t, server, in.ID)
	ws2 := dialFeed(t, server, in.ID)

	deadline := time.Now().Add(2 * time.Second)
	for feed.SubscriberCount(in.ID) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d", feed.SubscriberCount(in.ID))
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A change pushed from one subscriber reaches both.
	msg := `{"type":"state_change","changes":{"count":7}}`
	if err := ws1.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, ws := range []*websocket.Conn{ws1, ws2} {
		env := readEnvelope(t, ws)
		if env.Type != "patches" || len(env.Patches) != 1 {
			t.Errorf("envelope = %+v", env)
		}
	}
}

func TestFeedUnknownInstanceRejected(t *testing.T) {
	feed := NewFeed(time.Hour)
	server := httptest.NewServer(feed)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?instance=ghost"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial to unknown instance succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("resp = %+v", resp)
	}
}

func TestFeedBroadcastRemount(t *testing.T) {
	in, _ := newTodoInstance(t)
	feed := NewFeed(time.Hour)
	feed.RegisterInstance(in)

	server := httptest.NewServer(feed)
	defer server.Close()

	ws := dialFeed(t, server, in.ID)

	deadline := time.Now().Add(2 * time.Second)
	for feed.SubscriberCount(in.ID) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	feed.BroadcastRemount(in.ID, in.Component, in.Tree())

	env := readEnvelope(t, ws)
	if env.Type != "remount" || env.Tree == nil {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Tree.Fingerprint() != in.Tree().Fingerprint() {
		t.Error("remount tree does not match the instance tree")
	}
}

func TestFeedMalformedMessageIgnored(t *testing.T) {
	in, _ := newTodoInstance(t)
	feed := NewFeed(time.Hour)
	feed.RegisterInstance(in)

	server := httptest.NewServer(feed)
	defer server.Close()

	ws := dialFeed(t, server, in.ID)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The connection survives; a valid message afterwards still works.
	msg := `{"type":"state_change","changes":{"title":"still alive"}}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readEnvelope(t, ws)
	if env.Type != "patches" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestFeedUnregisterInstanceClosesSubscribers(t *testing.T) {
	in, _ := newTodoInstance(t)
	feed := NewFeed(time.Hour)
	feed.RegisterInstance(in)

	server := httptest.NewServer(feed)
	defer server.Close()

	ws := dialFeed(t, server, in.ID)

	deadline := time.Now().Add(2 * time.Second)
	for feed.SubscriberCount(in.ID) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	feed.UnregisterInstance(in.ID)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("connection survived unregister")
	}
	if feed.SubscriberCount(in.ID) != 0 {
		t.Errorf("subscribers = %d", feed.SubscriberCount(in.ID))
	}
}

func TestParseClientMessage(t *testing.T) {
	msg, err := parseClientMessage([]byte(`{"type":"state_change","changes":{"a":1}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != "state_change" || msg.Changes["a"] != float64(1) {
		t.Errorf("msg = %+v", msg)
	}

	msg, err = parseClientMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Changes == nil {
		t.Error("missing changes should default to an empty map")
	}

	if _, err := parseClientMessage([]byte("{")); err == nil {
		t.Error("malformed message accepted")
	}
}
