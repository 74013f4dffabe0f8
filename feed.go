package minimact

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minimact/minimact-sub002/internal/session"
)

// FeedConn is one WebSocket subscriber of an instance's patch stream.
type FeedConn struct {
	Conn       *websocket.Conn
	SessionID  string
	InstanceID string
	mu         sync.Mutex // protects writes to Conn
}

// Send sends a message to this connection.
// Thread-safe: multiple goroutines can call Send concurrently.
func (c *FeedConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// feedEnvelope is the wire format of one server-to-client message.
type feedEnvelope struct {
	Type      string     `json:"type"` // "patches" or "remount"
	Component string     `json:"component"`
	Patches   PatchBatch `json:"patches,omitempty"`
	Tree      *VNode     `json:"tree,omitempty"`
}

// clientMessage is the wire format of one client-to-server message.
type clientMessage struct {
	Type    string         `json:"type"` // "state_change"
	Changes map[string]any `json:"changes"`
}

// Feed fans an instance's patch batches out to its WebSocket subscribers
// and routes incoming state-change messages back into the instance.
//
// Thread-safe: safe for concurrent access from multiple goroutines.
type Feed struct {
	upgrader *websocket.Upgrader
	sessions *session.Manager

	mu         sync.RWMutex
	instances  map[string]*Instance   // instanceID -> instance
	byInstance map[string][]*FeedConn // instanceID -> subscribers
}

// NewFeed creates a feed with the given session TTL.
func NewFeed(sessionTTL time.Duration) *Feed {
	return &Feed{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions:   session.NewManager(sessionTTL),
		instances:  make(map[string]*Instance),
		byInstance: make(map[string][]*FeedConn),
	}
}

// RegisterInstance makes an instance reachable through the feed and points
// its patch sink at the feed's broadcaster. Idempotent for the same ID.
func (f *Feed) RegisterInstance(in *Instance) {
	f.mu.Lock()
	f.instances[in.ID] = in
	f.mu.Unlock()

	id := in.ID
	component := in.Component
	in.mu.Lock()
	in.sink = func(batch PatchBatch) {
		f.Broadcast(id, component, batch)
	}
	in.mu.Unlock()
}

// UnregisterInstance drops an instance and closes its subscribers.
func (f *Feed) UnregisterInstance(instanceID string) {
	f.mu.Lock()
	delete(f.instances, instanceID)
	conns := f.byInstance[instanceID]
	delete(f.byInstance, instanceID)
	f.mu.Unlock()

	for _, conn := range conns {
		conn.Conn.Close()
		f.sessions.DeleteSession(conn.SessionID)
	}
}

// Broadcast sends a patch batch to every subscriber of an instance.
// Connections that fail to write are dropped.
func (f *Feed) Broadcast(instanceID, component string, batch PatchBatch) {
	data, err := json.Marshal(feedEnvelope{
		Type:      "patches",
		Component: component,
		Patches:   batch,
	})
	if err != nil {
		slog.Error("encoding patch batch", "instance", instanceID, "error", err)
		return
	}

	for _, conn := range f.subscribers(instanceID) {
		if err := conn.Send(data); err != nil {
			slog.Debug("dropping dead feed connection", "instance", instanceID, "error", err)
			f.unregister(conn)
		}
	}
}

// BroadcastRemount sends a full replacement tree, used after a hot reload
// that could not be expressed as patches.
func (f *Feed) BroadcastRemount(instanceID, component string, tree *VNode) {
	data, err := json.Marshal(feedEnvelope{
		Type:      "remount",
		Component: component,
		Tree:      tree,
	})
	if err != nil {
		slog.Error("encoding remount tree", "instance", instanceID, "error", err)
		return
	}
	for _, conn := range f.subscribers(instanceID) {
		if err := conn.Send(data); err != nil {
			f.unregister(conn)
		}
	}
}

// SubscriberCount returns the number of active connections for an instance.
func (f *Feed) SubscriberCount(instanceID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.byInstance[instanceID])
}

// ServeHTTP upgrades the request to a WebSocket subscription on the
// instance named by the "instance" query parameter. Incoming state-change
// messages run through the instance's prediction pipeline; the resulting
// patches broadcast to every subscriber, this connection included.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	instanceID := r.URL.Query().Get("instance")

	f.mu.RLock()
	in, exists := f.instances[instanceID]
	f.mu.RUnlock()
	if !exists {
		http.Error(w, "unknown instance", http.StatusNotFound)
		return
	}

	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "instance", instanceID, "error", err)
		return
	}

	sess, err := f.sessions.CreateSession(in.Component, instanceID)
	if err != nil {
		ws.Close()
		return
	}

	conn := &FeedConn{Conn: ws, SessionID: sess.ID, InstanceID: instanceID}
	f.register(conn)
	defer func() {
		f.unregister(conn)
		f.sessions.DeleteSession(sess.ID)
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if _, ok := f.sessions.GetSession(sess.ID); !ok {
			return
		}

		msg, err := parseClientMessage(data)
		if err != nil {
			slog.Debug("bad feed message", "instance", instanceID, "error", err)
			continue
		}
		if msg.Type != "state_change" {
			continue
		}
		if _, err := in.OnStateChange(msg.Changes); err != nil {
			slog.Warn("state change failed", "instance", instanceID, "error", err)
		}
	}
}

// parseClientMessage parses one client message (internal protocol)
func parseClientMessage(data []byte) (clientMessage, error) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return clientMessage{}, err
	}
	if msg.Changes == nil {
		msg.Changes = make(map[string]any)
	}
	return msg, nil
}

func (f *Feed) register(conn *FeedConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byInstance[conn.InstanceID] = append(f.byInstance[conn.InstanceID], conn)
}

func (f *Feed) unregister(conn *FeedConn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conns := f.byInstance[conn.InstanceID]
	kept := make([]*FeedConn, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(f.byInstance, conn.InstanceID)
	} else {
		f.byInstance[conn.InstanceID] = kept
	}
}

// subscribers returns a copy of an instance's connection list.
func (f *Feed) subscribers(instanceID string) []*FeedConn {
	f.mu.RLock()
	defer f.mu.RUnlock()

	conns := f.byInstance[instanceID]
	result := make([]*FeedConn, len(conns))
	copy(result, conns)
	return result
}
