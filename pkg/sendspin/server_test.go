package sendspin

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(ServerConfig{ServerID: "srv-test", ServerName: "Test Server"})
	require.NoError(t, s.Start(context.Background(), "127.0.0.1", 0, false))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

// eventCollector records every event a listener sees.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (ec *eventCollector) add(ev Event) {
	ec.mu.Lock()
	ec.events = append(ec.events, ev)
	ec.mu.Unlock()
}

func (ec *eventCollector) all() []Event {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]Event, len(ec.events))
	copy(out, ec.events)
	return out
}

func (ec *eventCollector) count(match func(Event) bool) int {
	n := 0
	for _, ev := range ec.all() {
		if match(ev) {
			n++
		}
	}
	return n
}

// testClient is a minimal sendspin player speaking the wire protocol.
type testClient struct {
	t     *testing.T
	ws    *websocket.Conn
	inbox chan Envelope
	done  chan struct{}
	once  sync.Once
}

func dialClient(t *testing.T, s *Server, id, name string) *testClient {
	t.Helper()
	url := fmt.Sprintf("ws://%s/sendspin", s.Addr())
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	tc := &testClient{
		t:     t,
		ws:    ws,
		inbox: make(chan Envelope, 64),
		done:  make(chan struct{}),
	}
	tc.send(MsgClientHello, ClientHelloPayload{ClientID: id, Name: name, Roles: []Role{RolePlayer}})
	go tc.readAll()
	t.Cleanup(tc.close)

	hello := tc.expect(MsgServerHello)
	payload, err := decodePayload[ServerHelloPayload](hello)
	require.NoError(t, err)
	require.Equal(t, s.ID(), payload.ServerID)
	return tc
}

func (tc *testClient) send(msgType MessageType, payload any) {
	tc.t.Helper()
	data, err := encodeMessage(msgType, payload)
	require.NoError(tc.t, err)
	require.NoError(tc.t, tc.ws.WriteMessage(websocket.TextMessage, data))
}

func (tc *testClient) readAll() {
	for {
		_, data, err := tc.ws.ReadMessage()
		if err != nil {
			close(tc.done)
			return
		}
		env, err := decodeEnvelope(data)
		if err != nil {
			continue
		}
		tc.inbox <- env
	}
}

// expect waits for the next message of the given type, skipping others.
func (tc *testClient) expect(msgType MessageType) Envelope {
	tc.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-tc.inbox:
			if env.Type == msgType {
				return env
			}
		case <-deadline:
			tc.t.Fatalf("timed out waiting for %s", msgType)
			return Envelope{}
		}
	}
}

func (tc *testClient) close() {
	tc.once.Do(func() { _ = tc.ws.Close() })
}

// waitGone blocks until the server side dropped the connection.
func (tc *testClient) waitGone() {
	tc.t.Helper()
	select {
	case <-tc.done:
	case <-time.After(3 * time.Second):
		tc.t.Fatal("connection was not dropped in time")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	s := NewServer(ServerConfig{ServerID: "srv-1", ServerName: "Panel"})
	require.NoError(t, s.Start(context.Background(), "127.0.0.1", 0, false))
	assert.True(t, s.Running())
	assert.NotEmpty(t, s.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	assert.False(t, s.Running())
	assert.Empty(t, s.Addr())

	// Closing again is a no-op.
	assert.NoError(t, s.Close(ctx))
}

func TestServer_SecondStartIsRejected(t *testing.T) {
	s := startTestServer(t)
	err := s.Start(context.Background(), "127.0.0.1", 0, false)
	assert.ErrorIs(t, err, ErrServerRunning)
}

func TestServer_StartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewServer(ServerConfig{ServerID: "srv-1", ServerName: "Panel"})
	err = s.Start(context.Background(), "127.0.0.1", port, false)
	require.Error(t, err)
	assert.False(t, s.Running())
}

func TestServer_HandshakeRegistersClientAndEmitsEvent(t *testing.T) {
	s := startTestServer(t)

	collector := &eventCollector{}
	unsubscribe := s.AddListener(collector.add)
	defer unsubscribe()

	dialClient(t, s, "c1", "Kitchen Speaker")

	assert.Eventually(t, func() bool {
		for _, ev := range collector.all() {
			if added, ok := ev.(ClientAddedEvent); ok {
				return added.Client.ID == "c1" &&
					added.Client.Name == "Kitchen Speaker" &&
					len(added.ServerState().Clients) == 1
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "ClientAddedEvent with snapshot not observed")

	c, ok := s.Client("c1")
	require.True(t, ok)
	assert.Equal(t, []Role{RolePlayer}, c.Roles())
}

func TestServer_TimeSyncReply(t *testing.T) {
	s := startTestServer(t)
	tc := dialClient(t, s, "c1", "Kitchen")

	tc.send(MsgClientTime, ClientTimePayload{T1: 123456789})
	reply := tc.expect(MsgServerTime)

	payload, err := decodePayload[ServerTimePayload](reply)
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), payload.T1, "server must echo the client timestamp")
	assert.Greater(t, payload.T2, int64(0))
}

func TestServer_DisconnectEmitsClientRemoved(t *testing.T) {
	s := startTestServer(t)

	collector := &eventCollector{}
	defer s.AddListener(collector.add)()

	tc := dialClient(t, s, "c1", "Kitchen")
	require.Eventually(t, func() bool {
		_, ok := s.Client("c1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	tc.close()

	assert.Eventually(t, func() bool {
		for _, ev := range collector.all() {
			if removed, ok := ev.(ClientRemovedEvent); ok {
				return removed.Client.ID == "c1" && len(removed.ServerState().Clients) == 0
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	_, ok := s.Client("c1")
	assert.False(t, ok)
}

func TestServer_ServerInitiatedDisconnect(t *testing.T) {
	s := startTestServer(t)
	tc := dialClient(t, s, "c1", "Kitchen")

	var c *Client
	require.Eventually(t, func() bool {
		var ok bool
		c, ok = s.Client("c1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Disconnect(context.Background()))
	tc.waitGone()

	assert.Eventually(t, func() bool {
		_, ok := s.Client("c1")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)

	// Disconnecting again is a no-op.
	assert.NoError(t, c.Disconnect(context.Background()))
}

func TestServer_ReconnectReplacesStaleSession(t *testing.T) {
	s := startTestServer(t)

	first := dialClient(t, s, "c1", "Kitchen")
	require.Eventually(t, func() bool {
		_, ok := s.Client("c1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	second := dialClient(t, s, "c1", "Kitchen v2")
	first.waitGone()

	assert.Eventually(t, func() bool {
		c, ok := s.Client("c1")
		return ok && c.Name() == "Kitchen v2"
	}, 3*time.Second, 20*time.Millisecond)

	snap := s.Snapshot()
	assert.Len(t, snap.Clients, 1)
	_ = second
}

func TestServer_GroupLifecycle(t *testing.T) {
	s := startTestServer(t)
	ctx := context.Background()

	collector := &eventCollector{}
	defer s.AddListener(collector.add)()

	kitchen := dialClient(t, s, "c1", "Kitchen")
	bedroom := dialClient(t, s, "c2", "Bedroom")

	var c1, c2 *Client
	require.Eventually(t, func() bool {
		var ok1, ok2 bool
		c1, ok1 = s.Client("c1")
		c2, ok2 = s.Client("c2")
		return ok1 && ok2
	}, 3*time.Second, 20*time.Millisecond)

	group, err := s.CreateGroup(ctx, "Kitchen Zone")
	require.NoError(t, err)

	// A fresh group exists in the snapshot table but has no members yet.
	assert.Empty(t, s.Snapshot().Groups[0].MemberIDs)

	require.NoError(t, group.AddClient(ctx, c1))
	require.NoError(t, group.AddClient(ctx, c2))

	join := kitchen.expect(MsgGroupJoin)
	joinPayload, err := decodePayload[GroupJoinPayload](join)
	require.NoError(t, err)
	assert.Equal(t, group.ID(), joinPayload.GroupID)
	assert.Equal(t, "Kitchen Zone", joinPayload.Name)
	bedroom.expect(MsgGroupJoin)

	snap := s.Snapshot()
	grp, ok := snap.Group(group.ID())
	require.True(t, ok)
	assert.Equal(t, []string{"c1", "c2"}, grp.MemberIDs, "member order must match join order")

	// Volume change reaches both members and emits a state-changed event.
	require.NoError(t, group.SetVolume(ctx, 55))
	volPayload, err := decodePayload[GroupVolumePayload](kitchen.expect(MsgGroupVolume))
	require.NoError(t, err)
	assert.Equal(t, 55, volPayload.Volume)
	bedroom.expect(MsgGroupVolume)

	assert.Eventually(t, func() bool {
		return collector.count(func(ev Event) bool {
			changed, ok := ev.(GroupStateChangedEvent)
			return ok && changed.Group.Volume == 55
		}) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Streaming announces the source and lands the group in playing.
	require.NoError(t, group.StartStream(ctx, StreamInfo{Source: "tone", FreqHz: 440, Duration: 5 * time.Second}))
	startPayload, err := decodePayload[StreamStartPayload](kitchen.expect(MsgStreamStart))
	require.NoError(t, err)
	assert.Equal(t, 440, startPayload.FreqHz)
	bedroom.expect(MsgStreamStart)
	assert.Equal(t, GroupStatePlaying, group.Snapshot().State)

	require.NoError(t, group.StopStream(ctx, 0))
	kitchen.expect(MsgStreamStop)
	bedroom.expect(MsgStreamStop)
	assert.Equal(t, GroupStateIdle, group.Snapshot().State)

	// Play resumes the loaded stream.
	require.NoError(t, group.Play(ctx))
	kitchen.expect(MsgStreamStart)
	assert.Equal(t, GroupStatePlaying, group.Snapshot().State)
	require.NoError(t, group.StopStream(ctx, 0))
	kitchen.expect(MsgStreamStop)

	// Leaving one by one deletes the group with the last member.
	require.NoError(t, c1.LeaveGroup(ctx))
	leavePayload, err := decodePayload[GroupLeavePayload](kitchen.expect(MsgGroupLeave))
	require.NoError(t, err)
	assert.Equal(t, group.ID(), leavePayload.GroupID)

	require.NoError(t, c2.LeaveGroup(ctx))
	bedroom.expect(MsgGroupLeave)

	assert.Eventually(t, func() bool {
		for _, ev := range collector.all() {
			if deleted, ok := ev.(GroupDeletedEvent); ok {
				return deleted.GroupID == group.ID() && len(deleted.ServerState().Groups) == 0
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "zero membership must delete the group")

	_, ok = s.Group(group.ID())
	assert.False(t, ok)

	// Operations on the deleted group fail cleanly.
	assert.Error(t, group.AddClient(ctx, c2))
	assert.Error(t, group.SetVolume(ctx, 10))
}

func TestServer_DisconnectLastMemberDeletesGroup(t *testing.T) {
	s := startTestServer(t)
	ctx := context.Background()

	collector := &eventCollector{}
	defer s.AddListener(collector.add)()

	tc := dialClient(t, s, "c1", "Kitchen")
	var c1 *Client
	require.Eventually(t, func() bool {
		var ok bool
		c1, ok = s.Client("c1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	group, err := s.CreateGroup(ctx, "Solo")
	require.NoError(t, err)
	require.NoError(t, group.AddClient(ctx, c1))

	tc.close()

	// The disconnect must produce member-removed, group-deleted and
	// client-removed, in that order.
	assert.Eventually(t, func() bool {
		var kinds []string
		for _, ev := range collector.all() {
			switch ev.(type) {
			case GroupMemberRemovedEvent:
				kinds = append(kinds, "member-removed")
			case GroupDeletedEvent:
				kinds = append(kinds, "group-deleted")
			case ClientRemovedEvent:
				kinds = append(kinds, "client-removed")
			}
		}
		return len(kinds) == 3 &&
			kinds[0] == "member-removed" && kinds[1] == "group-deleted" && kinds[2] == "client-removed"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServer_MovingClientBetweenGroups(t *testing.T) {
	s := startTestServer(t)
	ctx := context.Background()

	dialClient(t, s, "c1", "Kitchen")
	var c1 *Client
	require.Eventually(t, func() bool {
		var ok bool
		c1, ok = s.Client("c1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	first, err := s.CreateGroup(ctx, "First")
	require.NoError(t, err)
	second, err := s.CreateGroup(ctx, "Second")
	require.NoError(t, err)

	require.NoError(t, first.AddClient(ctx, c1))
	require.NoError(t, second.AddClient(ctx, c1))

	// The move empties the first group, which deletes it.
	_, ok := s.Group(first.ID())
	assert.False(t, ok, "vacated group must be deleted")

	snap := s.Snapshot()
	client, ok := snap.Client("c1")
	require.True(t, ok)
	assert.Equal(t, second.ID(), client.GroupID)
}

func TestServer_SnapshotIsDetachedFromLiveState(t *testing.T) {
	s := startTestServer(t)
	ctx := context.Background()

	dialClient(t, s, "c1", "Kitchen")
	var c1 *Client
	require.Eventually(t, func() bool {
		var ok bool
		c1, ok = s.Client("c1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	before := s.Snapshot()
	require.Len(t, before.Clients, 1)
	assert.Empty(t, before.Clients[0].GroupID)

	group, err := s.CreateGroup(ctx, "Kitchen Zone")
	require.NoError(t, err)
	require.NoError(t, group.AddClient(ctx, c1))

	// The earlier snapshot must not see the later mutation.
	assert.Empty(t, before.Clients[0].GroupID)

	after := s.Snapshot()
	client, ok := after.Client("c1")
	require.True(t, ok)
	assert.Equal(t, group.ID(), client.GroupID)
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	s := NewServer(ServerConfig{ServerID: "srv-1", ServerName: "Panel"})
	require.NoError(t, s.Start(context.Background(), "127.0.0.1", 0, false))

	tc := dialClient(t, s, "c1", "Kitchen")
	require.Eventually(t, func() bool {
		_, ok := s.Client("c1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	tc.waitGone()
	assert.Empty(t, s.Snapshot().Clients)
}

func TestServer_PlayWithoutStreamFails(t *testing.T) {
	s := startTestServer(t)
	ctx := context.Background()

	group, err := s.CreateGroup(ctx, "Quiet")
	require.NoError(t, err)

	err = group.Play(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stream loaded")
}
