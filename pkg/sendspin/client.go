package sendspin

import (
	"context"
	"fmt"
)

// Client is one connected player. All mutable fields are guarded by the
// owning server's mutex; external goroutines observe clients through
// snapshots carried in events.
type Client struct {
	srv  *Server
	conn *wsConn

	id    string
	name  string
	roles []Role
	group *Group // back-reference, nil while ungrouped

	listeners    map[int]func(Event)
	nextListener int
	removed      bool
}

// ID returns the client identifier from the hello handshake.
func (c *Client) ID() string { return c.id }

// Name returns the display name announced by the client.
func (c *Client) Name() string { return c.name }

// Roles returns a copy of the roles announced by the client.
func (c *Client) Roles() []Role {
	roles := make([]Role, len(c.roles))
	copy(roles, c.roles)
	return roles
}

// Snapshot returns the client's current immutable view.
func (c *Client) Snapshot() ClientSnapshot {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() ClientSnapshot {
	snap := ClientSnapshot{
		ID:    c.id,
		Name:  c.name,
		Roles: make([]Role, len(c.roles)),
	}
	copy(snap.Roles, c.roles)
	if c.group != nil {
		snap.GroupID = c.group.id
	}
	return snap
}

// AddListener subscribes fn to events involving this client. The returned
// function detaches the listener; calling it repeatedly, or after the client
// is gone, is harmless.
func (c *Client) AddListener(fn func(Event)) func() {
	c.srv.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.srv.mu.Unlock()

	return func() {
		c.srv.mu.Lock()
		delete(c.listeners, id)
		c.srv.mu.Unlock()
	}
}

// LeaveGroup removes the client from its current group. The group is
// deleted implicitly if this was its last member.
func (c *Client) LeaveGroup(ctx context.Context) error {
	s := c.srv

	s.mu.Lock()
	if c.removed {
		s.mu.Unlock()
		return fmt.Errorf("client %s is no longer connected", c.id)
	}
	if c.group == nil {
		s.mu.Unlock()
		return fmt.Errorf("client %s is not in a group", c.id)
	}
	pending := s.leaveGroupLocked(c)
	s.mu.Unlock()

	s.firePending(pending)
	return nil
}

// Disconnect drops the client's connection. The removal event fires once
// the connection teardown is observed. Disconnecting an already removed
// client is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.srv.mu.Lock()
	removed := c.removed
	c.srv.mu.Unlock()
	if removed {
		return nil
	}
	c.conn.close()
	return nil
}

// sendMessage queues a protocol message for this client. Failures are
// logged, not returned: a client that cannot keep up will be dropped by its
// connection teardown, and group operations must not fail halfway through a
// broadcast.
func (c *Client) sendMessage(msgType MessageType, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		c.srv.log.Error("Failed to encode message", "type", string(msgType), "error", err)
		return
	}
	if err := c.conn.send(data); err != nil {
		c.srv.log.Debug("Failed to queue message", "type", string(msgType), "client", c.id, "error", err)
	}
}
