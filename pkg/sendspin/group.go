package sendspin

import (
	"context"
	"fmt"
	"time"
)

// DefaultVolume is the volume assigned to a freshly created group.
const DefaultVolume = 100

// StreamInfo describes the source a group is asked to play. It is metadata
// only; no audio data flows through this package.
type StreamInfo struct {
	Source   string // "file" or "tone"
	Path     string
	MIME     string
	FreqHz   int
	Duration time.Duration
}

// Group is a set of clients playing in sync. Mutable fields are guarded by
// the owning server's mutex.
type Group struct {
	srv *Server

	id      string
	name    string
	state   GroupState
	volume  int
	muted   bool
	members []*Client // join order
	stream  *StreamInfo

	listeners    map[int]func(Event)
	nextListener int
	removed      bool
}

// ID returns the group identifier.
func (g *Group) ID() string { return g.id }

// Name returns the group's display name.
func (g *Group) Name() string { return g.name }

// Snapshot returns the group's current immutable view.
func (g *Group) Snapshot() GroupSnapshot {
	g.srv.mu.Lock()
	defer g.srv.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Group) snapshotLocked() GroupSnapshot {
	snap := GroupSnapshot{
		ID:        g.id,
		Name:      g.name,
		State:     g.state,
		Volume:    g.volume,
		Muted:     g.muted,
		MemberIDs: make([]string, 0, len(g.members)),
	}
	for _, m := range g.members {
		snap.MemberIDs = append(snap.MemberIDs, m.id)
	}
	return snap
}

// AddListener subscribes fn to this group's events. The returned function
// detaches the listener and tolerates repeated calls, including after the
// group was deleted.
func (g *Group) AddListener(fn func(Event)) func() {
	g.srv.mu.Lock()
	id := g.nextListener
	g.nextListener++
	g.listeners[id] = fn
	g.srv.mu.Unlock()

	return func() {
		g.srv.mu.Lock()
		delete(g.listeners, id)
		g.srv.mu.Unlock()
	}
}

// AddClient makes the client a member of this group, moving it out of its
// previous group first if it had one.
func (g *Group) AddClient(ctx context.Context, c *Client) error {
	s := g.srv

	s.mu.Lock()
	if g.removed {
		s.mu.Unlock()
		return fmt.Errorf("group %s no longer exists", g.id)
	}
	if c.removed {
		s.mu.Unlock()
		return fmt.Errorf("client %s is no longer connected", c.id)
	}
	if c.group == g {
		s.mu.Unlock()
		return nil
	}

	var pending []pendingEvent
	if c.group != nil {
		pending = append(pending, s.leaveGroupLocked(c)...)
	}
	g.members = append(g.members, c)
	c.group = g
	c.sendMessage(MsgGroupJoin, GroupJoinPayload{GroupID: g.id, Name: g.name})

	ev := GroupMemberAddedEvent{GroupID: g.id, ClientID: c.id}
	ev.State = s.snapshotLocked()
	pending = append(pending, pendingEvent{
		event:     ev,
		listeners: s.collectListenersLocked(g.listeners, c.listeners),
	})
	s.mu.Unlock()

	s.firePending(pending)
	return nil
}

// SetVolume sets the group volume (0-100) and broadcasts it to members.
func (g *Group) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("volume %d out of range 0-100", volume)
	}

	s := g.srv
	s.mu.Lock()
	if g.removed {
		s.mu.Unlock()
		return fmt.Errorf("group %s no longer exists", g.id)
	}
	if g.volume == volume {
		s.mu.Unlock()
		return nil
	}
	g.volume = volume
	pending := g.volumeChangedLocked()
	s.mu.Unlock()

	s.firePending(pending)
	return nil
}

// SetMuted mutes or unmutes the group and broadcasts the change.
func (g *Group) SetMuted(ctx context.Context, muted bool) error {
	s := g.srv
	s.mu.Lock()
	if g.removed {
		s.mu.Unlock()
		return fmt.Errorf("group %s no longer exists", g.id)
	}
	if g.muted == muted {
		s.mu.Unlock()
		return nil
	}
	g.muted = muted
	pending := g.volumeChangedLocked()
	s.mu.Unlock()

	s.firePending(pending)
	return nil
}

// volumeChangedLocked broadcasts the current volume state and builds the
// matching state-changed event.
func (g *Group) volumeChangedLocked() []pendingEvent {
	s := g.srv
	payload := GroupVolumePayload{GroupID: g.id, Volume: g.volume, Muted: g.muted}
	for _, m := range g.members {
		m.sendMessage(MsgGroupVolume, payload)
	}
	ev := GroupStateChangedEvent{Group: g.snapshotLocked()}
	ev.State = s.snapshotLocked()
	return []pendingEvent{{
		event:     ev,
		listeners: s.collectListenersLocked(g.listeners),
	}}
}

// StartStream loads a new stream into the group and starts playback:
// members receive the stream announcement while the group passes through
// buffering into playing.
func (g *Group) StartStream(ctx context.Context, info StreamInfo) error {
	s := g.srv

	s.mu.Lock()
	if g.removed {
		s.mu.Unlock()
		return fmt.Errorf("group %s no longer exists", g.id)
	}

	var pending []pendingEvent
	if g.state.IsActive() {
		// Replace whatever is playing.
		pending = append(pending, g.transitionLocked(GroupStateIdle)...)
	}
	g.stream = &info
	pending = append(pending, g.announceStreamLocked()...)
	pending = append(pending, g.transitionLocked(GroupStatePlaying)...)
	s.mu.Unlock()

	s.firePending(pending)
	return nil
}

// Play starts or resumes playback of the group's loaded stream.
func (g *Group) Play(ctx context.Context) error {
	s := g.srv

	s.mu.Lock()
	if g.removed {
		s.mu.Unlock()
		return fmt.Errorf("group %s no longer exists", g.id)
	}
	if g.stream == nil {
		s.mu.Unlock()
		return fmt.Errorf("no stream loaded for group %s", g.name)
	}
	if g.state == GroupStatePlaying {
		s.mu.Unlock()
		return nil
	}

	var pending []pendingEvent
	if g.state == GroupStateIdle {
		pending = append(pending, g.announceStreamLocked()...)
	}
	pending = append(pending, g.transitionLocked(GroupStatePlaying)...)
	s.mu.Unlock()

	s.firePending(pending)
	return nil
}

// StopStream stops playback at the given server time in unix micros; zero
// means immediately. Stopping an idle group is a no-op.
func (g *Group) StopStream(ctx context.Context, stopTimeUs int64) error {
	s := g.srv

	s.mu.Lock()
	if g.removed {
		s.mu.Unlock()
		return fmt.Errorf("group %s no longer exists", g.id)
	}
	if !g.state.IsActive() {
		s.mu.Unlock()
		return nil
	}

	payload := StreamStopPayload{GroupID: g.id, StopTimeUs: stopTimeUs}
	for _, m := range g.members {
		m.sendMessage(MsgStreamStop, payload)
	}
	pending := g.transitionLocked(GroupStateIdle)
	s.mu.Unlock()

	s.firePending(pending)
	return nil
}

// announceStreamLocked broadcasts stream/start and moves the group to
// buffering.
func (g *Group) announceStreamLocked() []pendingEvent {
	payload := StreamStartPayload{
		GroupID:    g.id,
		Source:     g.stream.Source,
		Path:       g.stream.Path,
		MIME:       g.stream.MIME,
		FreqHz:     g.stream.FreqHz,
		DurationMs: g.stream.Duration.Milliseconds(),
	}
	for _, m := range g.members {
		m.sendMessage(MsgStreamStart, payload)
	}
	return g.transitionLocked(GroupStateBuffering)
}

// transitionLocked applies a state change and builds its event. Invalid
// transitions are dropped with a log line rather than an error: they only
// arise from racing operations and the state machine is the authority.
func (g *Group) transitionLocked(next GroupState) []pendingEvent {
	if g.state == next {
		return nil
	}
	if !g.state.CanTransitionTo(next) {
		g.srv.log.Warn("Ignoring invalid group state transition",
			"group", g.name, "from", g.state.String(), "to", next.String())
		return nil
	}
	g.state = next

	ev := GroupStateChangedEvent{}
	// Snapshot after the state write so the event carries the new state.
	ev.Group = g.snapshotLocked()
	ev.State = g.srv.snapshotLocked()
	return []pendingEvent{{
		event:     ev,
		listeners: g.srv.collectListenersLocked(g.listeners),
	}}
}
