package sendspin

// Event is the closed set of notifications the server emits. It uses an
// unexported marker method so only types in this package (by embedding
// baseEvent) can satisfy the interface; consumers switch over the concrete
// types and can treat an unknown one as a programming error.
//
// Events are emitted after their mutation is fully applied, and each carries
// the server snapshot taken at that moment. Listeners run on the emitting
// goroutine and must not block.
type Event interface {
	isEvent()
	// ServerState returns the snapshot materialized right after the
	// mutation this event describes.
	ServerState() ServerSnapshot
}

type baseEvent struct {
	State ServerSnapshot
}

func (baseEvent) isEvent() {}

func (b baseEvent) ServerState() ServerSnapshot { return b.State }

// ClientAddedEvent fires when a client completes its hello handshake.
type ClientAddedEvent struct {
	baseEvent
	Client ClientSnapshot
}

// ClientRemovedEvent fires when a client disconnects, whichever side
// initiated it. The Client field holds the snapshot from just before
// removal.
type ClientRemovedEvent struct {
	baseEvent
	Client ClientSnapshot
}

// GroupStateChangedEvent fires when a group's playback state, volume or mute
// flag changes. Group holds the post-change snapshot.
type GroupStateChangedEvent struct {
	baseEvent
	Group GroupSnapshot
}

// GroupMemberAddedEvent fires when a client joins a group.
type GroupMemberAddedEvent struct {
	baseEvent
	GroupID  string
	ClientID string
}

// GroupMemberRemovedEvent fires when a client leaves a group.
type GroupMemberRemovedEvent struct {
	baseEvent
	GroupID  string
	ClientID string
}

// GroupDeletedEvent fires when a group is removed, which happens implicitly
// when its last member leaves.
type GroupDeletedEvent struct {
	baseEvent
	GroupID   string
	GroupName string
}

var (
	_ Event = ClientAddedEvent{}
	_ Event = ClientRemovedEvent{}
	_ Event = GroupStateChangedEvent{}
	_ Event = GroupMemberAddedEvent{}
	_ Event = GroupMemberRemovedEvent{}
	_ Event = GroupDeletedEvent{}
)
