package sendspin

// Role describes a capability a client announced in its hello message.
type Role string

const (
	RolePlayer     Role = "player"
	RoleController Role = "controller"
	RoleMetadata   Role = "metadata"
)

// ClientSnapshot is the immutable view of one connected client. GroupID is
// the back-reference to the client's group, empty while ungrouped.
type ClientSnapshot struct {
	ID      string
	Name    string
	Roles   []Role
	GroupID string
}

// GroupSnapshot is the immutable view of one group. MemberIDs preserves the
// order in which clients joined.
type GroupSnapshot struct {
	ID        string
	Name      string
	State     GroupState
	Volume    int
	Muted     bool
	MemberIDs []string
}

// ServerSnapshot is the immutable view of the whole server at one point in
// time. Clients appear in connection order and Groups in creation order.
// Every event carries the snapshot taken right after its mutation was
// applied, so consumers on other goroutines never read live state.
type ServerSnapshot struct {
	ServerID   string
	ServerName string
	Clients    []ClientSnapshot
	Groups     []GroupSnapshot
}

// Client returns the snapshot entry for the given client id.
func (s ServerSnapshot) Client(id string) (ClientSnapshot, bool) {
	for _, c := range s.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return ClientSnapshot{}, false
}

// Group returns the snapshot entry for the given group id.
func (s ServerSnapshot) Group(id string) (GroupSnapshot, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return GroupSnapshot{}, false
}
