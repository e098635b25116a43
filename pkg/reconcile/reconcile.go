// Package reconcile rebuilds the panel's display lists from server
// snapshots. Both functions are pure full rescans: they take the immutable
// snapshot carried by an event and derive fresh lists, so running them twice
// on the same snapshot yields the same result and no incremental bookkeeping
// can drift out of sync.
package reconcile

import "github.com/spinpanel/spinpanel/pkg/sendspin"

// Clients returns the display list of clients in the order the server
// reports them, which is connection order.
func Clients(snap sendspin.ServerSnapshot) []sendspin.ClientSnapshot {
	clients := make([]sendspin.ClientSnapshot, len(snap.Clients))
	copy(clients, snap.Clients)
	return clients
}

// Groups derives the display list of groups from the clients' group
// back-references. A group appears when the first client referencing it is
// encountered and groups are ordered by that first encounter; members keep
// client-scan order. A group no client references is omitted entirely, so
// deleting the last member deletes the group here whether or not a deletion
// event was seen. Attributes come from the snapshot's group table; a
// back-reference to a group missing from the table yields a placeholder
// entry rather than dropping the member.
func Groups(snap sendspin.ServerSnapshot) []sendspin.GroupSnapshot {
	attrs := make(map[string]sendspin.GroupSnapshot, len(snap.Groups))
	for _, g := range snap.Groups {
		attrs[g.ID] = g
	}

	var order []string
	members := make(map[string][]string)
	for _, c := range snap.Clients {
		if c.GroupID == "" {
			continue
		}
		if _, seen := members[c.GroupID]; !seen {
			order = append(order, c.GroupID)
		}
		members[c.GroupID] = append(members[c.GroupID], c.ID)
	}

	groups := make([]sendspin.GroupSnapshot, 0, len(order))
	for _, id := range order {
		g, known := attrs[id]
		if !known {
			g = sendspin.GroupSnapshot{
				ID:     id,
				Name:   id,
				State:  sendspin.GroupStateIdle,
				Volume: sendspin.DefaultVolume,
			}
		}
		g.MemberIDs = members[id]
		groups = append(groups, g)
	}
	return groups
}
