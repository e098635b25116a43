package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spinpanel/spinpanel/internal/style"
	"github.com/spinpanel/spinpanel/pkg/sendspin"
)

// clientsPanel lists connected clients. Rows can be marked with space and
// folded into a new group; the cursor row is the target for disconnect and
// ungroup.
type clientsPanel struct {
	table     table.Model
	rows      []sendspin.ClientSnapshot
	marked    map[string]bool
	naming    bool
	nameInput textinput.Model
}

var clientColumns = []table.Column{
	{Title: "Sel", Width: 3},
	{Title: "ID", Width: 14},
	{Title: "Name", Width: 16},
	{Title: "Roles", Width: 16},
	{Title: "Group", Width: 12},
}

func initClientsPanel() clientsPanel {
	t := table.New(
		table.WithColumns(clientColumns),
		table.WithRows([]table.Row{}),
		table.WithHeight(1),
	)
	t.SetStyles(style.NewTableStyles())

	ni := textinput.New()
	ni.Placeholder = "group name"
	ni.Prompt = ""
	ni.CharLimit = 64
	ni.Width = 24

	return clientsPanel{
		table:     t,
		marked:    map[string]bool{},
		nameInput: ni,
	}
}

func (p *clientsPanel) refresh(clients []sendspin.ClientSnapshot, groups []sendspin.GroupSnapshot) {
	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}

	present := make(map[string]bool, len(clients))
	rows := make([]table.Row, 0, len(clients))
	for _, c := range clients {
		present[c.ID] = true
		sel := "[ ]"
		if p.marked[c.ID] {
			sel = "[x]"
		}
		group := "-"
		if c.GroupID != "" {
			group = names[c.GroupID]
			if group == "" {
				group = c.GroupID
			}
		}
		rows = append(rows, table.Row{sel, c.ID, c.Name, rolesLabel(c.Roles), group})
	}
	for id := range p.marked {
		if !present[id] {
			delete(p.marked, id)
		}
	}

	p.rows = clients
	p.table.SetRows(rows)
	p.table.SetHeight(len(rows) + 1)
}

func (p *clientsPanel) current() (sendspin.ClientSnapshot, bool) {
	i := p.table.Cursor()
	if i < 0 || i >= len(p.rows) {
		return sendspin.ClientSnapshot{}, false
	}
	return p.rows[i], true
}

// markedIDs returns the marked clients in display order.
func (p *clientsPanel) markedIDs() []string {
	var ids []string
	for _, c := range p.rows {
		if p.marked[c.ID] {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func rolesLabel(roles []sendspin.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func (m *model) updateClients(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	if m.clients.naming {
		return m.updateGroupNaming(key)
	}

	switch key.String() {
	case " ", "space":
		if c, ok := m.clients.current(); ok {
			if m.clients.marked[c.ID] {
				delete(m.clients.marked, c.ID)
			} else {
				m.clients.marked[c.ID] = true
			}
			m.refresh()
		}
		return nil

	case "g":
		if len(m.clients.markedIDs()) == 0 {
			c, ok := m.clients.current()
			if !ok {
				m.err = errors.New("no clients to group")
				return nil
			}
			m.clients.marked[c.ID] = true
			m.refresh()
		}
		m.err = nil
		m.clients.naming = true
		m.clients.nameInput.Focus()
		return textinput.Blink

	case "d":
		if c, ok := m.clients.current(); ok {
			m.err = nil
			m.ctrl.DisconnectClient(c.ID)
			m.refresh()
		}
		return nil

	case "u":
		c, ok := m.clients.current()
		if !ok {
			return nil
		}
		if c.GroupID == "" {
			m.err = fmt.Errorf("client %s is not in a group", c.Name)
			return nil
		}
		m.err = nil
		m.ctrl.RemoveFromGroup(c.ID)
		m.refresh()
		return nil
	}

	var cmd tea.Cmd
	m.clients.table, cmd = m.clients.table.Update(msg)
	return cmd
}

func (m *model) updateGroupNaming(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "enter":
		name := strings.TrimSpace(m.clients.nameInput.Value())
		if name == "" {
			m.err = errors.New("group name must not be empty")
			return nil
		}
		ids := m.clients.markedIDs()
		m.err = nil
		m.clients.naming = false
		m.clients.nameInput.Blur()
		m.clients.nameInput.Reset()
		m.clients.marked = map[string]bool{}
		m.ctrl.CreateGroup(ids, name)
		m.refresh()
		return nil

	case "esc":
		m.err = nil
		m.clients.naming = false
		m.clients.nameInput.Blur()
		m.clients.nameInput.Reset()
		return nil
	}

	var cmd tea.Cmd
	m.clients.nameInput, cmd = m.clients.nameInput.Update(key)
	return cmd
}

func (m *model) clientsPanelView() string {
	var s strings.Builder
	s.WriteString(style.TitleStyle.Render(fmt.Sprintf("Clients (%d)", len(m.clients.rows))) + "\n")

	if m.clients.naming {
		s.WriteString("New group: " + m.clients.nameInput.View() + "\n")
		s.WriteString(style.HelpStyle.Render("enter to create, esc to cancel") + "\n")
		return s.String()
	}

	if len(m.clients.rows) == 0 {
		s.WriteString(style.HelpStyle.Render("no clients connected") + "\n")
	} else {
		s.WriteString(m.clients.table.View() + "\n")
	}
	s.WriteString(style.HelpStyle.Render("space mark, g group, d disconnect, u ungroup"))
	return s.String()
}
