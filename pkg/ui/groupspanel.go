package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spinpanel/spinpanel/internal/style"
	"github.com/spinpanel/spinpanel/pkg/sendspin"
)

// groupsPanel lists the reconciled groups. Playback keys act on the cursor
// row; volume steps work from the row's last reconciled value, so the
// confirmed number comes back through the event feed.
type groupsPanel struct {
	table table.Model
	rows  []sendspin.GroupSnapshot
}

var groupColumns = []table.Column{
	{Title: "Name", Width: 14},
	{Title: "State", Width: 10},
	{Title: "Vol", Width: 4},
	{Title: "Mute", Width: 5},
	{Title: "Members", Width: 22},
}

const volumeStep = 5

func initGroupsPanel() groupsPanel {
	t := table.New(
		table.WithColumns(groupColumns),
		table.WithRows([]table.Row{}),
		table.WithHeight(1),
	)
	t.SetStyles(style.NewTableStyles())
	return groupsPanel{table: t}
}

func (p *groupsPanel) refresh(groups []sendspin.GroupSnapshot) {
	rows := make([]table.Row, 0, len(groups))
	for _, g := range groups {
		mute := "-"
		if g.Muted {
			mute = "yes"
		}
		rows = append(rows, table.Row{
			g.Name,
			g.State.String(),
			strconv.Itoa(g.Volume),
			mute,
			strings.Join(g.MemberIDs, ","),
		})
	}
	p.rows = groups
	p.table.SetRows(rows)
	p.table.SetHeight(len(rows) + 1)
}

func (p *groupsPanel) current() (sendspin.GroupSnapshot, bool) {
	i := p.table.Cursor()
	if i < 0 || i >= len(p.rows) {
		return sendspin.GroupSnapshot{}, false
	}
	return p.rows[i], true
}

func (m *model) updateGroups(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	g, have := m.groups.current()
	switch key.String() {
	case "p":
		if have {
			m.ctrl.PlayGroup(g.ID)
			m.refresh()
		}
		return nil
	case "x":
		if have {
			m.ctrl.StopGroup(g.ID)
			m.refresh()
		}
		return nil
	case "+", "=":
		if have {
			m.ctrl.SetGroupVolume(g.ID, min(g.Volume+volumeStep, 100))
			m.refresh()
		}
		return nil
	case "-":
		if have {
			m.ctrl.SetGroupVolume(g.ID, max(g.Volume-volumeStep, 0))
			m.refresh()
		}
		return nil
	case "m":
		if have {
			m.ctrl.SetGroupMuted(g.ID, !g.Muted)
			m.refresh()
		}
		return nil
	}

	var cmd tea.Cmd
	m.groups.table, cmd = m.groups.table.Update(msg)
	return cmd
}

func (m *model) groupsPanelView() string {
	var s strings.Builder
	s.WriteString(style.TitleStyle.Render(fmt.Sprintf("Groups (%d)", len(m.groups.rows))) + "\n")

	if len(m.groups.rows) == 0 {
		s.WriteString(style.HelpStyle.Render("no groups, mark clients and press g") + "\n")
	} else {
		s.WriteString(m.groups.table.View() + "\n")
	}
	s.WriteString(style.HelpStyle.Render("p play, x stop, +/- volume, m mute"))
	return s.String()
}
