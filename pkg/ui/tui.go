// Package ui renders the control panel: the server panel on top, client and
// group tables in the middle, stream source and event log at the bottom. All
// panel state lives on the Bubble Tea goroutine; relayed callbacks are the
// only way controller state changes, so views read it without locks.
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/spinpanel/spinpanel/internal/style"
	"github.com/spinpanel/spinpanel/pkg/panel"
	"github.com/spinpanel/spinpanel/pkg/relay"
)

type focusArea int

const (
	focusServer focusArea = iota
	focusClients
	focusGroups
	focusStream
	focusLog
	focusAreaCount
)

// callbackMsg carries one relayed closure into Update.
type callbackMsg struct {
	fn func()
}

// relayClosedMsg arrives once the relay channel is closed and drained.
type relayClosedMsg struct{}

// Options seeds the server identity form. Controller and Relay must be the
// pair wired together by the caller.
type Options struct {
	Controller *panel.Controller
	Relay      *relay.Relay

	ServerID        string
	ServerName      string
	Port            int
	EnableDiscovery bool
}

type model struct {
	ctrl  *panel.Controller
	relay *relay.Relay

	focus    focusArea
	width    int
	height   int
	quitting bool
	err      error

	server  serverPanel
	clients clientsPanel
	groups  groupsPanel
	stream  streamPanel
	log     logPanel
}

func InitialModel(opts Options) model {
	m := model{
		ctrl:    opts.Controller,
		relay:   opts.Relay,
		focus:   focusServer,
		server:  initServerPanel(opts),
		clients: initClientsPanel(),
		groups:  initGroupsPanel(),
		stream:  initStreamPanel(),
		log:     initLogPanel(),
	}
	m.applyFocus()
	m.refresh()
	return m
}

// listenForCallbacks waits for the next relayed callback. It is re-armed
// after every delivery so the queue keeps draining.
func (m *model) listenForCallbacks() tea.Cmd {
	return func() tea.Msg {
		fn, ok := <-m.relay.C()
		if !ok {
			return relayClosedMsg{}
		}
		return callbackMsg{fn: fn}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.listenForCallbacks(), m.server.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case callbackMsg:
		msg.fn()
		m.refresh()
		return m, m.listenForCallbacks()

	case relayClosedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, m.resize()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.shutdown()
		case "tab":
			m.focus = (m.focus + 1) % focusAreaCount
			m.applyFocus()
			return m, nil
		case "shift+tab":
			m.focus = (m.focus + focusAreaCount - 1) % focusAreaCount
			m.applyFocus()
			return m, nil
		}

		var cmd tea.Cmd
		switch m.focus {
		case focusServer:
			cmd = m.updateServer(msg)
		case focusClients:
			cmd = m.updateClients(msg)
		case focusGroups:
			cmd = m.updateGroups(msg)
		case focusStream:
			cmd = m.updateStream(msg)
		case focusLog:
			cmd = m.updateLog(msg)
		}
		return m, cmd
	}

	// Everything else fans out to the panels that animate or receive
	// asynchronous results regardless of focus.
	return m, tea.Batch(m.updateServer(msg), m.updateStream(msg), m.updateLog(msg))
}

// refresh re-reads controller state into the panels. Called after every
// relayed callback and after every action, since actions log synchronously.
func (m *model) refresh() {
	m.clients.refresh(m.ctrl.Clients(), m.ctrl.Groups())
	m.groups.refresh(m.ctrl.Groups())
	m.log.refresh(m.ctrl.Events())
}

// applyFocus moves input and table focus to the active panel.
func (m *model) applyFocus() {
	if m.focus == focusClients {
		m.clients.table.Focus()
	} else {
		m.clients.table.Blur()
	}
	if m.focus == focusGroups {
		m.groups.table.Focus()
	} else {
		m.groups.table.Blur()
	}
	m.syncServerInputs()
	m.syncStreamInputs()
}

// shutdown runs the ordered teardown and quits. Blocking Update here is
// fine: the relay is closed at the end, nothing arrives after it.
func (m model) shutdown() (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, tea.Quit
	}
	m.quitting = true
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.ctrl.Shutdown(ctx)
	return m, tea.Quit
}

// resize pushes the new dimensions into the panels that scroll.
func (m *model) resize() tea.Cmd {
	half := m.halfWidth()
	m.log.vp.Width = half
	m.log.vp.Height = m.logHeight()

	var cmd tea.Cmd
	m.stream.picker, cmd = m.stream.picker.Update(tea.WindowSizeMsg{
		Width:  half,
		Height: m.logHeight() + 5,
	})
	return cmd
}

func (m model) halfWidth() int {
	half := (m.width - 4) / 2
	if half < 30 {
		half = 30
	}
	return half
}

func (m model) logHeight() int {
	h := m.height - 26
	if h < 6 {
		h = 6
	}
	if h > 16 {
		h = 16
	}
	return h
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	half := m.halfWidth()
	top := m.panelBox(focusServer, m.serverPanelView(), half*2+2)
	mid := lipgloss.JoinHorizontal(lipgloss.Top,
		m.panelBox(focusClients, m.clientsPanelView(), half),
		m.panelBox(focusGroups, m.groupsPanelView(), half),
	)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top,
		m.panelBox(focusStream, m.streamPanelView(), half),
		m.panelBox(focusLog, m.logPanelView(), half),
	)

	s := lipgloss.JoinVertical(lipgloss.Left, top, mid, bottom)
	if m.err != nil {
		s += "\n" + style.ErrorStyle.Render(m.err.Error())
	}
	s += "\n" + style.HelpStyle.Render("Tab to switch panels. Press ctrl + c to quit.")
	return s
}

func (m model) panelBox(area focusArea, content string, width int) string {
	st := style.PanelStyle
	if m.focus == area {
		st = style.FocusedPanelStyle
	}
	if width > 0 {
		st = st.Width(width)
	}
	return st.Render(content)
}
