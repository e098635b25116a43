// Package sendspin implements the control plane of a multiroom audio
// server: a websocket endpoint clients register against, groups that tie
// clients together for synchronized playback, and an event feed describing
// every change. Audio itself never flows here; streams are metadata driving
// group and protocol state.
package sendspin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/spinpanel/spinpanel/pkg/discovery"
)

var (
	// ErrServerRunning is returned by Start when the server is already up.
	ErrServerRunning = errors.New("server already running")
	// ErrServerStopped is returned by operations that need a running server.
	ErrServerStopped = errors.New("server not running")
)

const helloTimeout = 10 * time.Second

// ServerConfig carries the identity and collaborators of a server instance.
type ServerConfig struct {
	ServerID   string
	ServerName string
	// Discovery announces the server and browses for peers. Nil disables
	// mDNS entirely.
	Discovery discovery.Adapter
	Logger    *slog.Logger
}

// Server owns all domain state. One mutex guards it; every observer outside
// the lock works from immutable snapshots, and every event is emitted after
// its mutation has been fully applied.
type Server struct {
	cfg ServerConfig
	log *slog.Logger

	mu         sync.Mutex
	running    bool
	addr       string
	clients    []*Client // connection order
	clientByID map[string]*Client
	groups     []*Group // creation order
	groupByID  map[string]*Group

	listeners    map[int]func(Event)
	nextListener int

	httpSrv       *http.Server
	upgrader      websocket.Upgrader
	discoveryStop context.CancelFunc
}

// pendingEvent is an event built under the lock, delivered after unlock to
// the listener set collected at mutation time.
type pendingEvent struct {
	event     Event
	listeners []func(Event)
}

// NewServer creates a stopped server with the given identity.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		log:        logger,
		clientByID: make(map[string]*Client),
		groupByID:  make(map[string]*Group),
		listeners:  make(map[int]func(Event)),
	}
}

// ID returns the configured server identifier.
func (s *Server) ID() string { return s.cfg.ServerID }

// Name returns the configured display name.
func (s *Server) Name() string { return s.cfg.ServerName }

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listen address while the server runs, empty
// otherwise. Useful when starting on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ""
	}
	return s.addr
}

// Start binds the listen socket and begins accepting clients. With
// enableDiscovery set and a discovery adapter configured, the server also
// announces itself over mDNS and browses for sendspin clients on the LAN.
// A failure to bind (port in use, bad host) is returned synchronously.
func (s *Server) Start(ctx context.Context, host string, port int, enableDiscovery bool) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerRunning
	}
	s.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sendspin", s.handleWS)

	httpSrv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.running = true
	s.httpSrv = httpSrv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()

	if enableDiscovery && s.cfg.Discovery != nil {
		s.startDiscovery(port)
	}

	s.log.Info("Server listening", "addr", ln.Addr().String(), "server_id", s.cfg.ServerID)
	return nil
}

// startDiscovery launches the mDNS announcement and the peer browser. Both
// run until Close; their failures are logged, never fatal to the server.
func (s *Server) startDiscovery(port int) {
	dctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.discoveryStop = cancel
	s.mu.Unlock()

	info := discovery.ServiceInfo{
		Name:   fmt.Sprintf("%s-%s", s.cfg.ServerName, s.cfg.ServerID),
		Type:   discovery.ServiceTypeServer,
		Domain: discovery.DefaultDomain,
		Port:   port,
	}
	go func() {
		if err := s.cfg.Discovery.Announce(dctx, info); err != nil {
			s.log.Error("Failed to announce server over mDNS", "error", err)
		}
	}()

	go func() {
		for result := range s.cfg.Discovery.Discover(dctx, discovery.ServiceTypeClient) {
			if result.Error != nil {
				s.log.Error("mDNS browse failed", "error", result.Error)
				continue
			}
			s.log.Info("Sendspin clients visible on the LAN", "count", len(result.Services))
		}
	}()
}

// Close disconnects all clients and shuts the HTTP server down gracefully
// within the bounds of ctx. Closing a stopped server is a no-op.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	httpSrv := s.httpSrv
	s.httpSrv = nil
	stopDiscovery := s.discoveryStop
	s.discoveryStop = nil
	clients := make([]*Client, len(s.clients))
	copy(clients, s.clients)
	s.mu.Unlock()

	if stopDiscovery != nil {
		stopDiscovery()
	}
	for _, c := range clients {
		s.removeClient(c, nil)
	}

	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// AddListener subscribes fn to every event the server emits. The returned
// function detaches it and is safe to call repeatedly.
func (s *Server) AddListener(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot materializes the current server state.
func (s *Server) Snapshot() ServerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() ServerSnapshot {
	snap := ServerSnapshot{
		ServerID:   s.cfg.ServerID,
		ServerName: s.cfg.ServerName,
		Clients:    make([]ClientSnapshot, 0, len(s.clients)),
		Groups:     make([]GroupSnapshot, 0, len(s.groups)),
	}
	for _, c := range s.clients {
		snap.Clients = append(snap.Clients, c.snapshotLocked())
	}
	for _, g := range s.groups {
		snap.Groups = append(snap.Groups, g.snapshotLocked())
	}
	return snap
}

// Client looks up a connected client by id.
func (s *Server) Client(id string) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clientByID[id]
	return c, ok
}

// Group looks up a group by id.
func (s *Server) Group(id string) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groupByID[id]
	return g, ok
}

// Groups returns the current groups in creation order.
func (s *Server) Groups() []*Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make([]*Group, len(s.groups))
	copy(groups, s.groups)
	return groups
}

// CreateGroup creates an empty group. The group stays invisible to snapshot
// consumers until its first member joins; an empty name is replaced with a
// generated one.
func (s *Server) CreateGroup(ctx context.Context, name string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrServerStopped
	}
	if name == "" {
		name = fmt.Sprintf("Group %d", len(s.groups)+1)
	}
	g := &Group{
		srv:       s,
		id:        "grp-" + uuid.NewString()[:8],
		name:      name,
		state:     GroupStateIdle,
		volume:    DefaultVolume,
		listeners: make(map[int]func(Event)),
	}
	s.groups = append(s.groups, g)
	s.groupByID[g.id] = g
	return g, nil
}

// handleWS upgrades a connection and runs its read loop. The goroutine
// serving the HTTP request stays parked here for the lifetime of the
// client.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	hello, err := readHello(ws)
	if err != nil {
		s.log.Warn("Handshake failed", "remote", r.RemoteAddr, "error", err)
		_ = ws.Close()
		return
	}

	conn := newWSConn(ws, s.log)
	client, err := s.registerClient(hello, conn)
	if err != nil {
		s.log.Warn("Rejected client", "client_id", hello.ClientID, "error", err)
		conn.close()
		return
	}

	client.sendMessage(MsgServerHello, ServerHelloPayload{
		ServerID: s.cfg.ServerID,
		Name:     s.cfg.ServerName,
	})

	conn.readLoop(
		func(data []byte) { s.handleClientMessage(client, data) },
		func(err error) { s.removeClient(client, err) },
	)
}

// readHello reads and validates the first message of a fresh connection.
func readHello(ws *websocket.Conn) (ClientHelloPayload, error) {
	if err := ws.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return ClientHelloPayload{}, err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return ClientHelloPayload{}, fmt.Errorf("reading hello: %w", err)
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return ClientHelloPayload{}, err
	}
	if env.Type != MsgClientHello {
		return ClientHelloPayload{}, fmt.Errorf("expected %s, got %s", MsgClientHello, env.Type)
	}
	hello, err := decodePayload[ClientHelloPayload](env)
	if err != nil {
		return ClientHelloPayload{}, err
	}
	if hello.ClientID == "" {
		return ClientHelloPayload{}, fmt.Errorf("hello without a client_id")
	}
	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		return ClientHelloPayload{}, err
	}
	return hello, nil
}

// registerClient adds a client after its handshake. A reconnect with an id
// that is still registered replaces the stale session first; the check and
// the insert share one lock hold so two racing connections with the same id
// cannot both register.
func (s *Server) registerClient(hello ClientHelloPayload, conn *wsConn) (*Client, error) {
	name := hello.Name
	if name == "" {
		name = hello.ClientID
	}

	for {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return nil, ErrServerStopped
		}
		stale := s.clientByID[hello.ClientID]
		if stale != nil {
			s.mu.Unlock()
			s.log.Info("Client reconnected, replacing stale session", "client_id", hello.ClientID)
			s.removeClient(stale, nil)
			continue
		}

		c := &Client{
			srv:       s,
			conn:      conn,
			id:        hello.ClientID,
			name:      name,
			roles:     append([]Role(nil), hello.Roles...),
			listeners: make(map[int]func(Event)),
		}
		s.clients = append(s.clients, c)
		s.clientByID[c.id] = c

		ev := ClientAddedEvent{Client: c.snapshotLocked()}
		ev.State = s.snapshotLocked()
		pending := []pendingEvent{{
			event:     ev,
			listeners: s.collectListenersLocked(),
		}}
		s.mu.Unlock()

		s.log.Info("Client connected", "client_id", c.id, "name", c.name)
		s.firePending(pending)
		return c, nil
	}
}

// removeClient takes a client out of the domain: it leaves its group (which
// may delete the group), disappears from the roster and has its removal
// event emitted. Idempotent; later calls for the same client are no-ops.
func (s *Server) removeClient(c *Client, cause error) {
	s.mu.Lock()
	if c.removed {
		s.mu.Unlock()
		return
	}
	c.removed = true

	pending := s.leaveGroupLocked(c)

	before := c.snapshotLocked()
	for i, existing := range s.clients {
		if existing == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	delete(s.clientByID, c.id)

	ev := ClientRemovedEvent{Client: before}
	ev.State = s.snapshotLocked()
	pending = append(pending, pendingEvent{
		event:     ev,
		listeners: s.collectListenersLocked(c.listeners),
	})
	s.mu.Unlock()

	if cause != nil {
		s.log.Info("Client disconnected", "client_id", c.id, "reason", cause.Error())
	} else {
		s.log.Info("Client disconnected", "client_id", c.id)
	}
	s.firePending(pending)
	c.conn.close()
}

// leaveGroupLocked detaches c from its group and deletes the group when its
// membership drops to zero. Returns the events to fire after unlock.
func (s *Server) leaveGroupLocked(c *Client) []pendingEvent {
	g := c.group
	if g == nil {
		return nil
	}
	for i, m := range g.members {
		if m == c {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	c.group = nil
	c.sendMessage(MsgGroupLeave, GroupLeavePayload{GroupID: g.id})

	ev := GroupMemberRemovedEvent{GroupID: g.id, ClientID: c.id}
	ev.State = s.snapshotLocked()
	pending := []pendingEvent{{
		event:     ev,
		listeners: s.collectListenersLocked(g.listeners, c.listeners),
	}}

	if len(g.members) == 0 {
		pending = append(pending, s.deleteGroupLocked(g)...)
	}
	return pending
}

// deleteGroupLocked removes an empty group from the roster.
func (s *Server) deleteGroupLocked(g *Group) []pendingEvent {
	g.removed = true
	for i, existing := range s.groups {
		if existing == g {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			break
		}
	}
	delete(s.groupByID, g.id)

	ev := GroupDeletedEvent{GroupID: g.id, GroupName: g.name}
	ev.State = s.snapshotLocked()
	return []pendingEvent{{
		event:     ev,
		listeners: s.collectListenersLocked(g.listeners),
	}}
}

// handleClientMessage dispatches one inbound message from a registered
// client.
func (s *Server) handleClientMessage(c *Client, data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		s.log.Debug("Dropping malformed message", "client_id", c.id, "error", err)
		return
	}

	switch env.Type {
	case MsgClientTime:
		ping, err := decodePayload[ClientTimePayload](env)
		if err != nil {
			s.log.Debug("Dropping malformed time ping", "client_id", c.id, "error", err)
			return
		}
		c.sendMessage(MsgServerTime, ServerTimePayload{
			T1: ping.T1,
			T2: time.Now().UnixMicro(),
		})
	default:
		s.log.Debug("Unhandled message type", "client_id", c.id, "type", string(env.Type))
	}
}

// collectListenersLocked gathers the server listeners plus any entity
// listener maps into one invocation list.
func (s *Server) collectListenersLocked(extra ...map[int]func(Event)) []func(Event) {
	n := len(s.listeners)
	for _, m := range extra {
		n += len(m)
	}
	fns := make([]func(Event), 0, n)
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	for _, m := range extra {
		for _, fn := range m {
			fns = append(fns, fn)
		}
	}
	return fns
}

// firePending invokes listeners outside the lock, in event order. A
// panicking listener is contained so it cannot poison the emitting
// goroutine.
func (s *Server) firePending(pending []pendingEvent) {
	for _, p := range pending {
		for _, fn := range p.listeners {
			s.notify(fn, p.event)
		}
	}
}

func (s *Server) notify(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Recovered from panic in event listener", "panic", r)
		}
	}()
	fn(ev)
}
