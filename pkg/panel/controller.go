// Package panel holds the controller behind the TUI: it owns the bridge to
// the worker goroutine, the subscription registry, the reconciled display
// snapshots and the event log. Every mutation of controller state happens in
// callbacks delivered through the relay, so the UI loop is the only writer.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spinpanel/spinpanel/pkg/audiofile"
	"github.com/spinpanel/spinpanel/pkg/bridge"
	"github.com/spinpanel/spinpanel/pkg/concurrency"
	"github.com/spinpanel/spinpanel/pkg/reconcile"
	"github.com/spinpanel/spinpanel/pkg/relay"
	"github.com/spinpanel/spinpanel/pkg/sendspin"
	"github.com/spinpanel/spinpanel/pkg/subscription"
)

// AudioServer is the slice of the domain server the controller drives. It is
// satisfied by *sendspin.Server.
type AudioServer interface {
	ID() string
	Start(ctx context.Context, host string, port int, enableDiscovery bool) error
	Close(ctx context.Context) error
	Snapshot() sendspin.ServerSnapshot
	Client(id string) (*sendspin.Client, bool)
	Group(id string) (*sendspin.Group, bool)
	CreateGroup(ctx context.Context, name string) (*sendspin.Group, error)
	AddListener(fn func(sendspin.Event)) func()
}

// ServerFactory builds a server for one start/stop session. The controller
// creates a fresh instance on every StartServer so the operator can change
// the identity between sessions.
type ServerFactory func(id, name string) AudioServer

// Options configures a Controller.
type Options struct {
	NewServer ServerFactory
	Relay     *relay.Relay
	// Logger receives the bridge worker's own warnings (panics,
	// fire-and-forget failures). Action outcomes go to the event log ring
	// instead.
	Logger *slog.Logger
	// Host is the listen host for StartServer, default 0.0.0.0.
	Host string
	// LogCapacity bounds the event log ring, default DefaultLogCapacity.
	LogCapacity int
	// OnRunning, if set, is called on the UI goroutine whenever the running
	// flag changes.
	OnRunning func(bool)
}

// Controller coordinates UI actions against the audio server. Action methods
// and accessors may be called from the UI goroutine only; actions submit work
// to the bridge and return immediately.
type Controller struct {
	factory ServerFactory
	relay   *relay.Relay
	bridge  *bridge.Bridge
	subs    *subscription.Registry
	guard   *concurrency.Guard
	host    string

	// UI-owned state, touched only inside relayed callbacks.
	srv       AudioServer // current session's server, nil before first start
	running   bool
	clients   []sendspin.ClientSnapshot
	groups    []sendspin.GroupSnapshot
	events    *Log
	onRunning func(bool)
}

// NewController wires the controller and starts the bridge worker.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := opts.Host
	if host == "" {
		host = "0.0.0.0"
	}
	c := &Controller{
		factory:   opts.NewServer,
		relay:     opts.Relay,
		bridge:    bridge.New(opts.Relay, logger),
		subs:      subscription.NewRegistry(),
		guard:     concurrency.NewGuard(),
		host:      host,
		events:    NewLog(opts.LogCapacity),
		onRunning: opts.OnRunning,
	}
	c.bridge.Start()
	return c
}

// Running reports the last known server running state.
func (c *Controller) Running() bool { return c.running }

// Busy reports whether a start or stop span is still in flight.
func (c *Controller) Busy() bool { return c.guard.Busy() }

// Clients returns the reconciled client list.
func (c *Controller) Clients() []sendspin.ClientSnapshot { return c.clients }

// Groups returns the reconciled group list.
func (c *Controller) Groups() []sendspin.GroupSnapshot { return c.groups }

// Events returns the event log ring.
func (c *Controller) Events() *Log { return c.events }

// Append adds a line to the event log. Exists so collaborators that already
// run on the UI goroutine (like the slog handler sink) share one ring.
func (c *Controller) Append(e Entry) { c.events.AppendEntry(e) }

func (c *Controller) logf(level slog.Level, format string, args ...any) {
	c.events.Append(level, fmt.Sprintf(format, args...))
}

func (c *Controller) setRunning(running bool) {
	if c.running == running {
		return
	}
	c.running = running
	if c.onRunning != nil {
		c.onRunning(running)
	}
}

// StartServer creates a server with the given identity and starts it,
// flipping the running flag optimistically; a failed start reverts it.
// Overlapping start/stop requests are refused with a log line instead of
// queueing up.
func (c *Controller) StartServer(id, name string, port int, enableDiscovery bool) {
	if c.running {
		c.logf(slog.LevelWarn, "Server is already running")
		return
	}
	if err := c.guard.Acquire(); err != nil {
		c.logf(slog.LevelWarn, "Server is already starting or stopping")
		return
	}

	srv := c.factory(id, name)
	c.srv = srv
	c.setRunning(true)
	c.logf(slog.LevelInfo, "Starting server %q on port %d", name, port)

	err := c.bridge.Submit(func(ctx context.Context) (any, error) {
		return nil, srv.Start(ctx, c.host, port, enableDiscovery)
	}, func(_ any, err error) {
		c.guard.Release()
		if err != nil {
			c.setRunning(false)
			c.logf(slog.LevelError, "Failed to start server: %v", err)
			return
		}
		c.logf(slog.LevelInfo, "Server started")
		c.subscribeServer(srv)
		c.RefreshNow()
	})
	if err != nil {
		c.guard.Release()
		c.setRunning(false)
		c.logf(slog.LevelError, "Failed to start server: %v", err)
	}
}

// StopServer tears the subscriptions down and closes the server. Display
// lists clear immediately; the worker handles the network teardown.
func (c *Controller) StopServer() {
	if !c.running || c.srv == nil {
		c.logf(slog.LevelWarn, "Server is not running")
		return
	}
	if err := c.guard.Acquire(); err != nil {
		c.logf(slog.LevelWarn, "Server is already starting or stopping")
		return
	}

	srv := c.srv
	c.setRunning(false)
	c.subs.UnsubscribeAll()
	c.applySnapshot(sendspin.ServerSnapshot{})
	c.logf(slog.LevelInfo, "Stopping server")

	err := c.bridge.Submit(func(ctx context.Context) (any, error) {
		// The close must finish even if the bridge is stopping underneath
		// it, so it does not inherit the worker context.
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return nil, srv.Close(stopCtx)
	}, func(_ any, err error) {
		c.guard.Release()
		if err != nil {
			c.logf(slog.LevelError, "Failed to stop server: %v", err)
			return
		}
		c.logf(slog.LevelInfo, "Server stopped")
	})
	if err != nil {
		c.guard.Release()
		c.logf(slog.LevelError, "Failed to stop server: %v", err)
	}
}

// CreateGroup creates a group and moves the given clients into it.
func (c *Controller) CreateGroup(clientIDs []string, name string) {
	srv := c.srv
	ids := append([]string(nil), clientIDs...)
	c.submit(srv, fmt.Sprintf("Create group %q", name), func(ctx context.Context) (any, error) {
		g, err := srv.CreateGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			client, ok := srv.Client(id)
			if !ok {
				return nil, fmt.Errorf("client %s is no longer connected", id)
			}
			if err := g.AddClient(ctx, client); err != nil {
				return nil, err
			}
		}
		return g.ID(), nil
	}, func(result any, err error) {
		if err != nil {
			c.logf(slog.LevelError, "Failed to create group %q: %v", name, err)
			return
		}
		c.logf(slog.LevelInfo, "Created group %q with %d member(s)", name, len(ids))
		if id, ok := result.(string); ok {
			c.subscribeGroup(id)
		}
	})
}

// DisconnectClient drops the client's connection.
func (c *Controller) DisconnectClient(id string) {
	c.submitClient(id, fmt.Sprintf("Disconnect %s", id), func(ctx context.Context, client *sendspin.Client) error {
		return client.Disconnect(ctx)
	})
}

// RemoveFromGroup takes a client out of its group. The group disappears by
// itself when this was its last member.
func (c *Controller) RemoveFromGroup(clientID string) {
	c.submitClient(clientID, fmt.Sprintf("Remove %s from its group", clientID), func(ctx context.Context, client *sendspin.Client) error {
		return client.LeaveGroup(ctx)
	})
}

// PlayGroup starts or resumes playback of the group's loaded stream.
func (c *Controller) PlayGroup(id string) {
	c.submitGroup(id, fmt.Sprintf("Play group %s", id), func(ctx context.Context, g *sendspin.Group) error {
		return g.Play(ctx)
	})
}

// StopGroup stops the group's playback immediately.
func (c *Controller) StopGroup(id string) {
	c.submitGroup(id, fmt.Sprintf("Stop group %s", id), func(ctx context.Context, g *sendspin.Group) error {
		return g.StopStream(ctx, 0)
	})
}

// SetGroupVolume sets the group volume, 0-100.
func (c *Controller) SetGroupVolume(id string, volume int) {
	c.submitGroup(id, fmt.Sprintf("Set group %s volume to %d", id, volume), func(ctx context.Context, g *sendspin.Group) error {
		return g.SetVolume(ctx, volume)
	})
}

// SetGroupMuted mutes or unmutes the group.
func (c *Controller) SetGroupMuted(id string, muted bool) {
	c.submitGroup(id, fmt.Sprintf("Set group %s muted=%t", id, muted), func(ctx context.Context, g *sendspin.Group) error {
		return g.SetMuted(ctx, muted)
	})
}

// StreamFile validates the file on the worker and streams it to the group.
func (c *Controller) StreamFile(groupID, path string) {
	c.submitGroup(groupID, fmt.Sprintf("Stream %s to group %s", path, groupID), func(ctx context.Context, g *sendspin.Group) error {
		info, err := audiofile.InspectAudio(path)
		if err != nil {
			return err
		}
		return g.StartStream(ctx, sendspin.StreamInfo{
			Source: "file",
			Path:   info.Path,
			MIME:   info.MIME,
		})
	})
}

// StreamTestTone streams a generated sine tone to the group.
func (c *Controller) StreamTestTone(groupID string, freqHz int, duration time.Duration) {
	c.submitGroup(groupID, fmt.Sprintf("Stream %d Hz test tone to group %s", freqHz, groupID), func(ctx context.Context, g *sendspin.Group) error {
		if freqHz <= 0 {
			return fmt.Errorf("frequency %d Hz out of range", freqHz)
		}
		return g.StartStream(ctx, sendspin.StreamInfo{
			Source:   "tone",
			FreqHz:   freqHz,
			Duration: duration,
		})
	})
}

// RefreshNow re-reads the server state through the worker, for operators who
// want to force a rescan.
func (c *Controller) RefreshNow() {
	srv := c.srv
	if !c.running || srv == nil {
		c.applySnapshot(sendspin.ServerSnapshot{})
		return
	}
	err := c.bridge.Submit(func(ctx context.Context) (any, error) {
		return srv.Snapshot(), nil
	}, func(result any, err error) {
		if err != nil {
			c.logf(slog.LevelError, "Refresh failed: %v", err)
			return
		}
		if snap, ok := result.(sendspin.ServerSnapshot); ok {
			c.applySnapshot(snap)
		}
	})
	if err != nil {
		c.logf(slog.LevelError, "Refresh failed: %v", err)
	}
}

// Shutdown stops the bridge, detaches all listeners, closes the server and
// finally the relay. The bridge goes first so every pending completion is
// delivered or closed out before the relay stops accepting callbacks.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.bridge.Stop(ctx)
	c.subs.UnsubscribeAll()

	if srv := c.srv; srv != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := srv.Close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.relay.Close()
	return err
}

// submit wraps bridge.Submit for actions against the current session's
// server: a missing server or a refused submission surfaces as an error log
// line named after the action.
func (c *Controller) submit(srv AudioServer, what string, work bridge.WorkFunc, complete bridge.CompletionFunc) {
	if srv == nil {
		c.logf(slog.LevelWarn, "%s: server is not running", what)
		return
	}
	if complete == nil {
		complete = func(_ any, err error) {
			if err != nil && !errors.Is(err, bridge.ErrBridgeClosed) {
				c.logf(slog.LevelError, "%s failed: %v", what, err)
			}
		}
	}
	if err := c.bridge.Submit(work, complete); err != nil {
		c.logf(slog.LevelError, "%s failed: %v", what, err)
	}
}

// submitClient runs op against a client looked up on the worker, so a client
// that disconnected between the keypress and the execution fails cleanly.
func (c *Controller) submitClient(id, what string, op func(context.Context, *sendspin.Client) error) {
	srv := c.srv
	c.submit(srv, what, func(ctx context.Context) (any, error) {
		client, ok := srv.Client(id)
		if !ok {
			return nil, fmt.Errorf("client %s is no longer connected", id)
		}
		return nil, op(ctx, client)
	}, nil)
}

func (c *Controller) submitGroup(id, what string, op func(context.Context, *sendspin.Group) error) {
	srv := c.srv
	c.submit(srv, what, func(ctx context.Context) (any, error) {
		g, ok := srv.Group(id)
		if !ok {
			return nil, fmt.Errorf("group %s no longer exists", id)
		}
		return nil, op(ctx, g)
	}, nil)
}

// subscribeServer attaches the main event feed. The handler runs on whatever
// goroutine emits the event and immediately hops onto the UI loop.
func (c *Controller) subscribeServer(srv AudioServer) {
	key := subscription.ServerKey(srv.ID())
	c.subs.Subscribe(key, func() func() {
		return srv.AddListener(func(ev sendspin.Event) {
			c.relay.Invoke(func() { c.handleEvent(ev) })
		})
	})
}

// subscribeClient attaches a per-client feed. Its events also arrive on the
// server feed; this handler only re-applies the carried snapshot, which is
// idempotent, so the duplicate costs a redundant reconcile and nothing else.
func (c *Controller) subscribeClient(id string) {
	client, ok := c.srv.Client(id)
	if !ok {
		return
	}
	c.subs.Subscribe(subscription.ClientKey(id), func() func() {
		return client.AddListener(func(ev sendspin.Event) {
			c.relay.Invoke(func() { c.applySnapshot(ev.ServerState()) })
		})
	})
}

func (c *Controller) subscribeGroup(id string) {
	g, ok := c.srv.Group(id)
	if !ok {
		return
	}
	c.subs.Subscribe(subscription.GroupKey(id), func() func() {
		return g.AddListener(func(ev sendspin.Event) {
			c.relay.Invoke(func() { c.applySnapshot(ev.ServerState()) })
		})
	})
}

// handleEvent processes one domain event on the UI goroutine: log it, keep
// the per-entity subscriptions in step with the entity set, and reconcile the
// display lists from the carried snapshot.
func (c *Controller) handleEvent(ev sendspin.Event) {
	switch e := ev.(type) {
	case sendspin.ClientAddedEvent:
		c.logf(slog.LevelInfo, "Client connected: %s (%s)", e.Client.Name, e.Client.ID)
		c.subscribeClient(e.Client.ID)
	case sendspin.ClientRemovedEvent:
		c.logf(slog.LevelInfo, "Client disconnected: %s (%s)", e.Client.Name, e.Client.ID)
		c.subs.Unsubscribe(subscription.ClientKey(e.Client.ID))
	case sendspin.GroupStateChangedEvent:
		c.logf(slog.LevelInfo, "Group %s: %s, volume %d%%, muted=%t",
			e.Group.Name, e.Group.State, e.Group.Volume, e.Group.Muted)
	case sendspin.GroupMemberAddedEvent:
		c.logf(slog.LevelInfo, "Client %s joined group %s", e.ClientID, e.GroupID)
		c.subscribeGroup(e.GroupID)
	case sendspin.GroupMemberRemovedEvent:
		c.logf(slog.LevelInfo, "Client %s left group %s", e.ClientID, e.GroupID)
	case sendspin.GroupDeletedEvent:
		c.logf(slog.LevelInfo, "Group %s deleted", e.GroupName)
		c.subs.Unsubscribe(subscription.GroupKey(e.GroupID))
	default:
		// The event union is closed; reaching this means a new kind was
		// added without teaching the controller about it.
		c.logf(slog.LevelError, "Unhandled event type %T", ev)
	}
	c.applySnapshot(ev.ServerState())
}

// applySnapshot reconciles the display lists from a materialized snapshot.
func (c *Controller) applySnapshot(snap sendspin.ServerSnapshot) {
	c.clients = reconcile.Clients(snap)
	c.groups = reconcile.Groups(snap)
}
