package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/brutella/dnssd"
	dnssdlog "github.com/brutella/dnssd/log"
)

func init() {
	// dnssd writes chatty diagnostics straight to stdout, which would tear
	// up the terminal UI.
	dnssdlog.Info.SetOutput(io.Discard)
	dnssdlog.Debug.SetOutput(io.Discard)
}

type MDNSAdapter struct{}

var _ Adapter = (*MDNSAdapter)(nil)

func (m *MDNSAdapter) Announce(ctx context.Context, serviceInfo ServiceInfo) error {
	text := map[string]string{
		"desc": "Sendspin audio server",
	}

	cfg := dnssd.Config{
		Name:   serviceInfo.Name,
		Type:   serviceInfo.Type,
		Domain: serviceInfo.Domain,
		// mdns multicasts to the interface addresses, so IPs can stay nil
		IPs:  nil,
		Text: text,
		Port: serviceInfo.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	if err = rp.Respond(ctx); err != nil {
		// Context cancellation is not an error in normal operation
		if err == context.Canceled {
			return nil
		}
		return fmt.Errorf("failed to respond to mDNS service: %w", err)
	}
	return nil
}

// Discover browses for serviceType and emits a snapshot of everything
// visible after each add or remove.
func (m *MDNSAdapter) Discover(ctx context.Context, serviceType string) <-chan Result {
	var (
		state = newBrowseState()
		outCh = make(chan Result, 10)
	)

	send := func(r Result) {
		select {
		case outCh <- r:
		default:
		}
	}

	addFn := func(e dnssd.BrowseEntry) {
		var addr net.IP
		if len(e.IPs) > 0 {
			addr = e.IPs[0]
		}
		send(Result{Services: state.add(ServiceInfo{
			Name:   e.Name,
			Type:   e.Type,
			Domain: e.Domain,
			Addr:   addr,
			Port:   e.Port,
		})})
	}

	rmvFn := func(e dnssd.BrowseEntry) {
		send(Result{Services: state.remove(ServiceInfo{
			Name:   e.Name,
			Type:   e.Type,
			Domain: e.Domain,
		})})
	}

	go func() {
		defer close(outCh)
		if err := dnssd.LookupType(ctx, LookupName(serviceType, DefaultDomain), addFn, rmvFn); err != nil && err != context.Canceled {
			send(Result{Error: fmt.Errorf("mDNS lookup failed: %w", err)})
		}
	}()

	return outCh
}

// browseState tracks the visible instances of one browse and materializes
// name-sorted snapshots, so consumers never see the internal map.
type browseState struct {
	mu      sync.Mutex
	entries map[string]ServiceInfo
}

func newBrowseState() *browseState {
	return &browseState{entries: make(map[string]ServiceInfo)}
}

func key(s ServiceInfo) string {
	return fmt.Sprintf("%s:%s:%s", s.Name, s.Type, s.Domain)
}

func (b *browseState) add(s ServiceInfo) []ServiceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key(s)] = s
	return b.snapshotLocked()
}

func (b *browseState) remove(s ServiceInfo) []ServiceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key(s))
	return b.snapshotLocked()
}

func (b *browseState) snapshotLocked() []ServiceInfo {
	snapshot := make([]ServiceInfo, 0, len(b.entries))
	for _, entry := range b.entries {
		snapshot = append(snapshot, entry)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Name < snapshot[j].Name })
	return snapshot
}
