package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
)

const (
	// ServiceTypeServer is the mDNS service type a sendspin server announces.
	ServiceTypeServer = "_sendspin._tcp"
	// ServiceTypeClient is the mDNS service type sendspin players announce.
	ServiceTypeClient = "_sendspin-client._tcp"
	DefaultDomain     = "local"
)

type ServiceInfo struct {
	Name   string // instance name, e.g. "Living Room-a1b2c3d4"
	Type   string // service type, e.g. "_sendspin._tcp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
}

// LookupName builds the fully qualified service name dnssd browses for,
// e.g. "_sendspin._tcp.local.".
func LookupName(serviceType, domain string) string {
	return fmt.Sprintf("%s.%s.", strings.Trim(serviceType, "."), strings.Trim(domain, "."))
}

// Result is one update from a browse: either a full snapshot of the
// currently visible services or an error.
type Result struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	// Announce publishes the service until ctx is cancelled.
	Announce(ctx context.Context, service ServiceInfo) error
	// Discover browses for a service type and emits a fresh snapshot of
	// all visible instances whenever one appears or disappears. The
	// channel closes when ctx is cancelled.
	Discover(ctx context.Context, serviceType string) <-chan Result
}
