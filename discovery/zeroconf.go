// Package discovery advertises and finds hosts on the local network over mDNS.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"breakout/protocol"
)

const (
	Service = "_breakout._tcp"
	Domain  = "local."
)

// Host is a server found on the network.
type Host struct {
	Instance string
	Addr     net.IP
	Port     int
	Version  int
}

// URL is the websocket endpoint of h.
func (h Host) URL() string {
	return "ws://" + net.JoinHostPort(h.Addr.String(), strconv.Itoa(h.Port)) + "/ws"
}

func text() []string {
	return []string{"v=" + strconv.Itoa(protocol.Version)}
}

// Advertise registers this server until Shutdown is called on the result.
func Advertise(instance string, port int) (*zeroconf.Server, error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, text(), nil)
	if err != nil {
		return nil, fmt.Errorf("advertise %s: %w", instance, err)
	}
	return server, nil
}

// Browse collects hosts speaking our protocol version until ctx is done.
func Browse(ctx context.Context, logger *log.Logger) ([]Host, error) {
	var hosts []Host
	err := browse(ctx, logger, func(h Host) bool {
		hosts = append(hosts, h)
		return true
	})
	return hosts, err
}

// First returns the first compatible host to answer.
func First(ctx context.Context, logger *log.Logger) (Host, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		found Host
		ok    bool
	)
	err := browse(ctx, logger, func(h Host) bool {
		found, ok = h, true
		return false
	})
	if err != nil {
		return Host{}, err
	}
	if !ok {
		return Host{}, fmt.Errorf("no %s host found: %w", Service, ctx.Err())
	}
	return found, nil
}

// browse feeds compatible hosts to fn until fn returns false or ctx is done.
func browse(ctx context.Context, logger *log.Logger, fn func(Host) bool) error {
	if logger == nil {
		logger = log.New(os.Stderr, "discovery: ", log.LstdFlags)
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return fmt.Errorf("browse %s: %w", Service, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			if h, ok := accept(entry, logger); ok && !fn(h) {
				return nil
			}
		}
	}
}

func accept(e *zeroconf.ServiceEntry, logger *log.Logger) (Host, bool) {
	h, ok := hostFromEntry(e)
	if !ok {
		return Host{}, false
	}
	if h.Version != protocol.Version {
		logger.Printf("skipping %s: protocol v%d", h.Instance, h.Version)
		return Host{}, false
	}
	return h, true
}

func hostFromEntry(e *zeroconf.ServiceEntry) (Host, bool) {
	if e == nil || len(e.AddrIPv4) == 0 {
		return Host{}, false
	}
	h := Host{Instance: e.Instance, Addr: e.AddrIPv4[0], Port: e.Port}
	for _, kv := range e.Text {
		if v, ok := strings.CutPrefix(kv, "v="); ok {
			h.Version, _ = strconv.Atoi(v)
		}
	}
	return h, true
}
