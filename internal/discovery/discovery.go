// Package discovery browses mDNS/DNS-SD for the PV inverter's advertised
// Modbus endpoint and continuously feeds updated addresses to the inverter
// producer, so a device that disappears and reappears (or moves) on the
// network re-targets the live connection without a restart.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/devskill-org/p1budget/internal/corelog"
)

// EndpointSink receives "host:port" strings as the browsed service's
// address changes.
type EndpointSink interface {
	SetEndpoint(endpoint string)
}

// Browser continuously resolves instances of a service type and forwards
// matching endpoints to a sink.
type Browser struct {
	serviceType string
	instance    string
	log         *corelog.Logger
}

// New constructs a Browser for serviceType (e.g. "_modbus._tcp"),
// optionally filtered to a specific instance name; an empty instance
// matches every resolved entry.
func New(serviceType, instance string, log *corelog.Logger) *Browser {
	return &Browser{serviceType: serviceType, instance: instance, log: log}
}

// Run browses until ctx is cancelled, forwarding every matching resolved
// entry's address to sink. Resolution failures are logged and retried;
// they never terminate the process.
func (b *Browser) Run(ctx context.Context, sink EndpointSink) {
	for {
		if err := b.browseOnce(ctx, sink); err != nil && ctx.Err() == nil {
			b.log.Errorf("discovery: browse %s: %v", b.serviceType, err)
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (b *Browser) browseOnce(ctx context.Context, sink EndpointSink) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("new resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			if b.instance != "" && entry.Instance != b.instance {
				continue
			}
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			endpoint := fmt.Sprintf("%s:%d", entry.AddrIPv4[0].String(), entry.Port)
			b.log.Infof("discovery: resolved %s at %s", entry.Instance, endpoint)
			sink.SetEndpoint(endpoint)
		}
	}()

	return resolver.Browse(ctx, b.serviceType, "local.", entries)
}
