// Package registry implements the IS-04 registration worker: registry
// discovery, resource registration and the heartbeat loop.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/ManuGH/aes67-nmos/internal/log"
)

// ServiceName is the DNS-SD service type NMOS registries advertise.
const ServiceName = "_nmos-registration._tcp"

// registrationAPIVersion is assumed for browsed registries; DNS-SD TXT
// records may narrow this but v1.3 is what current registries serve.
const registrationAPIVersion = "v1.3"

// Endpoint is a resolved registry base URL, e.g.
// "http://192.0.2.1:8235/x-nmos/registration/v1.3".
type Endpoint struct {
	URL string
}

// BrowseFunc resolves a registry via mDNS within the given timeout. It
// returns nil without error when nothing was found in time.
type BrowseFunc func(ctx context.Context, timeout time.Duration) (*Endpoint, error)

// BrowseDNSSD browses the local network for an NMOS registry and returns
// the first advertised instance with a usable IPv4 address.
func BrowseDNSSD(ctx context.Context, timeout time.Duration) (*Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(browseCtx, ServiceName, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	logger := log.WithComponent("registry")
	for entry := range entries {
		if entry == nil || len(entry.AddrIPv4) == 0 {
			continue
		}
		url := fmt.Sprintf("http://%s:%d/x-nmos/registration/%s",
			entry.AddrIPv4[0], entry.Port, registrationAPIVersion)
		logger.Info().
			Str("event", "registry.discovered").
			Str("instance", entry.Instance).
			Str(log.FieldRegistryURL, url).
			Msg("registry advertised via DNS-SD")
		return &Endpoint{URL: url}, nil
	}
	return nil, nil
}
