// Package discovery lets viewers and drawers on the same network find an overlay server
// without being told its address.
package discovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_strokeoverlay._tcp"

// Advertise announces a server listening on port. Shut the returned server down to stop.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, []string{"stroke-overlay"})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse collects host:port addresses of advertised servers until timeout passes or ctx
// is done.
func Browse(ctx context.Context, timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	var found []string
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range entries {
			if addr, ok := Address(e); ok {
				found = append(found, addr)
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout

	err := queryContext(ctx, params)
	close(entries)
	<-collected
	if err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}
	return found, nil
}

func queryContext(ctx context.Context, params *mdns.QueryParam) error {
	errs := make(chan error, 1)
	go func() { errs <- mdns.Query(params) }()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		// Query always returns once its timeout passes
		<-errs
		return ctx.Err()
	}
}

// Address formats a usable IPv4 host:port from an entry.
func Address(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port), true
}
