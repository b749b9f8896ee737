package net

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_liveboard._tcp"

// ErrNoHost is returned when discovery finds no board on the local network.
var ErrNoHost = errors.New("no board found on the local network")

// Advertise announces a hub listening on port over mDNS. Shut the returned
// server down to withdraw the announcement.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, nil, []string{"LiveBoard"})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	slog.Info("advertising board", "service", serviceType, "host", host, "port", port)
	return server, nil
}

// Discover browses for an advertised hub and returns the host:port of the
// first one that answers within timeout.
func Discover(timeout time.Duration) (string, error) {
	entries := make(chan *mdns.ServiceEntry, 32)
	params := mdns.DefaultParams(serviceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	done := make(chan error, 1)
	go func() { done <- mdns.Query(params) }()

	for {
		select {
		case e := <-entries:
			if addr, ok := entryAddr(e); ok {
				return addr, nil
			}
		case err := <-done:
			if err != nil {
				return "", fmt.Errorf("mdns query: %w", err)
			}
			// answers may still be buffered
			for {
				select {
				case e := <-entries:
					if addr, ok := entryAddr(e); ok {
						return addr, nil
					}
				default:
					return "", ErrNoHost
				}
			}
		}
	}
}

func entryAddr(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port), true
}
