// Package net finds this machine's address and announces or locates boards on
// the local network.
package net

import (
	"log/slog"
	"net"
	"strconv"

	"LiveBoard/internal/client"
)

// GetOutgoingIP finds the preferred local IP address for the host to share.
func GetOutgoingIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		// no route out, fall back to the interfaces
		return firstIPv4().String()
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// ShareLink builds the link a host prints for others to join with.
func ShareLink(ip string, port int) string {
	return client.Scheme + net.JoinHostPort(ip, strconv.Itoa(port))
}

func firstIPv4() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		slog.Warn("could not list interfaces", "err", err)
		return net.IPv4(127, 0, 0, 1)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	slog.Warn("no suitable local IP found, share link uses loopback")
	return net.IPv4(127, 0, 0, 1)
}
