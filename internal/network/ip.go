package network

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/jackpal/gateway"
)

var loopback = net.IPv4(127, 0, 0, 1).To4()

// DiscoverLANAddresses returns the IPv4 addresses other devices on the LAN
// can use to reach this host, best candidate first. It never returns an
// empty slice: with no usable interface it falls back to loopback. The
// error only reports what could not be inspected and is never fatal.
func DiscoverLANAddresses() ([]net.IP, error) {
	var errs []error

	var nets []*net.IPNet
	ifaces, err := net.Interfaces()
	if err != nil {
		errs = append(errs, fmt.Errorf("list interfaces: %w", err))
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("addresses of %s: %w", iface.Name, err))
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				nets = append(nets, ipnet)
			}
		}
	}

	gw, err := gateway.DiscoverGateway()
	if err != nil {
		gw = nil
	}

	return SelectLAN(nets, gw), errors.Join(errs...)
}

// SelectLAN filters interface networks down to routable IPv4 unicast
// addresses. The address on the gateway's subnet comes first, then private
// ranges, then anything else. Loopback is returned only when nothing else
// qualifies.
func SelectLAN(nets []*net.IPNet, gw net.IP) []net.IP {
	type candidate struct {
		ip   net.IP
		rank int
	}

	var cands []candidate
	seen := make(map[string]bool)
	for _, n := range nets {
		ip4 := n.IP.To4()
		if ip4 == nil || !ip4.IsGlobalUnicast() {
			continue
		}
		if seen[ip4.String()] {
			continue
		}
		seen[ip4.String()] = true

		rank := 2
		switch {
		case gw != nil && n.Contains(gw):
			rank = 0
		case ip4.IsPrivate():
			rank = 1
		}
		cands = append(cands, candidate{ip: ip4, rank: rank})
	}

	if len(cands) == 0 {
		return []net.IP{loopback}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].rank < cands[j].rank })

	out := make([]net.IP, len(cands))
	for i, c := range cands {
		out[i] = c.ip
	}
	return out
}

// ShareURLs renders scheme://ip:port for each address.
func ShareURLs(scheme string, ips []net.IP, port int) []string {
	urls := make([]string, len(ips))
	for i, ip := range ips {
		urls[i] = scheme + "://" + net.JoinHostPort(ip.String(), strconv.Itoa(port))
	}
	return urls
}
