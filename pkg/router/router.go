// Package router implements longest-prefix-match IPv4 forwarding across a
// set of owned NetworkInterfaces.
//
// Grounded in original_source/src/router/router.cpp for the route/TTL/
// checksum semantics. The DESIGN.md open-question decision documents why
// this implements the textual "try 32 down to 0, mask to the top N bits"
// algorithm rather than the original's rotr-based match() loop, and why
// interfaces are owned by index (per the spec's redesign note) rather than
// by shared_ptr.
package router

import (
	"fmt"

	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/logging"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/netif"
)

// routeEntry is one entry in the per-prefix-length routing table.
type routeEntry struct {
	nextHop      [4]byte
	hasNextHop   bool
	interfaceIdx int
}

// Metrics are plain forwarding counters, following the teacher's
// core.RouterMetrics flat-struct style.
type Metrics struct {
	DatagramsRouted  uint64
	DatagramsDropped uint64
}

// Router forwards IPv4 datagrams among a set of NetworkInterfaces it owns
// by index, using longest-prefix-match route selection.
type Router struct {
	interfaces []*netif.NetworkInterface
	// tables[prefixLength][maskedPrefix] = routeEntry
	tables  [33]map[uint32]routeEntry
	metrics Metrics
}

// New creates an empty Router.
func New() *Router {
	r := &Router{}
	for i := range r.tables {
		r.tables[i] = make(map[uint32]routeEntry)
	}
	return r
}

// AddInterface registers nic with the router and returns its index, used to
// reference it from AddRoute and as the chosen forwarding interface.
func (r *Router) AddInterface(nic *netif.NetworkInterface) int {
	r.interfaces = append(r.interfaces, nic)
	return len(r.interfaces) - 1
}

// Interface returns the NetworkInterface registered at idx.
func (r *Router) Interface(idx int) *netif.NetworkInterface { return r.interfaces[idx] }

// Metrics returns a snapshot of this router's counters.
func (r *Router) Metrics() Metrics { return r.metrics }

func ipToUint32(ip [4]byte) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uint32ToIP(v uint32) [4]byte {
	return [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// AddRoute installs a route for prefix/prefixLength, forwarding on the
// interface at interfaceIdx, via nextHop if given or directly to the
// datagram's destination otherwise (a directly connected network).
func (r *Router) AddRoute(prefix uint32, prefixLength uint8, nextHop *[4]byte, interfaceIdx int) {
	entry := routeEntry{interfaceIdx: interfaceIdx}
	if nextHop != nil {
		entry.nextHop = *nextHop
		entry.hasNextHop = true
	}
	masked := maskToPrefix(prefix, prefixLength)
	r.tables[prefixLength][masked] = entry

	logging.DebugWithFields(logging.RouteFields(ipString(uint32ToIP(masked)), int(prefixLength), interfaceIdx), "route installed")
}

func ipString(ip [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// maskToPrefix returns the top prefixLength bits of addr, with the
// remaining bits zeroed, for use as a table key.
func maskToPrefix(addr uint32, prefixLength uint8) uint32 {
	if prefixLength == 0 {
		return 0
	}
	return addr & (^uint32(0) << (32 - prefixLength))
}

// match finds the longest-prefix-match route entry for addr, trying prefix
// lengths from 32 down to 0, so a /32 host route is matched before any
// shorter prefix.
func (r *Router) match(addr uint32) (routeEntry, bool) {
	for length := 32; length >= 0; length-- {
		if entry, ok := r.tables[length][maskToPrefix(addr, uint8(length))]; ok {
			return entry, true
		}
	}
	return routeEntry{}, false
}

// Route drains every interface's received-datagram queue, decrements and
// re-checksums TTL-eligible datagrams, and forwards each to the
// longest-prefix-match route's interface. Datagrams with TTL <= 1, or with
// no matching route, are dropped silently (no ICMP).
func (r *Router) Route() {
	for _, in := range r.interfaces {
		for _, dgram := range in.Recv() {
			if dgram.Header.TTL <= 1 {
				r.metrics.DatagramsDropped++
				logging.Debugf("router: dropping datagram to %v, ttl expired", dgram.Header.Destination)
				continue
			}
			dgram.Header.TTL--
			dgram.Header.Checksum = dgram.Header.CalculateChecksum()

			entry, ok := r.match(ipToUint32(dgram.Header.Destination))
			if !ok {
				r.metrics.DatagramsDropped++
				logging.Debugf("router: dropping datagram to %v, no matching route", dgram.Header.Destination)
				continue
			}

			nextHop := dgram.Header.Destination
			if entry.hasNextHop {
				nextHop = entry.nextHop
			}
			r.interfaces[entry.interfaceIdx].SendDatagram(dgram, nextHop)
			r.metrics.DatagramsRouted++
		}
	}
}
