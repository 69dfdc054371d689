// Package geo resolves an approximate location for a client IP.
package geo

import (
	"context"
	"net"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// Locator resolves a location. It returns nil when nothing is known;
// lookup failures are not errors to the caller.
type Locator interface {
	Lookup(ctx context.Context, ip string) *model.Geo
}

var privateNets = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPublic reports whether ip parses and lies outside the private and
// loopback ranges. Unparseable input counts as not public.
func IsPublic(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range privateNets {
		if n.Contains(parsed) {
			return false
		}
	}
	return true
}

// Chain tries each locator in order and returns the first result.
type Chain []Locator

// Lookup implements Locator.
func (c Chain) Lookup(ctx context.Context, ip string) *model.Geo {
	if !IsPublic(ip) {
		return nil
	}
	for _, l := range c {
		if l == nil {
			continue
		}
		if g := l.Lookup(ctx, ip); !g.IsZero() {
			return g
		}
	}
	return nil
}
