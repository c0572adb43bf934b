package transport

import (
	"net"
	"strings"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

// NatRewriter implements LocatorResolver for the common case: when the
// host of a peer's advertised locator differs from the host of its
// observed source address, trust the observed source instead (the
// original implementation's locator-rewriting behavior for peers
// behind symmetric/cone NATs, supplemented feature per
// SPEC_FULL.md). A peer whose advertised host matches the observed host
// keeps its advertised locator; an empty advertised address is replaced
// by the observed source. Only the one advertised locator passed in is
// compared.
type NatRewriter struct {
	// TrustObservedSource disables the rewrite entirely when false,
	// falling back to "always use the advertised locator" (the safe
	// default for networks without NAT).
	TrustObservedSource bool
}

// Resolve implements LocatorResolver.
func (n NatRewriter) Resolve(_ rtps.GuidPrefix, advertised Endpoint, observedSource Endpoint) Endpoint {
	if !n.TrustObservedSource {
		return advertised
	}
	if advertised.Addr == "" {
		return observedSource
	}
	if sameHost(advertised.Addr, observedSource.Addr) {
		return advertised
	}
	return observedSource
}

func sameHost(a, b string) bool {
	ah, _, aerr := net.SplitHostPort(a)
	bh, _, berr := net.SplitHostPort(b)
	if aerr != nil || berr != nil {
		return strings.EqualFold(a, b)
	}
	return ah == bh
}
