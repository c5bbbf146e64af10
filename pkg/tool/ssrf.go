// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"fmt"
	"net"
	"net/url"
)

// reservedNets are ranges not covered by the net.IP classification
// helpers: carrier-grade NAT, IETF protocol assignments, benchmarking,
// and the class E block.
var reservedNets = func() []*net.IPNet {
	cidrs := []string{
		"100.64.0.0/10",
		"192.0.0.0/24",
		"198.18.0.0/15",
		"240.0.0.0/4",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}()

// ValidateOutboundURL rejects URLs whose host resolves to a private,
// loopback, link-local, or otherwise reserved address. Tools that emit
// outbound requests call this before connecting. allowPrivate bypasses
// the guard for deployments that intentionally target internal services.
func ValidateOutboundURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	if allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if reason := disallowedAddress(ip); reason != "" {
			return fmt.Errorf("destination %s is blocked: %s address", host, reason)
		}
		return nil
	}

	// Resolve the host so DNS names pointing at internal addresses are
	// caught, not just literal IPs.
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("cannot resolve host %q: %w", host, err)
	}

	for _, ip := range ips {
		if reason := disallowedAddress(ip); reason != "" {
			return fmt.Errorf("destination %s (%s) is blocked: %s address", host, ip, reason)
		}
	}
	return nil
}

func disallowedAddress(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate():
		return "private"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsUnspecified():
		return "unspecified"
	case ip.IsMulticast():
		return "multicast"
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return "reserved"
		}
	}
	return ""
}
