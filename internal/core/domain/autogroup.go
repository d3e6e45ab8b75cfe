package domain

import (
	"net"
	"strings"
)

// AutogroupRule classifies assets into an operational group by their
// network attributes. A rule matches when any of its populated criteria
// match the asset.
type AutogroupRule struct {
	Name           string
	CIDR           string // e.g. "10.22.0.0/16"
	HostnameSuffix string // e.g. ".db.example.net"
	MACPrefix      string // e.g. "00:1b:21"
}

// AutogroupMatcher resolves the autogroup label stored alongside each
// finding. Rules are evaluated in order; the first match wins.
type AutogroupMatcher struct {
	rules    []autogroupRule
	fallback string
}

type autogroupRule struct {
	name      string
	network   *net.IPNet
	suffix    string
	macPrefix string
}

// DefaultAutogroup is the label applied when no rule matches.
const DefaultAutogroup = "default"

// NewAutogroupMatcher compiles the rule list. Rules with an unparseable
// CIDR are kept with the CIDR criterion dropped.
func NewAutogroupMatcher(rules []AutogroupRule) *AutogroupMatcher {
	m := &AutogroupMatcher{fallback: DefaultAutogroup}
	for _, r := range rules {
		cr := autogroupRule{
			name:      r.Name,
			suffix:    strings.ToLower(r.HostnameSuffix),
			macPrefix: strings.ToLower(r.MACPrefix),
		}
		if r.CIDR != "" {
			if _, network, err := net.ParseCIDR(r.CIDR); err == nil {
				cr.network = network
			}
		}
		m.rules = append(m.rules, cr)
	}
	return m
}

// Classify returns the autogroup label for the given network attributes.
func (m *AutogroupMatcher) Classify(ip, mac, hostname string) string {
	addr := net.ParseIP(ip)
	hostname = strings.ToLower(hostname)
	mac = strings.ToLower(mac)
	for _, r := range m.rules {
		if r.network != nil && addr != nil && r.network.Contains(addr) {
			return r.name
		}
		if r.suffix != "" && strings.HasSuffix(hostname, r.suffix) {
			return r.name
		}
		if r.macPrefix != "" && strings.HasPrefix(mac, r.macPrefix) {
			return r.name
		}
	}
	return m.fallback
}
