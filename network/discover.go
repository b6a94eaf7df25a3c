package network

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// defaultUpstream is the default recursive resolver for DNSSEC queries.
	defaultUpstream = "8.8.8.8:53"

	discoveryTimeout = 10 * time.Second

	// edns0BufSize is the EDNS0 UDP buffer size.
	edns0BufSize = 4096

	electrumService = "_electrum-ws._tcp"
)

// Discoverer finds Electrum WebSocket servers through DNSSEC-validated SRV
// records. The upstream recursive resolver performs validation; responses
// without the AD flag are rejected.
type Discoverer struct {
	// Upstream is the recursive resolver address (e.g., "8.8.8.8:53").
	Upstream string
	Timeout  time.Duration
}

// DiscoverPeers resolves _electrum-ws._tcp.<domain> and returns wss:// URLs
// ordered by SRV priority, then descending weight.
func (d *Discoverer) DiscoverPeers(ctx context.Context, domain string) ([]string, error) {
	upstream := d.Upstream
	if upstream == "" {
		upstream = defaultUpstream
	}
	timeout := d.Timeout
	if timeout == 0 {
		timeout = discoveryTimeout
	}

	qname := dns.Fqdn(electrumService + "." + strings.TrimSuffix(domain, "."))
	msg := new(dns.Msg)
	msg.SetQuestion(qname, dns.TypeSRV)
	msg.RecursionDesired = true
	msg.SetEdns0(edns0BufSize, true) // DO (DNSSEC OK) flag

	client := &dns.Client{Timeout: timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrDiscovery, qname, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: query %s: rcode %s", ErrDiscovery, qname, dns.RcodeToString[resp.Rcode])
	}
	if !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: AD flag not set for %s", ErrDiscovery, qname)
	}

	var srvs []*dns.SRV
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			srvs = append(srvs, srv)
		}
	}
	if len(srvs) == 0 {
		return nil, fmt.Errorf("%w: no SRV records for %s", ErrDiscovery, qname)
	}
	sort.SliceStable(srvs, func(i, j int) bool {
		if srvs[i].Priority != srvs[j].Priority {
			return srvs[i].Priority < srvs[j].Priority
		}
		return srvs[i].Weight > srvs[j].Weight
	})

	urls := make([]string, len(srvs))
	for i, srv := range srvs {
		urls[i] = fmt.Sprintf("wss://%s:%d", strings.TrimSuffix(srv.Target, "."), srv.Port)
	}
	return urls, nil
}
