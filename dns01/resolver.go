package dns01

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// Resolver answers TXT queries for the propagation check.
type Resolver interface {
	// LookupTXT returns the text values of the TXT records at name. A name
	// with no TXT records yields an empty slice and no error.
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DefaultNameservers seed zone discovery when none are configured.
var DefaultNameservers = []string{
	"8.8.8.8:53",
	"1.1.1.1:53",
}

const defaultDNSTimeout = 10 * time.Second

// DNSResolver queries nameservers directly with github.com/miekg/dns. It
// never caches.
//
// With Authoritative set, the zone of the queried name is discovered through
// the Nameservers with an SOA walk, and the TXT query goes to the zone's own NS
// hosts with recursion disabled. Without it the TXT query goes straight to
// the Nameservers, with recursion desired only if Recursive is set. Use
// Recursive only against resolvers that do not cache, e.g. a local test
// server.
type DNSResolver struct {
	Nameservers   []string
	Authoritative bool
	Recursive     bool
	Timeout       time.Duration
	Log           *zap.Logger
}

// NewAuthoritativeResolver returns a DNSResolver that discovers and queries
// the authoritative nameservers of each name.
func NewAuthoritativeResolver(seeds []string, log *zap.Logger) *DNSResolver {
	if len(seeds) == 0 {
		seeds = DefaultNameservers
	}
	return &DNSResolver{
		Nameservers:   normalizeNameservers(seeds),
		Authoritative: true,
		Log:           log,
	}
}

// NewStaticResolver returns a DNSResolver that queries the given nameservers
// without discovery.
func NewStaticResolver(nameservers []string, log *zap.Logger) *DNSResolver {
	return &DNSResolver{
		Nameservers: normalizeNameservers(nameservers),
		Log:         log,
	}
}

func normalizeNameservers(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			out = append(out, net.JoinHostPort(server, "53"))
		} else {
			out = append(out, server)
		}
	}
	return out
}

func (r *DNSResolver) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if len(r.Nameservers) == 0 {
		return nil, errors.New("no nameservers configured")
	}
	fqdn := dns.Fqdn(name)

	targets := r.Nameservers
	recursive := r.Recursive
	if r.Authoritative {
		authNS, err := r.lookupNameservers(ctx, fqdn)
		if err != nil {
			return nil, err
		}
		targets = authNS
		recursive = false
	}

	var lastErr error
	for _, ns := range targets {
		in, err := r.query(ctx, fqdn, dns.TypeTXT, []string{ns}, recursive)
		if err != nil {
			lastErr = err
			continue
		}
		if in.Rcode != dns.RcodeSuccess && in.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("NS %s returned %s for %s", ns, dns.RcodeToString[in.Rcode], fqdn)
			continue
		}

		values := []string{}
		for _, rr := range in.Answer {
			if txt, ok := rr.(*dns.TXT); ok {
				values = append(values, strings.Join(txt.Txt, ""))
			}
		}
		r.logger().Debug("queried TXT record",
			zap.String("record", fqdn),
			zap.String("nameserver", ns),
			zap.Strings("values", values))
		return values, nil
	}
	return nil, lastErr
}

// query sends one question, trying each nameserver in turn and retrying a
// truncated UDP answer over TCP.
func (r *DNSResolver) query(ctx context.Context, fqdn string, rtype uint16, nameservers []string, recursive bool) (*dns.Msg, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = defaultDNSTimeout
	}

	m := new(dns.Msg)
	m.SetQuestion(fqdn, rtype)
	m.SetEdns0(4096, false)
	m.RecursionDesired = recursive

	var in *dns.Msg
	var err error
	for _, ns := range nameservers {
		udp := &dns.Client{Net: "udp", Timeout: timeout}
		in, _, err = udp.ExchangeContext(ctx, m, ns)

		if in != nil && in.Truncated {
			r.logger().Debug("truncated UDP answer, retrying with TCP", zap.String("nameserver", ns))
			tcp := &dns.Client{Net: "tcp", Timeout: timeout}
			in, _, err = tcp.ExchangeContext(ctx, m, ns)
		}

		if err == nil {
			return in, nil
		}
	}
	return nil, err
}

// lookupNameservers returns the NS hosts of the zone containing fqdn.
func (r *DNSResolver) lookupNameservers(ctx context.Context, fqdn string) ([]string, error) {
	zone, err := r.findZoneByFqdn(ctx, fqdn)
	if err != nil {
		return nil, fmt.Errorf("could not determine the zone for %q: %w", fqdn, err)
	}

	in, err := r.query(ctx, zone, dns.TypeNS, r.Nameservers, true)
	if err != nil {
		return nil, err
	}

	var authoritativeNss []string
	for _, rr := range in.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			authoritativeNss = append(authoritativeNss, net.JoinHostPort(strings.ToLower(ns.Ns), "53"))
		}
	}
	if len(authoritativeNss) == 0 {
		return nil, fmt.Errorf("could not determine authoritative nameservers for %q", fqdn)
	}
	return authoritativeNss, nil
}

// findZoneByFqdn walks up the labels of fqdn until an SOA answer names the
// zone apex.
func (r *DNSResolver) findZoneByFqdn(ctx context.Context, fqdn string) (string, error) {
	for _, index := range dns.Split(fqdn) {
		domain := fqdn[index:]

		in, err := r.query(ctx, domain, dns.TypeSOA, r.Nameservers, true)
		if err != nil {
			return "", err
		}
		if in.Rcode != dns.RcodeNameError && in.Rcode != dns.RcodeSuccess {
			return "", fmt.Errorf("unexpected response code %q for %s",
				dns.RcodeToString[in.Rcode], domain)
		}
		if in.Rcode != dns.RcodeSuccess {
			continue
		}
		for _, ans := range in.Answer {
			if _, ok := ans.(*dns.CNAME); ok {
				break
			}
			if soa, ok := ans.(*dns.SOA); ok {
				return soa.Hdr.Name, nil
			}
		}
	}
	return "", errors.New("could not find the start of authority")
}
