package dns01

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSServer runs a UDP DNS server on localhost answering TXT queries
// from records. It records the RecursionDesired flag of each query.
func startDNSServer(t *testing.T, records map[string][]string) (string, func() []bool) {
	t.Helper()

	var mu sync.Mutex
	var rd []bool
	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		mu.Lock()
		rd = append(rd, req.RecursionDesired)
		mu.Unlock()

		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		values, ok := records[q.Name]
		if !ok {
			m.Rcode = dns.RcodeNameError
		}
		if q.Qtype == dns.TypeTXT {
			for _, v := range values {
				m.Answer = append(m.Answer, &dns.TXT{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
					Txt: []string{v},
				})
			}
		}
		_ = w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() {
		_ = srv.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String(), func() []bool {
		mu.Lock()
		defer mu.Unlock()
		return append([]bool(nil), rd...)
	}
}

func TestStaticResolverLookupTXT(t *testing.T) {
	addr, recursion := startDNSServer(t, map[string][]string{
		"_acme-challenge.a.example.com.": {"val1", "val2"},
	})

	r := NewStaticResolver([]string{addr}, nil)
	values, err := r.LookupTXT(context.Background(), "_acme-challenge.a.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"val1", "val2"}, values)
	assert.Equal(t, []bool{false}, recursion())
}

func TestStaticResolverNoRecord(t *testing.T) {
	addr, _ := startDNSServer(t, map[string][]string{})

	r := NewStaticResolver([]string{addr}, nil)
	values, err := r.LookupTXT(context.Background(), "_acme-challenge.b.example.com")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestStaticResolverRecursive(t *testing.T) {
	addr, recursion := startDNSServer(t, map[string][]string{
		"_acme-challenge.a.example.com.": {"val1"},
	})

	r := NewStaticResolver([]string{addr}, nil)
	r.Recursive = true
	_, err := r.LookupTXT(context.Background(), "_acme-challenge.a.example.com.")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, recursion())
}

func TestResolverWithoutNameservers(t *testing.T) {
	_, err := (&DNSResolver{}).LookupTXT(context.Background(), "example.com")
	assert.Error(t, err)
}

func TestNormalizeNameservers(t *testing.T) {
	assert.Equal(t,
		[]string{"10.0.0.1:53", "10.0.0.2:5353", "[::1]:53"},
		normalizeNameservers([]string{"10.0.0.1", "10.0.0.2:5353", "::1"}))
}
