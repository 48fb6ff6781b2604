// Package challsrv is a dns01.ZoneManager backed by the Let's Encrypt
// challenge test server, for issuing against a local Pebble instance.
package challsrv

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cpu/vaultcert/dns01"
	"github.com/letsencrypt/challtestsrv"
	"go.uber.org/zap"
)

// TXTServer is the part of a challenge test server the Manager uses.
type TXTServer interface {
	AddDNSOneChallenge(host, content string)
	DeleteDNSOneChallenge(host string)
}

var _ TXTServer = (*challtestsrv.ChallSrv)(nil)

// Manager serves a fixed list of zones. Record sets are kept in memory, and
// every write replaces the TXT values the challenge server answers for the
// record's name.
type Manager struct {
	srv   TXTServer
	zones []dns01.Zone
	log   *zap.Logger

	mu      sync.Mutex
	records map[string]*dns01.TXTRecordSet
	version int
}

// New returns a Manager publishing through srv for the named zones.
func New(srv TXTServer, zoneNames []string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		srv:     srv,
		log:     log,
		records: map[string]*dns01.TXTRecordSet{},
	}
	for _, name := range zoneNames {
		name = dns01.UnFqdn(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		m.zones = append(m.zones, dns01.Zone{Name: name, ID: name})
	}
	return m
}

func host(zone dns01.Zone, label string) string {
	if label == "@" {
		return dns01.ToFqdn(zone.Name)
	}
	return dns01.ToFqdn(label + "." + zone.Name)
}

func (m *Manager) ListZones(ctx context.Context) ([]dns01.Zone, error) {
	return slices.Clone(m.zones), nil
}

func (m *Manager) GetTXT(ctx context.Context, zone dns01.Zone, label string) (*dns01.TXTRecordSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.records[host(zone, label)]
	if !ok {
		return nil, nil
	}
	cp := *set
	cp.Values = slices.Clone(set.Values)
	return &cp, nil
}

func (m *Manager) UpsertTXT(ctx context.Context, zone dns01.Zone, set *dns01.TXTRecordSet) error {
	h := host(zone, set.Label)

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.records[h]; ok && current.Etag != set.Etag {
		return fmt.Errorf("record %q changed concurrently", h)
	}

	m.srv.DeleteDNSOneChallenge(h)
	for _, v := range set.Values {
		m.srv.AddDNSOneChallenge(h, v)
	}

	m.version++
	stored := *set
	stored.Values = slices.Clone(set.Values)
	stored.Etag = fmt.Sprintf("%d", m.version)
	m.records[h] = &stored
	m.log.Debug("published TXT record", zap.String("record", h), zap.Strings("values", set.Values))
	return nil
}

// Clear removes every TXT record the Manager published.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.records {
		m.srv.DeleteDNSOneChallenge(h)
	}
	m.records = map[string]*dns01.TXTRecordSet{}
}
