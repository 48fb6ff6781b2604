// Package dnstest provides an in-memory DNS backend for tests. It serves both
// as a dns01.ZoneManager and as a dns01.Resolver over the same records.
package dnstest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cpu/vaultcert/dns01"
)

// Zones is an in-memory set of zones and TXT record sets.
type Zones struct {
	mu      sync.Mutex
	zones   []dns01.Zone
	records map[string]*dns01.TXTRecordSet
	etag    int

	// Hidden makes LookupTXT answer nothing, as if records had not
	// propagated.
	Hidden bool
	// Override, when non-nil, is returned by LookupTXT instead of the
	// stored values.
	Override []string

	ListCalls   int
	UpsertCalls int
	Lookups     []string
}

// New returns Zones managing the named zones.
func New(names ...string) *Zones {
	z := &Zones{records: map[string]*dns01.TXTRecordSet{}}
	for _, name := range names {
		z.zones = append(z.zones, dns01.Zone{Name: name, ID: "/zones/" + name})
	}
	return z
}

func key(zone, label string) string {
	return strings.ToLower(label + "|" + zone)
}

// Put stores a record set directly.
func (z *Zones) Put(zone string, set dns01.TXTRecordSet) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.etag++
	set.Etag = fmt.Sprintf("etag-%d", z.etag)
	set.Values = slices.Clone(set.Values)
	z.records[key(zone, set.Label)] = &set
}

// Get returns a copy of a stored record set, or nil.
func (z *Zones) Get(zone, label string) *dns01.TXTRecordSet {
	z.mu.Lock()
	defer z.mu.Unlock()
	set, ok := z.records[key(zone, label)]
	if !ok {
		return nil
	}
	cp := *set
	cp.Values = slices.Clone(set.Values)
	return &cp
}

func (z *Zones) ListZones(ctx context.Context) ([]dns01.Zone, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.ListCalls++
	return slices.Clone(z.zones), nil
}

func (z *Zones) GetTXT(ctx context.Context, zone dns01.Zone, label string) (*dns01.TXTRecordSet, error) {
	return z.Get(zone.Name, label), nil
}

func (z *Zones) UpsertTXT(ctx context.Context, zone dns01.Zone, set *dns01.TXTRecordSet) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.UpsertCalls++
	current, ok := z.records[key(zone.Name, set.Label)]
	switch {
	case ok && set.Etag != current.Etag:
		return fmt.Errorf("precondition failed: etag %q does not match %q", set.Etag, current.Etag)
	case !ok && set.Etag != "":
		return fmt.Errorf("precondition failed: record %q does not exist", set.Label)
	}
	z.etag++
	stored := *set
	stored.Etag = fmt.Sprintf("etag-%d", z.etag)
	stored.Values = slices.Clone(set.Values)
	z.records[key(zone.Name, set.Label)] = &stored
	return nil
}

// Values returns the TXT values stored at the fully qualified name.
func (z *Zones) Values(name string) []string {
	z.mu.Lock()
	defer z.mu.Unlock()
	name = strings.ToLower(dns01.UnFqdn(name))
	zone, ok := dns01.FindZone(z.zones, name)
	if !ok {
		return nil
	}
	set, ok := z.records[key(zone.Name, dns01.RelativeLabel(name, zone))]
	if !ok {
		return nil
	}
	return slices.Clone(set.Values)
}

func (z *Zones) LookupTXT(ctx context.Context, name string) ([]string, error) {
	z.mu.Lock()
	z.Lookups = append(z.Lookups, name)
	hidden, override := z.Hidden, z.Override
	z.mu.Unlock()
	if hidden {
		return []string{}, nil
	}
	if override != nil {
		return slices.Clone(override), nil
	}
	return z.Values(name), nil
}
