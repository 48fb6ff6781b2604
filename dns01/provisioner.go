package dns01

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Provisioner writes challenge records into managed zones. One Provisioner
// serves one issuance run: every write carries the same Tag. Writers to the
// same zone label are serialized, so a Provisioner is safe for concurrent use.
type Provisioner struct {
	zones ZoneManager
	tag   string
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProvisioner returns a Provisioner writing through zones with the run's
// correlation tag.
func NewProvisioner(zones ZoneManager, tag string, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{
		zones: zones,
		tag:   tag,
		log:   log,
		locks: map[string]*sync.Mutex{},
	}
}

// Tag returns the correlation tag of the run.
func (p *Provisioner) Tag() string {
	return p.tag
}

func (p *Provisioner) lock(zone Zone, label string) func() {
	key := strings.ToLower(zone.Name + "/" + label)
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Provision merges rec into the zone from zones that owns its name and writes
// the result back.
func (p *Provisioner) Provision(ctx context.Context, zones []Zone, rec ChallengeRecord) error {
	zone, ok := FindZone(zones, rec.Name)
	if !ok {
		return fmt.Errorf("no managed zone for record %q", rec.Name)
	}
	label := RelativeLabel(rec.Name, zone)

	unlock := p.lock(zone, label)
	defer unlock()

	existing, err := p.zones.GetTXT(ctx, zone, label)
	if err != nil {
		return fmt.Errorf("reading TXT %q in zone %q: %w", label, zone.Name, err)
	}

	merged := Merge(existing, label, p.tag, rec.Value)
	if existing != nil && existing.Tag != p.tag && len(existing.Values) > 0 {
		p.log.Info("clearing stale challenge values",
			zap.String("record", rec.Name),
			zap.String("stale_tag", existing.Tag),
			zap.Int("values", len(existing.Values)))
	}

	if err := p.zones.UpsertTXT(ctx, zone, merged); err != nil {
		return fmt.Errorf("writing TXT %q in zone %q: %w", label, zone.Name, err)
	}
	p.log.Info("provisioned challenge record",
		zap.String("record", rec.Name),
		zap.String("zone", zone.Name),
		zap.Int("values", len(merged.Values)))
	return nil
}
