// Package dns01 provisions and verifies the TXT records that answer ACME
// dns-01 challenges.
package dns01

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cpu/vaultcert/acme"
	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
)

// DefaultTTL is the time-to-live of newly created challenge record sets.
const DefaultTTL = 60

// ChallengeRecord is the TXT record an authorization needs, together with the
// challenge it answers.
type ChallengeRecord struct {
	// The identifier being validated, without any wildcard prefix.
	Identifier string
	// The URL of the dns-01 challenge to answer once the record is visible.
	ChallengeURL string
	// The fully qualified record name, without a trailing dot.
	Name string
	// The expected TXT value.
	Value string
}

// NewChallengeRecord computes the record for the dns-01 challenge of authz
// using the account signer.
func NewChallengeRecord(authz *resources.Authorization, signer *keys.Signer) (ChallengeRecord, error) {
	chall, err := authz.Challenge(acme.DNS01_CHALLENGE)
	if err != nil {
		return ChallengeRecord{}, err
	}
	if chall.Token == "" {
		return ChallengeRecord{}, fmt.Errorf("%s challenge %q has no token", acme.DNS01_CHALLENGE, chall.URL)
	}
	ident := strings.TrimPrefix(authz.Identifier.Value, "*.")
	return ChallengeRecord{
		Identifier:   ident,
		ChallengeURL: chall.URL,
		Name:         RecordName(ident),
		Value:        keys.DNS01Value(signer.KeyAuth(chall.Token)),
	}, nil
}

// RecordName returns the dns-01 record name for an identifier.
func RecordName(identifier string) string {
	return acme.DNS01_LABEL + "." + UnFqdn(strings.TrimPrefix(identifier, "*."))
}

// Zone is a DNS zone managed by a ZoneManager.
type Zone struct {
	// The zone apex, e.g. "example.com".
	Name string
	// A backend specific identifier, e.g. an Azure resource ID.
	ID string
}

// TXTRecordSet is the TXT record set at one label of a zone.
type TXTRecordSet struct {
	// The label relative to the zone apex, "@" for the apex itself.
	Label string
	TTL   int64
	// The correlation tag of the run that last wrote the record set.
	Tag    string
	Values []string
	// An opaque concurrency token from the backend. Empty for a record set
	// that does not exist yet.
	Etag string
}

// ZoneManager is the DNS management backend.
type ZoneManager interface {
	// ListZones returns every zone the backend manages.
	ListZones(ctx context.Context) ([]Zone, error)
	// GetTXT returns the TXT record set at label, or nil if there is none.
	GetTXT(ctx context.Context, zone Zone, label string) (*TXTRecordSet, error)
	// UpsertTXT creates or replaces the TXT record set at set.Label.
	UpsertTXT(ctx context.Context, zone Zone, set *TXTRecordSet) error
}

// FindZone returns the zone whose name is the longest suffix of name on a
// label boundary. Matching is case insensitive.
func FindZone(zones []Zone, name string) (Zone, bool) {
	name = strings.ToLower(UnFqdn(name))
	var best Zone
	found := false
	for _, z := range zones {
		zn := strings.ToLower(UnFqdn(z.Name))
		if zn == "" {
			continue
		}
		if name != zn && !strings.HasSuffix(name, "."+zn) {
			continue
		}
		if !found || len(zn) > len(UnFqdn(best.Name)) {
			best = z
			found = true
		}
	}
	return best, found
}

// RelativeLabel strips the zone apex from name. The apex itself maps to "@".
func RelativeLabel(name string, zone Zone) string {
	name = UnFqdn(name)
	zn := UnFqdn(zone.Name)
	if strings.EqualFold(name, zn) {
		return "@"
	}
	return name[:len(name)-len(zn)-1]
}

// Merge applies the challenge record merge policy to existing, which may be
// nil, and returns the record set to write. The result always has DefaultTTL.
//
//   - no existing record: a new set with tag and value
//   - existing record with another tag: stale values are dropped, then value
//     is added and the set is retagged
//   - existing record with the same tag: value is appended unless present
//
// existing is not modified.
func Merge(existing *TXTRecordSet, label, tag, value string) *TXTRecordSet {
	if existing == nil {
		return &TXTRecordSet{
			Label:  label,
			TTL:    DefaultTTL,
			Tag:    tag,
			Values: []string{value},
		}
	}

	merged := *existing
	merged.Label = label
	merged.TTL = DefaultTTL
	if existing.Tag != tag {
		merged.Values = nil
		merged.Tag = tag
	} else {
		merged.Values = slices.Clone(existing.Values)
	}
	if !slices.Contains(merged.Values, value) {
		merged.Values = append(merged.Values, value)
	}
	return &merged
}

// ToFqdn converts the name into a fqdn appending a trailing dot.
func ToFqdn(name string) string {
	n := len(name)
	if n == 0 || name[n-1] == '.' {
		return name
	}
	return name + "."
}

// UnFqdn converts the fqdn into a name removing the trailing dot.
func UnFqdn(name string) string {
	n := len(name)
	if n != 0 && name[n-1] == '.' {
		return name[:n-1]
	}
	return name
}
