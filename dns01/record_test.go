package dns01

import (
	"testing"

	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordName(t *testing.T) {
	assert.Equal(t, "_acme-challenge.a.example.com", RecordName("a.example.com"))
	assert.Equal(t, "_acme-challenge.example.com", RecordName("*.example.com"))
	assert.Equal(t, "_acme-challenge.a.example.com", RecordName("a.example.com."))
}

func TestNewChallengeRecord(t *testing.T) {
	_, signer, err := keys.NewAccountKey(keys.ES256)
	require.NoError(t, err)

	authz := &resources.Authorization{
		ID:         "https://ca/authz/1",
		Identifier: resources.DNSIdentifier("a.example.com"),
		Challenges: []resources.Challenge{
			{Type: "http-01", URL: "https://ca/chall/1-http", Token: "tok"},
			{Type: "dns-01", URL: "https://ca/chall/1", Token: "tok"},
		},
	}
	rec, err := NewChallengeRecord(authz, signer)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", rec.Identifier)
	assert.Equal(t, "https://ca/chall/1", rec.ChallengeURL)
	assert.Equal(t, "_acme-challenge.a.example.com", rec.Name)
	assert.Equal(t, keys.DNS01Value("tok."+signer.Thumbprint()), rec.Value)

	authz.Challenges = authz.Challenges[:1]
	_, err = NewChallengeRecord(authz, signer)
	assert.Error(t, err)
}

func TestFindZone(t *testing.T) {
	zones := []Zone{
		{Name: "example.com"},
		{Name: "sub.example.com"},
		{Name: "ample.com"},
		{Name: "other.org."},
	}
	testCases := []struct {
		name     string
		expected string
		found    bool
	}{
		{"a.example.com", "example.com", true},
		{"example.com", "example.com", true},
		{"_acme-challenge.x.sub.example.com", "sub.example.com", true},
		{"A.EXAMPLE.COM", "example.com", true},
		{"www.other.org", "other.org.", true},
		{"notexample.com", "", false},
		{"example.net", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			zone, ok := FindZone(zones, tc.name)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, zone.Name)
		})
	}
}

func TestRelativeLabel(t *testing.T) {
	zone := Zone{Name: "example.com"}
	assert.Equal(t, "_acme-challenge.a", RelativeLabel("_acme-challenge.a.example.com", zone))
	assert.Equal(t, "_acme-challenge", RelativeLabel("_acme-challenge.example.com.", zone))
	assert.Equal(t, "@", RelativeLabel("example.com", zone))
}

func TestMergeNew(t *testing.T) {
	set := Merge(nil, "_acme-challenge.a", "run-1", "B")
	assert.Equal(t, &TXTRecordSet{
		Label:  "_acme-challenge.a",
		TTL:    DefaultTTL,
		Tag:    "run-1",
		Values: []string{"B"},
	}, set)
}

func TestMergeIdempotent(t *testing.T) {
	existing := &TXTRecordSet{Label: "x", TTL: 60, Tag: "run-1", Values: []string{"A"}, Etag: "e1"}

	once := Merge(existing, "x", "run-1", "B")
	twice := Merge(once, "x", "run-1", "B")
	assert.Equal(t, []string{"A", "B"}, twice.Values)
	assert.Equal(t, "e1", twice.Etag)
	assert.Equal(t, []string{"A"}, existing.Values)
}

func TestMergeStaleTagClears(t *testing.T) {
	existing := &TXTRecordSet{Label: "x", TTL: 300, Tag: "old-run", Values: []string{"A"}, Etag: "e1"}

	merged := Merge(existing, "x", "run-2", "B")
	assert.Equal(t, []string{"B"}, merged.Values)
	assert.Equal(t, "run-2", merged.Tag)
	assert.Equal(t, int64(DefaultTTL), merged.TTL)
	assert.Equal(t, "e1", merged.Etag)
}

func TestMergeResetsTTL(t *testing.T) {
	existing := &TXTRecordSet{Label: "x", TTL: 3600, Tag: "run-1", Values: []string{"A"}}

	merged := Merge(existing, "x", "run-1", "B")
	assert.Equal(t, int64(DefaultTTL), merged.TTL)
	assert.Equal(t, int64(3600), existing.TTL)
}

func TestMergeUntaggedIsStale(t *testing.T) {
	existing := &TXTRecordSet{Label: "x", TTL: 60, Values: []string{"A"}}
	merged := Merge(existing, "x", "run-3", "B")
	assert.Equal(t, []string{"B"}, merged.Values)
}

func TestFqdnHelpers(t *testing.T) {
	assert.Equal(t, "example.com.", ToFqdn("example.com"))
	assert.Equal(t, "example.com.", ToFqdn("example.com."))
	assert.Equal(t, "", ToFqdn(""))
	assert.Equal(t, "example.com", UnFqdn("example.com."))
	assert.Equal(t, "example.com", UnFqdn("example.com"))
}
