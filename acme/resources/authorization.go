package resources

import "fmt"

// The Identifier resource represents a subject identifier that can be included
// in a certificate.
//
// See:
// https://tools.ietf.org/html/rfc8555#section-7.5
// https://tools.ietf.org/html/rfc8555#section-9.7.7
//
// Only "dns" type identifiers are requested by this client.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DNSIdentifier returns a "dns" type Identifier for the given name.
func DNSIdentifier(name string) Identifier {
	return Identifier{Type: "dns", Value: name}
}

// The ACME Authorization resource represents an Account's authorization to
// issue for a specified identifier, based on interactions with associated
// Challenges.
//
// For information about the Authorization resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.4
type Authorization struct {
	// The URL of the Authorization. Not part of the server's JSON body, it is
	// populated from the URL the resource was fetched from.
	ID         string      `json:"-"`
	Status     string      `json:"status"`
	Identifier Identifier  `json:"identifier"`
	Challenges []Challenge `json:"challenges"`
	Expires    string      `json:"expires,omitempty"`
	Wildcard   bool        `json:"wildcard,omitempty"`
}

func (a Authorization) String() string {
	return a.ID
}

// Challenge returns the first challenge with the given type.
func (a Authorization) Challenge(typ string) (*Challenge, error) {
	for i := range a.Challenges {
		if a.Challenges[i].Type == typ {
			return &a.Challenges[i], nil
		}
	}
	return nil, fmt.Errorf("authorization %q for %q offers no %q challenge",
		a.ID, a.Identifier.Value, typ)
}
