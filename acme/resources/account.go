// Package resources provides types for representing ACME protocol resources.
package resources

import (
	"fmt"
	"strings"
)

// Account holds information related to a single ACME Account resource. An
// Account with an empty ID has not yet been created with the ACME server.
//
// The ID field holds the server assigned account URL returned in the Location
// header of a newAccount response. It is used as the JWS "kid" header value
// for every request signed after registration.
//
// The Contact field holds "mailto:" URIs registered with the account.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.2
type Account struct {
	ID      string   `json:"location"`
	Contact []string `json:"contact,omitempty"`
	Status  string   `json:"status,omitempty"`
	// Orders is the account's order list URL, when the server advertises one.
	Orders string `json:"orders,omitempty"`
}

func (a Account) String() string {
	return a.ID
}

// NewAccount returns an uncreated Account with a mailto: contact for every
// non-empty email address.
func NewAccount(emails ...string) *Account {
	var contacts []string
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, "mailto:") {
			e = fmt.Sprintf("mailto:%s", e)
		}
		contacts = append(contacts, e)
	}
	return &Account{Contact: contacts}
}
