package resources

import (
	"fmt"
	"strings"
)

// Problem is a struct representing a problem document from the server.
//
// See https://tools.ietf.org/html/rfc8555#section-6.7
type Problem struct {
	Type        string       `json:"type"`
	Detail      string       `json:"detail,omitempty"`
	Status      int          `json:"status,omitempty"`
	Identifier  *Identifier  `json:"identifier,omitempty"`
	Subproblems []Subproblem `json:"subproblems,omitempty"`
}

// Subproblem is a problem scoped to a single identifier of a request.
//
// See https://tools.ietf.org/html/rfc8555#section-6.7.1
type Subproblem struct {
	Type       string      `json:"type"`
	Detail     string      `json:"detail,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
}

// Code returns the short name of the problem type, e.g. "badNonce" for
// "urn:ietf:params:acme:error:badNonce".
func (p Problem) Code() string {
	return p.Type[strings.LastIndex(p.Type, ":")+1:]
}

func (p Problem) String() string {
	if p.Detail == "" {
		return p.Type
	}
	return fmt.Sprintf("%s: %s", p.Type, p.Detail)
}

func (s Subproblem) String() string {
	if s.Identifier != nil {
		return fmt.Sprintf("%s (%s): %s", s.Type, s.Identifier.Value, s.Detail)
	}
	return fmt.Sprintf("%s: %s", s.Type, s.Detail)
}
