package resources

// The Order resource represents a collection of identifiers that an account
// wishes to create a Certificate for.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.3
//
// To understand the Status changes specified by ACME for the Order resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.6
type Order struct {
	// The server-assigned URL identifying the Order, taken from the Location
	// header of the newOrder response.
	ID          string       `json:"-"`
	Status      string       `json:"status"`
	Expires     string       `json:"expires,omitempty"`
	Identifiers []Identifier `json:"identifiers"`
	// URLs of the Authorization resources, in the order the server lists them.
	Authorizations []string `json:"authorizations"`
	// The URL used to finalize the Order with a CSR.
	Finalize string `json:"finalize"`
	// The URL of the issued certificate chain. Empty until the Order is valid.
	Certificate string   `json:"certificate,omitempty"`
	Error       *Problem `json:"error,omitempty"`
}

func (o Order) String() string {
	return o.ID
}

// Names returns the identifier values of the Order.
func (o Order) Names() []string {
	names := make([]string, 0, len(o.Identifiers))
	for _, ident := range o.Identifiers {
		names = append(names, ident.Value)
	}
	return names
}
