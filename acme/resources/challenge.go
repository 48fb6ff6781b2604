package resources

// Challenge is a struct representing an ACME Challenge resource.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.5
type Challenge struct {
	Type      string   `json:"type"`
	URL       string   `json:"url"`
	Token     string   `json:"token"`
	Status    string   `json:"status"`
	Validated string   `json:"validated,omitempty"`
	Error     *Problem `json:"error,omitempty"`
}

func (c Challenge) String() string {
	return c.URL
}
