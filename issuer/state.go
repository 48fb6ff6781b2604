package issuer

// State is the progress of an issuance run. States advance in declaration
// order.
type State int

const (
	Init State = iota
	PreconditionChecked
	OrderCreated
	AuthorizationsProvisioned
	ChallengesAnswered
	OrderReady
	Finalized
)

var stateNames = map[State]string{
	Init:                      "init",
	PreconditionChecked:       "precondition-checked",
	OrderCreated:              "order-created",
	AuthorizationsProvisioned: "authorizations-provisioned",
	ChallengesAnswered:        "challenges-answered",
	OrderReady:                "order-ready",
	Finalized:                 "finalized",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Readiness is the order status observed after answering challenges.
type Readiness int

const (
	// Ready covers every status that can proceed to finalization.
	Ready Readiness = iota
	// Pending means the CA has not finished validation.
	Pending
	// Invalid means the CA rejected the order.
	Invalid
)

func (r Readiness) String() string {
	switch r {
	case Pending:
		return "pending"
	case Invalid:
		return "invalid"
	default:
		return "ready"
	}
}
