package commands

import (
	"fmt"
	"sort"
	"sync"

	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/acme/resources"
	"github.com/cpu/vaultcert/issuer"
)

// History records the outcome of every issuance run of a shell session.
type History struct {
	mu       sync.Mutex
	outcomes []*issuer.Outcome
}

// Add appends out. Outcomes without an order are not recorded.
func (h *History) Add(out *issuer.Outcome) {
	if out == nil || out.OrderURL == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, out)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.outcomes)
}

// Outcome returns the outcome at index.
func (h *History) Outcome(index int) (*issuer.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.outcomes) == 0 {
		return nil, fmt.Errorf("no orders have been created in this session")
	}
	if index < 0 || index >= len(h.outcomes) {
		return nil, fmt.Errorf("index out of bounds. must be >= 0 and < %d", len(h.outcomes))
	}
	return h.outcomes[index], nil
}

// OrderURLs returns the order URL of every recorded outcome, oldest first.
func (h *History) OrderURLs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	urls := make([]string, len(h.outcomes))
	for i, out := range h.outcomes {
		urls[i] = out.OrderURL
	}
	return urls
}

// Lines describes every recorded outcome for display.
func (h *History) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines := make([]string, len(h.outcomes))
	for i, out := range h.outcomes {
		lines[i] = fmt.Sprintf("%3d)\t%s\t%s\t%s", i, out.State, out.Readiness, out.OrderURL)
	}
	return lines
}

// FindOrderURL returns the order URL at index, or asks the user to pick one
// when index is negative.
func FindOrderURL(c *ishell.Context, index int) (string, error) {
	history := GetHistory(c)
	if index < 0 {
		if history.Len() == 0 {
			return "", fmt.Errorf("no orders have been created in this session")
		}
		index = c.MultiChoice(history.Lines(), "Select an order")
	}
	out, err := history.Outcome(index)
	if err != nil {
		return "", err
	}
	return out.OrderURL, nil
}

// PickAuthz fetches the authorizations of order and asks the user to pick
// one by identifier.
func PickAuthz(c *ishell.Context, order *resources.Order) (*resources.Authorization, error) {
	client := GetClient(c)
	ctx := GetContext(c)

	identifiersToAuthz := make(map[string]*resources.Authorization)
	for _, authzURL := range order.Authorizations {
		authz, err := client.GetAuthorization(ctx, authzURL)
		if err != nil {
			return nil, err
		}

		ident := authz.Identifier.Value
		if authz.Wildcard {
			ident = "*." + ident
		}
		identifiersToAuthz[ident] = authz
	}

	var keysList []string
	for ident := range identifiersToAuthz {
		keysList = append(keysList, ident)
	}
	sort.Strings(keysList)

	choice := c.MultiChoice(keysList, "Choose an authorization")
	return identifiersToAuthz[keysList[choice]], nil
}
