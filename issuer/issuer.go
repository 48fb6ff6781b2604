// Package issuer drives an ACME order from creation through dns-01 challenge
// provisioning and propagation checks to a signed certificate chain.
package issuer

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cpu/vaultcert/acme"
	"github.com/cpu/vaultcert/acme/client"
	"github.com/cpu/vaultcert/acme/resources"
	"github.com/cpu/vaultcert/dns01"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFinalizeAttempts = 10
	defaultFinalizeInterval = 2 * time.Second
	defaultReadyInterval    = 5 * time.Second
)

// Options tune an Issuer. The zero value issues sequentially with a single
// readiness check, matching a run that is simply re-invoked when the CA is
// not done yet.
type Options struct {
	// Parallel provisions and checks authorizations concurrently.
	Parallel bool
	// ReadyAttempts is the number of order fetches made while the order is
	// pending after answering challenges. Defaults to 1.
	ReadyAttempts int
	// ReadyInterval is the wait between readiness fetches.
	ReadyInterval time.Duration
	// FinalizeAttempts bounds the order fetches made while waiting for the
	// certificate after finalization. Defaults to 10.
	FinalizeAttempts int
	// FinalizeInterval is the initial wait between those fetches. It grows
	// exponentially.
	FinalizeInterval time.Duration
}

func (o *Options) normalize() {
	if o.ReadyAttempts < 1 {
		o.ReadyAttempts = 1
	}
	if o.ReadyInterval <= 0 {
		o.ReadyInterval = defaultReadyInterval
	}
	if o.FinalizeAttempts < 1 {
		o.FinalizeAttempts = defaultFinalizeAttempts
	}
	if o.FinalizeInterval <= 0 {
		o.FinalizeInterval = defaultFinalizeInterval
	}
}

// Challenge is the per-authorization result of provisioning.
type Challenge struct {
	Authorization string
	// AlreadyValid is true when the CA reused an earlier authorization and no
	// record was provisioned.
	AlreadyValid bool
	Record       dns01.ChallengeRecord
}

// Bundle is an issued certificate chain, leaf first.
type Bundle struct {
	Certificates []*x509.Certificate
	PEM          []byte
}

// Leaf returns the end-entity certificate.
func (b *Bundle) Leaf() *x509.Certificate {
	if b == nil || len(b.Certificates) == 0 {
		return nil
	}
	return b.Certificates[0]
}

// Outcome describes how far an issuance run got. Issue returns an Outcome
// even when it fails.
type Outcome struct {
	State     State
	Readiness Readiness
	OrderURL  string
	// RunID is the correlation tag written to challenge records.
	RunID      string
	Challenges []Challenge
	// Bundle is set once the run reaches Finalized.
	Bundle *Bundle
}

// Issuer issues certificates for one ACME account.
type Issuer struct {
	client  *client.Client
	zones   dns01.ZoneManager
	checker *dns01.Checker
	opts    Options
	log     *zap.Logger

	// newRunID is replaced in tests.
	newRunID func() string
}

// New returns an Issuer. acmeClient must have an active account, see
// Bootstrap.
func New(acmeClient *client.Client, zones dns01.ZoneManager, checker *dns01.Checker, opts Options, log *zap.Logger) (*Issuer, error) {
	if acmeClient == nil {
		return nil, errors.New("issuer: ACME client must not be nil")
	}
	if zones == nil {
		return nil, errors.New("issuer: zone manager must not be nil")
	}
	if checker == nil {
		return nil, errors.New("issuer: propagation checker must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts.normalize()
	return &Issuer{
		client:   acmeClient,
		zones:    zones,
		checker:  checker,
		opts:     opts,
		log:      log,
		newRunID: uuid.NewString,
	}, nil
}

type run struct {
	*Issuer
	out *Outcome
	log *zap.Logger
}

func (r *run) advance(s State) {
	r.out.State = s
	r.log.Info("state transition", zap.Stringer("state", s))
}

// Issue requests a certificate for names, signed over csr (DER). Every error
// is a *StepError; the typed cause is reachable with errors.As.
func (i *Issuer) Issue(ctx context.Context, names []string, csr []byte) (*Outcome, error) {
	r := &run{
		Issuer: i,
		out:    &Outcome{State: Init, RunID: i.newRunID()},
	}
	r.log = i.log.With(zap.String("run_id", r.out.RunID), zap.Strings("names", names))

	if err := r.issue(ctx, names, csr); err != nil {
		se := stepError(StepFinalize, err)
		r.log.Error("issuance failed",
			zap.String("step", string(se.Step)),
			zap.Stringer("state", r.out.State),
			zap.Bool("retryable", Retryable(se)),
			zap.Error(se.Err))
		return r.out, se
	}
	return r.out, nil
}

func (r *run) issue(ctx context.Context, names []string, csr []byte) error {
	if len(names) == 0 {
		return stepError(StepPrecondition, errors.New("no names requested"))
	}
	if len(csr) == 0 {
		return stepError(StepPrecondition, errors.New("empty CSR"))
	}
	if r.client.ActiveAccountID() == "" || r.client.Signer() == nil {
		return stepError(StepPrecondition, errors.New("ACME client has no active account"))
	}

	zones, err := r.precondition(ctx, names)
	if err != nil {
		return stepError(StepPrecondition, err)
	}
	r.advance(PreconditionChecked)

	order, err := r.createOrder(ctx, names)
	if err != nil {
		return stepError(StepOrder, err)
	}
	r.out.OrderURL = order.ID
	r.log = r.log.With(zap.String("order", order.ID))
	r.advance(OrderCreated)

	challenges, err := r.provisionAll(ctx, zones, order)
	r.out.Challenges = challenges
	if err != nil {
		return err
	}
	r.advance(AuthorizationsProvisioned)

	if err := r.answerAll(ctx, challenges); err != nil {
		return stepError(StepAnswer, err)
	}
	r.advance(ChallengesAnswered)

	order, err = r.awaitReady(ctx, order)
	if err != nil {
		return stepError(StepReadiness, err)
	}
	r.advance(OrderReady)

	bundle, err := r.finalize(ctx, order, csr)
	if err != nil {
		return stepError(StepFinalize, err)
	}
	r.out.Bundle = bundle
	r.advance(Finalized)
	return nil
}

// Precondition checks that every name has a managed zone without creating
// an order.
func (i *Issuer) Precondition(ctx context.Context, names []string) error {
	r := &run{Issuer: i, out: &Outcome{}, log: i.log}
	if _, err := r.precondition(ctx, names); err != nil {
		return stepError(StepPrecondition, err)
	}
	return nil
}

func (r *run) precondition(ctx context.Context, names []string) ([]dns01.Zone, error) {
	zones, err := r.zones.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing zones: %w", err)
	}
	var unmatched []string
	for _, name := range names {
		if _, ok := dns01.FindZone(zones, strings.TrimPrefix(name, "*.")); !ok {
			unmatched = append(unmatched, name)
		}
	}
	if len(unmatched) > 0 {
		return nil, &ConfigurationError{Names: unmatched}
	}
	return zones, nil
}

func distinct(names []string) int {
	seen := map[string]bool{}
	for _, n := range names {
		seen[strings.ToLower(dns01.UnFqdn(n))] = true
	}
	return len(seen)
}

func (r *run) createOrder(ctx context.Context, names []string) (*resources.Order, error) {
	order, err := r.client.CreateOrder(ctx, names)
	if err != nil {
		return nil, err
	}
	if want := distinct(names); len(order.Authorizations) != want {
		return nil, &client.ProtocolError{
			Op: "newOrder",
			Problem: resources.Problem{
				Type: "about:blank",
				Detail: fmt.Sprintf("order %s has %d authorizations for %d names",
					order.ID, len(order.Authorizations), want),
			},
		}
	}
	return order, nil
}

func (r *run) provisionAll(ctx context.Context, zones []dns01.Zone, order *resources.Order) ([]Challenge, error) {
	prov := dns01.NewProvisioner(r.zones, r.out.RunID, r.log)
	results := make([]Challenge, len(order.Authorizations))

	if !r.opts.Parallel {
		for idx, authzURL := range order.Authorizations {
			c, err := r.provision(ctx, prov, zones, authzURL)
			if err != nil {
				return results[:idx], err
			}
			results[idx] = c
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for idx, authzURL := range order.Authorizations {
		g.Go(func() error {
			c, err := r.provision(gctx, prov, zones, authzURL)
			if err != nil {
				return err
			}
			mu.Lock()
			results[idx] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// provision prepares the dns-01 challenge of one authorization: it computes
// the record, merges it into its zone and confirms it is visible.
func (r *run) provision(ctx context.Context, prov *dns01.Provisioner, zones []dns01.Zone, authzURL string) (Challenge, error) {
	authz, err := r.client.GetAuthorization(ctx, authzURL)
	if err != nil {
		return Challenge{}, stepError(StepProvisioning, err)
	}
	log := r.log.With(zap.String("authz", authzURL), zap.String("identifier", authz.Identifier.Value))

	if authz.Status == acme.STATUS_VALID {
		log.Info("authorization already valid")
		return Challenge{Authorization: authzURL, AlreadyValid: true}, nil
	}

	rec, err := dns01.NewChallengeRecord(authz, r.client.Signer())
	if err != nil {
		return Challenge{}, stepError(StepProvisioning, err)
	}
	if err := prov.Provision(ctx, zones, rec); err != nil {
		return Challenge{}, stepError(StepProvisioning, err)
	}
	if err := r.checker.Verify(ctx, rec); err != nil {
		return Challenge{}, stepError(StepValidation, err)
	}
	log.Info("challenge record visible", zap.String("record", rec.Name))
	return Challenge{Authorization: authzURL, Record: rec}, nil
}

func (r *run) answerAll(ctx context.Context, challenges []Challenge) error {
	for _, c := range challenges {
		if c.AlreadyValid {
			continue
		}
		if _, err := r.client.AnswerChallenge(ctx, c.Record.ChallengeURL); err != nil {
			return err
		}
	}
	return nil
}

func readinessOf(status string) Readiness {
	switch status {
	case acme.STATUS_PENDING:
		return Pending
	case acme.STATUS_INVALID:
		return Invalid
	default:
		return Ready
	}
}

// awaitReady fetches the order until it leaves the pending state or the
// readiness attempts run out.
func (r *run) awaitReady(ctx context.Context, order *resources.Order) (*resources.Order, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.opts.ReadyInterval), uint64(r.opts.ReadyAttempts-1)),
		ctx)

	current := order
	err := backoff.Retry(func() error {
		o, err := r.client.GetOrder(ctx, order.ID)
		if err != nil {
			return backoff.Permanent(err)
		}
		current = o
		if readinessOf(o.Status) == Pending {
			return &ValidationPendingError{OrderURL: order.ID}
		}
		return nil
	}, policy)

	if err != nil {
		var pending *ValidationPendingError
		if errors.As(err, &pending) {
			r.out.Readiness = Pending
		}
		return nil, err
	}
	r.out.Readiness = readinessOf(current.Status)
	if r.out.Readiness == Invalid {
		return nil, &OrderInvalidError{OrderURL: order.ID, Problem: current.Error}
	}
	return current, nil
}

func (r *run) finalize(ctx context.Context, order *resources.Order, csr []byte) (*Bundle, error) {
	if order.Status == acme.STATUS_READY {
		finalized, err := r.client.FinalizeOrder(ctx, order, csr)
		if err != nil {
			return nil, err
		}
		order = finalized
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.FinalizeInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.FinalizeAttempts)), ctx)

	first := true
	err := backoff.Retry(func() error {
		if !first {
			o, err := r.client.GetOrder(ctx, order.ID)
			if err != nil {
				return backoff.Permanent(err)
			}
			order = o
		}
		first = false
		switch {
		case order.Status == acme.STATUS_INVALID:
			return backoff.Permanent(&OrderInvalidError{OrderURL: order.ID, Problem: order.Error})
		case order.Status == acme.STATUS_VALID && order.Certificate != "":
			return nil
		}
		r.log.Debug("waiting for certificate", zap.String("status", order.Status))
		return fmt.Errorf("order %s is %s after finalization", order.ID, order.Status)
	}, policy)
	if err != nil {
		return nil, err
	}

	chain, err := r.client.GetCertificate(ctx, order.Certificate)
	if err != nil {
		return nil, err
	}
	certs, err := ParseChain(chain)
	if err != nil {
		return nil, &client.ProtocolError{
			Op:      "getCert",
			Problem: resources.Problem{Type: "about:blank", Detail: err.Error()},
		}
	}
	r.log.Info("issued certificate",
		zap.String("certificate", order.Certificate),
		zap.Time("not_after", certs[0].NotAfter),
		zap.Int("chain", len(certs)))
	return &Bundle{Certificates: certs, PEM: chain}, nil
}

// ParseChain decodes every CERTIFICATE block of a PEM chain. A chain without
// certificates is an error.
func ParseChain(chain []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := chain
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates in chain")
	}
	return certs, nil
}
