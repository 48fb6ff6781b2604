// Package acmetest provides an in-process ACME server for tests. It verifies
// every JWS it receives, tracks nonces, and issues certificates from a
// throwaway CA.
package acmetest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/cpu/vaultcert/acme"
	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
	jose "github.com/go-jose/go-jose/v4"
)

var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.ES256, jose.ES384, jose.ES512, jose.RS256, jose.RS384, jose.RS512,
}

// Config controls the behaviour of a Server.
type Config struct {
	// StatusAfterAnswer is the status orders report once every challenge has
	// been answered. Defaults to "ready". An order that turns "valid" this way
	// already carries a certificate for a server generated key.
	StatusAfterAnswer string
	// ProcessingPolls is the number of order fetches after finalization that
	// report "processing" before the order becomes valid.
	ProcessingPolls int
	// BadNonces is the number of signed requests rejected with badNonce
	// before nonces are checked normally.
	BadNonces int
	// LookupTXT, when set, is consulted when a challenge is answered. The
	// challenge is valid only if the expected dns-01 value is returned for
	// the challenge record name.
	LookupTXT func(fqdn string) []string
	// OrderProblem, when set, is returned for every newOrder request.
	OrderProblem *resources.Problem
	// EmptyChain makes the certificate endpoint return an empty body.
	EmptyChain bool
}

type account struct {
	url string
	key *jose.JSONWebKey
}

type order struct {
	resources.Order
	authzs    []*authz
	polls     int
	finalized bool
	certPEM   []byte
}

type authz struct {
	resources.Authorization
	order *order
}

// Server is a fake ACME server backed by httptest.
type Server struct {
	*httptest.Server
	conf Config

	caKey  *ecdsa.PrivateKey
	caCert *x509.Certificate

	mu         sync.Mutex
	nonces     map[string]bool
	badNonces  int
	accounts   map[string]*account
	orders     map[string]*order
	authzs     map[string]*authz
	challenges map[string]*authz
	seq        int

	// Counters for assertions.
	NewAccountCalls int
	NewOrderCalls   int
	Answered        []string
}

// New starts a Server. Callers must Close it.
func New(conf Config) *Server {
	if conf.StatusAfterAnswer == "" {
		conf.StatusAfterAnswer = acme.STATUS_READY
	}
	s := &Server{
		conf:       conf,
		nonces:     map[string]bool{},
		badNonces:  conf.BadNonces,
		accounts:   map[string]*account{},
		orders:     map[string]*order{},
		authzs:     map[string]*authz{},
		challenges: map[string]*authz{},
	}
	s.initCA()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /dir", s.handleDirectory)
	mux.HandleFunc("HEAD /nonce", s.handleNonce)
	mux.HandleFunc("GET /nonce", s.handleNonce)
	mux.HandleFunc("POST /new-acct", s.handleNewAccount)
	mux.HandleFunc("POST /new-order", s.handleNewOrder)
	mux.HandleFunc("POST /order/{id}", s.handleOrder)
	mux.HandleFunc("POST /authz/{id}", s.handleAuthz)
	mux.HandleFunc("POST /chall/{id}", s.handleChallenge)
	mux.HandleFunc("POST /finalize/{id}", s.handleFinalize)
	mux.HandleFunc("POST /cert/{id}", s.handleCert)
	s.Server = httptest.NewServer(mux)
	return s
}

// DirectoryURL returns the URL of the server's directory.
func (s *Server) DirectoryURL() string {
	return s.URL + "/dir"
}

// CACert returns the certificate that signs issued leaves.
func (s *Server) CACert() *x509.Certificate {
	return s.caCert
}

// Counts returns the newAccount and newOrder request counts.
func (s *Server) Counts() (newAccount, newOrder int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NewAccountCalls, s.NewOrderCalls
}

// AnsweredChallenges returns the URLs of answered challenges in order.
func (s *Server) AnsweredChallenges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Answered...)
}

func (s *Server) initCA() {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "acmetest root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	s.caKey = key
	s.caCert = cert
}

func (s *Server) nextID() string {
	s.seq++
	return fmt.Sprintf("%d", s.seq)
}

// newNonce must be called with mu held.
func (s *Server) newNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	n := base64.RawURLEncoding.EncodeToString(b)
	s.nonces[n] = true
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	s.mu.Lock()
	w.Header().Set(acme.REPLAY_NONCE_HEADER, s.newNonce())
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) problem(w http.ResponseWriter, status int, typ, detail string) {
	s.mu.Lock()
	w.Header().Set(acme.REPLAY_NONCE_HEADER, s.newNonce())
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resources.Problem{
		Type:   "urn:ietf:params:acme:error:" + typ,
		Detail: detail,
		Status: status,
	})
}

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		acme.NEW_NONCE_ENDPOINT:   s.URL + "/nonce",
		acme.NEW_ACCOUNT_ENDPOINT: s.URL + "/new-acct",
		acme.NEW_ORDER_ENDPOINT:   s.URL + "/new-order",
		"meta": map[string]any{
			"termsOfService": s.URL + "/tos",
		},
	})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	w.Header().Set(acme.REPLAY_NONCE_HEADER, s.newNonce())
	s.mu.Unlock()
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

// verify parses and verifies a JWS request body. When embedded is true the
// JWS must carry a JWK; otherwise it must carry the kid of a known account.
func (s *Server) verify(w http.ResponseWriter, r *http.Request, embedded bool) ([]byte, *account, *jose.JSONWebKey, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.problem(w, http.StatusBadRequest, "malformed", "reading body")
		return nil, nil, nil, false
	}
	jws, err := jose.ParseSigned(string(body), signatureAlgorithms)
	if err != nil {
		s.problem(w, http.StatusBadRequest, "malformed", err.Error())
		return nil, nil, nil, false
	}
	if len(jws.Signatures) != 1 {
		s.problem(w, http.StatusBadRequest, "malformed", "expected one signature")
		return nil, nil, nil, false
	}
	header := jws.Signatures[0].Protected

	if u, _ := header.ExtraHeaders[jose.HeaderKey("url")].(string); u != s.URL+r.URL.Path {
		s.problem(w, http.StatusUnauthorized, "unauthorized", fmt.Sprintf("url header %q does not match request", u))
		return nil, nil, nil, false
	}

	s.mu.Lock()
	if s.badNonces > 0 {
		s.badNonces--
		s.mu.Unlock()
		s.problem(w, http.StatusBadRequest, "badNonce", "nonce rejected for testing")
		return nil, nil, nil, false
	}
	if !s.nonces[header.Nonce] {
		s.mu.Unlock()
		s.problem(w, http.StatusBadRequest, "badNonce", fmt.Sprintf("unknown nonce %q", header.Nonce))
		return nil, nil, nil, false
	}
	delete(s.nonces, header.Nonce)
	s.mu.Unlock()

	var jwk *jose.JSONWebKey
	var acct *account
	if embedded {
		if header.JSONWebKey == nil || header.KeyID != "" {
			s.problem(w, http.StatusBadRequest, "malformed", "newAccount requires an embedded jwk")
			return nil, nil, nil, false
		}
		jwk = header.JSONWebKey
	} else {
		s.mu.Lock()
		acct = s.accounts[header.KeyID]
		s.mu.Unlock()
		if acct == nil {
			s.problem(w, http.StatusBadRequest, "accountDoesNotExist", fmt.Sprintf("unknown kid %q", header.KeyID))
			return nil, nil, nil, false
		}
		jwk = acct.key
	}

	payload, err := jws.Verify(jwk.Key)
	if err != nil {
		s.problem(w, http.StatusBadRequest, "malformed", "signature verification failed")
		return nil, nil, nil, false
	}
	return payload, acct, jwk, true
}

func (s *Server) handleNewAccount(w http.ResponseWriter, r *http.Request) {
	payload, _, jwk, ok := s.verify(w, r, true)
	if !ok {
		return
	}
	var req struct {
		Contact   []string `json:"contact"`
		ToSAgreed bool     `json:"termsOfServiceAgreed"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || !req.ToSAgreed {
		s.problem(w, http.StatusBadRequest, "malformed", "terms of service must be agreed")
		return
	}

	s.mu.Lock()
	s.NewAccountCalls++
	thumb, _ := jwk.Thumbprint(crypto.SHA256)
	acctURL := s.URL + "/acct/" + base64.RawURLEncoding.EncodeToString(thumb)
	s.accounts[acctURL] = &account{url: acctURL, key: jwk}
	s.mu.Unlock()

	w.Header().Set("Location", acctURL)
	s.writeJSON(w, http.StatusCreated, resources.Account{
		Contact: req.Contact,
		Status:  acme.STATUS_VALID,
	})
}

func (s *Server) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	payload, _, _, ok := s.verify(w, r, false)
	if !ok {
		return
	}
	s.mu.Lock()
	s.NewOrderCalls++
	s.mu.Unlock()

	if prob := s.conf.OrderProblem; prob != nil {
		s.mu.Lock()
		w.Header().Set(acme.REPLAY_NONCE_HEADER, s.newNonce())
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(prob)
		return
	}

	var req struct {
		Identifiers []resources.Identifier `json:"identifiers"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || len(req.Identifiers) == 0 {
		s.problem(w, http.StatusBadRequest, "malformed", "no identifiers")
		return
	}

	s.mu.Lock()
	id := s.nextID()
	o := &order{}
	o.ID = s.URL + "/order/" + id
	o.Status = acme.STATUS_PENDING
	o.Identifiers = req.Identifiers
	o.Finalize = s.URL + "/finalize/" + id
	for _, ident := range req.Identifiers {
		aid := s.nextID()
		a := &authz{order: o}
		a.ID = s.URL + "/authz/" + aid
		a.Status = acme.STATUS_PENDING
		a.Identifier = ident
		token := make([]byte, 16)
		_, _ = rand.Read(token)
		a.Challenges = []resources.Challenge{
			{
				Type:   "http-01",
				URL:    s.URL + "/chall/" + aid + "-http",
				Token:  base64.RawURLEncoding.EncodeToString(token),
				Status: acme.STATUS_PENDING,
			},
			{
				Type:   acme.DNS01_CHALLENGE,
				URL:    s.URL + "/chall/" + aid,
				Token:  base64.RawURLEncoding.EncodeToString(token),
				Status: acme.STATUS_PENDING,
			},
		}
		o.authzs = append(o.authzs, a)
		o.Authorizations = append(o.Authorizations, a.ID)
		s.authzs[a.ID] = a
		for _, chall := range a.Challenges {
			s.challenges[chall.URL] = a
		}
	}
	s.orders[o.ID] = o
	resp := o.Order
	s.mu.Unlock()

	w.Header().Set("Location", resp.ID)
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.verify(w, r, false); !ok {
		return
	}
	s.mu.Lock()
	o := s.orders[s.URL+r.URL.Path]
	if o == nil {
		s.mu.Unlock()
		s.problem(w, http.StatusNotFound, "malformed", "no such order")
		return
	}
	if o.finalized && o.Status == acme.STATUS_PROCESSING {
		if o.polls >= s.conf.ProcessingPolls {
			o.Status = acme.STATUS_VALID
			o.Certificate = s.URL + "/cert/" + r.PathValue("id")
		}
		o.polls++
	}
	resp := o.Order
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthz(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.verify(w, r, false); !ok {
		return
	}
	s.mu.Lock()
	a := s.authzs[s.URL+r.URL.Path]
	if a == nil {
		s.mu.Unlock()
		s.problem(w, http.StatusNotFound, "malformed", "no such authorization")
		return
	}
	resp := a.Authorization
	resp.Challenges = append([]resources.Challenge(nil), a.Challenges...)
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	_, acct, _, ok := s.verify(w, r, false)
	if !ok {
		return
	}
	challURL := s.URL + r.URL.Path

	s.mu.Lock()
	a := s.challenges[challURL]
	if a == nil {
		s.mu.Unlock()
		s.problem(w, http.StatusNotFound, "malformed", "no such challenge")
		return
	}
	s.Answered = append(s.Answered, challURL)
	var chall *resources.Challenge
	for i := range a.Challenges {
		if a.Challenges[i].URL == challURL {
			chall = &a.Challenges[i]
		}
	}
	s.mu.Unlock()

	status := acme.STATUS_VALID
	if s.conf.LookupTXT != nil {
		thumb, _ := acct.key.Thumbprint(crypto.SHA256)
		keyAuth := chall.Token + "." + base64.RawURLEncoding.EncodeToString(thumb)
		expected := keys.DNS01Value(keyAuth)
		status = acme.STATUS_INVALID
		for _, v := range s.conf.LookupTXT(acme.DNS01_LABEL + "." + a.Identifier.Value) {
			if v == expected {
				status = acme.STATUS_VALID
			}
		}
	}

	s.mu.Lock()
	chall.Status = status
	a.Status = status
	o := a.order
	answered := true
	for _, other := range o.authzs {
		if other.Status == acme.STATUS_PENDING {
			answered = false
		}
	}
	if answered {
		o.Status = s.conf.StatusAfterAnswer
		for _, other := range o.authzs {
			if other.Status == acme.STATUS_INVALID {
				o.Status = acme.STATUS_INVALID
			}
		}
		if o.Status == acme.STATUS_VALID && o.certPEM == nil {
			if err := s.preissue(o); err != nil {
				s.mu.Unlock()
				s.problem(w, http.StatusInternalServerError, "serverInternal", err.Error())
				return
			}
		}
	}
	resp := *chall
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	payload, _, _, ok := s.verify(w, r, false)
	if !ok {
		return
	}
	orderURL := s.URL + "/order/" + r.PathValue("id")

	s.mu.Lock()
	o := s.orders[orderURL]
	var status string
	if o != nil {
		status = o.Status
	}
	s.mu.Unlock()
	if o == nil {
		s.problem(w, http.StatusNotFound, "malformed", "no such order")
		return
	}
	if status != acme.STATUS_READY {
		s.problem(w, http.StatusForbidden, "orderNotReady", fmt.Sprintf("order is %q", status))
		return
	}

	var req struct {
		CSR string `json:"csr"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.problem(w, http.StatusBadRequest, "malformed", err.Error())
		return
	}
	der, err := base64.RawURLEncoding.DecodeString(req.CSR)
	if err != nil {
		s.problem(w, http.StatusBadRequest, "badCSR", err.Error())
		return
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		s.problem(w, http.StatusBadRequest, "badCSR", err.Error())
		return
	}
	certPEM, err := s.issue(csr)
	if err != nil {
		s.problem(w, http.StatusInternalServerError, "serverInternal", err.Error())
		return
	}

	s.mu.Lock()
	o.finalized = true
	o.certPEM = certPEM
	o.Status = acme.STATUS_PROCESSING
	resp := o.Order
	s.mu.Unlock()

	w.Header().Set("Location", orderURL)
	s.writeJSON(w, http.StatusOK, resp)
}

// preissue gives o a certificate without a finalize request. Must be called
// with mu held.
func (s *Server) preissue(o *order) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	names := o.Names()
	certPEM, err := s.issue(&x509.CertificateRequest{
		Subject:   pkix.Name{CommonName: names[0]},
		DNSNames:  names,
		PublicKey: key.Public(),
	})
	if err != nil {
		return err
	}
	o.finalized = true
	o.certPEM = certPEM
	o.Certificate = s.URL + "/cert/" + strings.TrimPrefix(o.ID, s.URL+"/order/")
	return nil
}

func (s *Server) issue(csr *x509.CertificateRequest) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      csr.Subject,
		DNSNames:     csr.DNSNames,
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, s.caCert, csr.PublicKey, s.caKey)
	if err != nil {
		return nil, err
	}
	chain := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	chain = append(chain, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.caCert.Raw})...)
	return chain, nil
}

func (s *Server) handleCert(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := s.verify(w, r, false); !ok {
		return
	}
	s.mu.Lock()
	o := s.orders[s.URL+"/order/"+r.PathValue("id")]
	w.Header().Set(acme.REPLAY_NONCE_HEADER, s.newNonce())
	s.mu.Unlock()
	if o == nil || o.certPEM == nil {
		s.problem(w, http.StatusNotFound, "malformed", "no certificate")
		return
	}
	w.Header().Set("Content-Type", "application/pem-certificate-chain")
	w.WriteHeader(http.StatusOK)
	if !s.conf.EmptyChain {
		_, _ = w.Write(o.certPEM)
	}
}
