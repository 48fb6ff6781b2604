package client

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// PEMCSR is the PEM encoding of an x509 Certificate Signing Request (CSR)
type PEMCSR string

// B64CSR is the Base64URLSafe encoding of an x509 Certificate Signing Request (CSR)
type B64CSR string

// CSR produces a DER CertificateSigningRequest for the provided commonName and
// SAN names, signed by privateKey. If no commonName is provided the first of
// the names is used. The PEM and Base64URL encodings of the CSR are returned
// alongside the DER bytes.
func CSR(commonName string, names []string, privateKey crypto.Signer) ([]byte, B64CSR, PEMCSR, error) {
	if len(names) == 0 {
		return nil, "", "", fmt.Errorf("no names specified")
	}
	if privateKey == nil {
		return nil, "", "", fmt.Errorf("no private key specified")
	}

	if commonName == "" {
		commonName = names[0]
	}

	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName: commonName,
		},
		DNSNames: names,
	}

	csrBytes, err := x509.CreateCertificateRequest(rand.Reader, &template, privateKey)
	if err != nil {
		return nil, "", "", err
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type: "CERTIFICATE REQUEST", Bytes: csrBytes,
	})

	return csrBytes,
		B64CSR(base64.RawURLEncoding.EncodeToString(csrBytes)),
		PEMCSR(pemBytes),
		nil
}
