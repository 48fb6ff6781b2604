package main

import (
	"errors"
	"fmt"

	"github.com/cpu/vaultcert/issuer"
	"github.com/cpu/vaultcert/vault"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	csrSourceVault = "vault"
	csrSourceLocal = "local"
)

var errNoVault = errors.New("no vault configured, set vault.url")

var (
	csrSource  string
	selfSigned bool
)

var issueCmd = &cobra.Command{
	Use:   "issue [name...]",
	Short: "Issue a certificate for the given names",
	Long: `Issue checks every name has a managed DNS zone, creates an ACME order,
provisions and verifies the dns-01 TXT records, answers the challenges and
finalizes the order.

With --csr-source vault (the default when vault.url is set) the CSR comes
from a pending Key Vault certificate named vault.certificate_name and the
issued chain is merged back into it. With --csr-source local a key and CSR
are generated here and written to certificate.output_dir.`,
	RunE: runIssue,
}

var precheckCmd = &cobra.Command{
	Use:   "precheck [name...]",
	Short: "Check every name has a managed DNS zone without creating an order",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := requestedNames(args)
		if err != nil {
			return err
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.issuer.Precondition(s.ctx, names); err != nil {
			return err
		}
		cmd.Printf("all names have a managed zone: %v\n", names)
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&csrSource, "csr-source", "", "where the CSR comes from: vault or local (default vault when vault.url is set)")
	issueCmd.Flags().BoolVar(&selfSigned, "self-signed", false, "create a self-signed certificate named vault.self_signed_name in the vault instead of using ACME")
}

func vaultRequest(names []string) vault.Request {
	subject := conf.Certificate.Subject
	if subject == "" {
		subject = "CN=" + names[0]
	}
	return vault.Request{
		Subject:          subject,
		Names:            names,
		Tags:             conf.Vault.Tags,
		ValidityInMonths: conf.Vault.ValidityMonths,
	}
}

func runIssue(cmd *cobra.Command, args []string) error {
	names, err := requestedNames(args)
	if err != nil {
		return err
	}
	source := csrSource
	if source == "" {
		source = csrSourceLocal
		if conf.Vault.URL != "" {
			source = csrSourceVault
		}
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if selfSigned {
		if s.backend.Vault == nil {
			return errNoVault
		}
		return s.backend.Vault.CreateSelfSigned(s.ctx, conf.Vault.SelfSignedName, vaultRequest(names))
	}

	// A pending vault certificate is only worth creating for names the
	// backend can answer for.
	if err := s.issuer.Precondition(s.ctx, names); err != nil {
		return err
	}

	var (
		csrDER []byte
		local  *issuer.LocalCSR
	)
	switch source {
	case csrSourceVault:
		if s.backend.Vault == nil {
			return errNoVault
		}
		if csrDER, err = s.backend.Vault.CreatePending(s.ctx, conf.Vault.CertificateName, vaultRequest(names)); err != nil {
			return err
		}
	case csrSourceLocal:
		if local, err = issuer.NewLocalCSR(names); err != nil {
			return err
		}
		csrDER = local.DER
	default:
		return fmt.Errorf("unknown --csr-source %q", source)
	}

	out, err := s.issuer.Issue(s.ctx, names, csrDER)
	if err != nil {
		log.Error("issuance did not complete",
			zap.Stringer("state", out.State),
			zap.Stringer("readiness", out.Readiness),
			zap.String("order", out.OrderURL),
			zap.Bool("retryable", issuer.Retryable(err)))
		return err
	}

	if local != nil {
		if err := local.WriteFiles(conf.Certificate.OutputDir, out.Bundle); err != nil {
			return err
		}
		log.Info("wrote certificate", zap.String("dir", conf.Certificate.OutputDir))
		return nil
	}
	if err := s.backend.Vault.Merge(s.ctx, conf.Vault.CertificateName, out.Bundle.Certificates); err != nil {
		return err
	}
	log.Info("merged certificate into vault",
		zap.String("certificate", conf.Vault.CertificateName),
		zap.Time("not_after", out.Bundle.Leaf().NotAfter))
	return nil
}
