package main

import (
	"encoding/json"
	"time"

	acmecmd "github.com/cpu/vaultcert/cmd"
	"github.com/cpu/vaultcert/issuer"
	acmenet "github.com/cpu/vaultcert/net"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Register or load the ACME account and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		net, err := acmenet.New(acmenet.Config{CABundle: conf.ACME.CABundle, Dump: debug}, log.Named("net"))
		if err != nil {
			return err
		}
		store, err := acmecmd.StateStore()
		if err != nil {
			return err
		}
		client, err := issuer.Bootstrap(cmd.Context(), store, net, conf.AccountConfig(), log.Named("acme"))
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(client.Account(), "", "  ")
		if err != nil {
			return err
		}
		cmd.Printf("%s\n", out)
		return nil
	},
}

var expiringCmd = &cobra.Command{
	Use:   "expiring",
	Short: "List vault certificates expiring within vault.renew_within",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		if s.backend.Vault == nil {
			return errNoVault
		}
		expiring, err := s.backend.Vault.ListExpiring(s.ctx, time.Now(), conf.Vault.RenewWithin)
		if err != nil {
			return err
		}
		for _, e := range expiring {
			cmd.Printf("%s\t%s\n", e.Name, e.Expires.Format(time.RFC3339))
		}
		return nil
	},
}
