// vaultcert obtains certificates from an ACME CA by answering dns-01
// challenges in Azure DNS and hands them to Azure Key Vault.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cpu/vaultcert/acme/client"
	acmecmd "github.com/cpu/vaultcert/cmd"
	"github.com/cpu/vaultcert/issuer"
	acmenet "github.com/cpu/vaultcert/net"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool

	conf *acmecmd.Config
	log  *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vaultcert",
	Short: "Issue ACME certificates with Azure DNS and Key Vault",
	Long: `vaultcert requests certificates from an ACME CA. It answers dns-01
challenges by writing TXT records into Azure DNS zones, checks they are
visible, and merges the issued chain into a pending Azure Key Vault
certificate.

Settings are read from ~/.acme/config.yaml (or --config) and VAULTCERT_
environment variables, e.g. VAULTCERT_AZURE_SUBSCRIPTION_ID.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if log, err = acmecmd.NewLogger(debug); err != nil {
			return err
		}
		conf, err = acmecmd.LoadConfig(viper.GetViper(), cfgFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.acme/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "development logging at debug level, with ACME request dumps")
	rootCmd.PersistentFlags().String("directory", "", "ACME directory URL")
	rootCmd.PersistentFlags().String("dns-backend", "", "DNS backend: azure or challtestsrv")
	_ = viper.BindPFlag("acme.directory_url", rootCmd.PersistentFlags().Lookup("directory"))
	_ = viper.BindPFlag("dns.backend", rootCmd.PersistentFlags().Lookup("dns-backend"))

	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(precheckCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(expiringCmd)
	rootCmd.AddCommand(shellCmd)
}

// session is the state shared by commands that talk to the CA.
type session struct {
	ctx     context.Context
	stop    func()
	backend *acmecmd.Backend
	client  *client.Client
	issuer  *issuer.Issuer
}

func (s *session) Close() {
	if s.backend != nil {
		s.backend.Close()
	}
	s.stop()
}

// newSession bootstraps the ACME account and builds the configured backend.
func newSession(cmd *cobra.Command) (*session, error) {
	ctx, stop := acmecmd.CatchSignals(cmd.Context(), log, nil)
	s := &session{ctx: ctx, stop: stop}

	net, err := acmenet.New(acmenet.Config{CABundle: conf.ACME.CABundle, Dump: debug}, log.Named("net"))
	if err != nil {
		s.Close()
		return nil, err
	}
	store, err := acmecmd.StateStore()
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.client, err = issuer.Bootstrap(ctx, store, net, conf.AccountConfig(), log.Named("acme")); err != nil {
		s.Close()
		return nil, fmt.Errorf("bootstrapping ACME account: %w", err)
	}
	if s.backend, err = acmecmd.NewBackend(ctx, conf, net, log); err != nil {
		s.Close()
		return nil, err
	}
	s.issuer, err = issuer.New(s.client, s.backend.Zones, s.backend.NewChecker(conf, log.Named("checker")),
		conf.IssuerOptions(), log.Named("issuer"))
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// requestedNames returns the names from args, or the configured names.
func requestedNames(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(conf.Certificate.Names) > 0 {
		return conf.Certificate.Names, nil
	}
	return nil, fmt.Errorf("no names given and certificate.names is empty")
}
