package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azcertificates"
	"github.com/cpu/vaultcert/azure"
	"github.com/cpu/vaultcert/azuredns"
	"github.com/cpu/vaultcert/dns01"
	"github.com/cpu/vaultcert/dns01/challsrv"
	acmenet "github.com/cpu/vaultcert/net"
	"github.com/cpu/vaultcert/vault"
	"github.com/letsencrypt/challtestsrv"
	"go.uber.org/zap"
)

// Backend holds the DNS and vault collaborators selected by a Config.
type Backend struct {
	Zones    dns01.ZoneManager
	Resolver dns01.Resolver
	// Nil when no vault is configured.
	Vault *vault.Vault

	shutdown []func()
}

// Close stops any embedded servers.
func (b *Backend) Close() {
	for _, fn := range b.shutdown {
		fn()
	}
	b.shutdown = nil
}

// NewChecker returns a propagation checker using the backend resolver and
// the dns section of conf.
func (b *Backend) NewChecker(conf *Config, log *zap.Logger) *dns01.Checker {
	checker := dns01.NewChecker(b.Resolver, log)
	checker.Attempts = conf.DNS.PropagationAttempts
	if conf.DNS.PropagationInterval > 0 {
		checker.Interval = conf.DNS.PropagationInterval
	}
	return checker
}

// NewBackend builds the collaborators for conf. Azure credentials are only
// created when a component needs them.
func NewBackend(ctx context.Context, conf *Config, net *acmenet.ACMENet, log *zap.Logger) (*Backend, error) {
	b := &Backend{}

	var cred azcore.TokenCredential
	if conf.UsesAzure() {
		var err error
		if cred, err = azure.NewCredential(conf.AzureCredentials(), log); err != nil {
			return nil, fmt.Errorf("creating azure credential: %w", err)
		}
	}

	switch conf.DNS.Backend {
	case BackendAzure:
		clientOpts, err := conf.AzureCredentials().ClientOptions()
		if err != nil {
			return nil, err
		}
		zones, err := azuredns.NewManager(conf.Azure.SubscriptionID, cred,
			&arm.ClientOptions{ClientOptions: clientOpts}, log.Named("azuredns"))
		if err != nil {
			return nil, err
		}
		b.Zones = zones
		if conf.DNS.Authoritative {
			b.Resolver = dns01.NewAuthoritativeResolver(conf.DNS.Nameservers, log.Named("resolver"))
		} else {
			if len(conf.DNS.Nameservers) == 0 {
				return nil, errors.New("dns.nameservers is required when dns.authoritative is false")
			}
			b.Resolver = dns01.NewStaticResolver(conf.DNS.Nameservers, log.Named("resolver"))
		}

	case BackendChallTestSrv:
		var srv challsrv.TXTServer
		if conf.DNS.ChallSrvAddr != "" {
			srv = challsrv.NewRemoteServer(ctx, conf.DNS.ChallSrvAddr, net, log.Named("challsrv"))
		} else {
			embedded, err := challtestsrv.New(challtestsrv.Config{
				DNSOneAddrs: []string{conf.DNS.ChallSrvDNSAddr},
				Log:         zap.NewStdLog(log.Named("challtestsrv")),
			})
			if err != nil {
				return nil, fmt.Errorf("creating challenge test server: %w", err)
			}
			embedded.Run()
			b.shutdown = append(b.shutdown, embedded.Shutdown)
			srv = embedded
		}
		b.Zones = challsrv.New(srv, conf.DNS.ChallSrvZones, log.Named("challsrv"))
		nameservers := conf.DNS.Nameservers
		if len(nameservers) == 0 {
			nameservers = []string{conf.DNS.ChallSrvDNSAddr}
		}
		b.Resolver = dns01.NewStaticResolver(nameservers, log.Named("resolver"))

	default:
		return nil, fmt.Errorf("unknown dns.backend %q", conf.DNS.Backend)
	}

	if conf.Vault.URL != "" {
		clientOpts, err := conf.AzureCredentials().ClientOptions()
		if err != nil {
			b.Close()
			return nil, err
		}
		v, err := vault.New(conf.Vault.URL, cred,
			&azcertificates.ClientOptions{ClientOptions: clientOpts}, log.Named("vault"))
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Vault = v
	}
	return b, nil
}
