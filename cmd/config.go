package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cpu/vaultcert/azure"
	"github.com/cpu/vaultcert/issuer"
	"github.com/cpu/vaultcert/state"
	"github.com/spf13/viper"
)

const (
	DirectoryDefault = "https://acme-staging-v02.api.letsencrypt.org/directory"
	EnvPrefix        = "VAULTCERT"

	BackendAzure        = "azure"
	BackendChallTestSrv = "challtestsrv"
)

type ACMEConfig struct {
	DirectoryURL string   `mapstructure:"directory_url"`
	Contact      []string `mapstructure:"contact"`
	KeyType      string   `mapstructure:"key_type"`
	CABundle     string   `mapstructure:"ca_bundle"`
}

type AzureConfig struct {
	Cloud          string `mapstructure:"cloud"`
	TenantID       string `mapstructure:"tenant_id"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

type VaultConfig struct {
	URL             string            `mapstructure:"url"`
	CertificateName string            `mapstructure:"certificate_name"`
	SelfSignedName  string            `mapstructure:"self_signed_name"`
	Tags            map[string]string `mapstructure:"tags"`
	ValidityMonths  int32             `mapstructure:"validity_months"`
	RenewWithin     time.Duration     `mapstructure:"renew_within"`
}

type CertificateConfig struct {
	Subject string   `mapstructure:"subject"`
	Names   []string `mapstructure:"names"`
	// Where a locally generated key and chain are written when no vault is
	// configured.
	OutputDir string `mapstructure:"output_dir"`
}

type DNSConfig struct {
	Backend             string        `mapstructure:"backend"`
	Nameservers         []string      `mapstructure:"nameservers"`
	Authoritative       bool          `mapstructure:"authoritative"`
	PropagationAttempts int           `mapstructure:"propagation_attempts"`
	PropagationInterval time.Duration `mapstructure:"propagation_interval"`
	// Management API of an external pebble-challtestsrv. When empty an
	// embedded challenge server listens on ChallSrvDNSAddr.
	ChallSrvAddr    string   `mapstructure:"challsrv_addr"`
	ChallSrvDNSAddr string   `mapstructure:"challsrv_dns_addr"`
	ChallSrvZones   []string `mapstructure:"challsrv_zones"`
}

type IssuerConfig struct {
	Parallel         bool          `mapstructure:"parallel"`
	ReadyAttempts    int           `mapstructure:"ready_attempts"`
	ReadyInterval    time.Duration `mapstructure:"ready_interval"`
	FinalizeAttempts int           `mapstructure:"finalize_attempts"`
	FinalizeInterval time.Duration `mapstructure:"finalize_interval"`
}

// Config is the complete vaultcert configuration.
type Config struct {
	ACME        ACMEConfig        `mapstructure:"acme"`
	Azure       AzureConfig       `mapstructure:"azure"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Certificate CertificateConfig `mapstructure:"certificate"`
	DNS         DNSConfig         `mapstructure:"dns"`
	Issuer      IssuerConfig      `mapstructure:"issuer"`
}

// StateStore returns the store for the ACME account state. Its location is
// always state.DefaultDir.
func StateStore() (*state.Store, error) {
	return state.NewStore(state.DefaultDir)
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("acme.directory_url", DirectoryDefault)
	v.SetDefault("acme.contact", []string{})
	v.SetDefault("acme.key_type", issuer.DefaultKeyType)
	v.SetDefault("acme.ca_bundle", "")
	v.SetDefault("azure.cloud", "AzurePublicCloud")
	v.SetDefault("azure.tenant_id", "")
	v.SetDefault("azure.client_id", "")
	v.SetDefault("azure.client_secret", "")
	v.SetDefault("azure.subscription_id", "")
	v.SetDefault("vault.url", "")
	v.SetDefault("vault.certificate_name", "")
	v.SetDefault("vault.self_signed_name", "")
	v.SetDefault("vault.tags", map[string]string{})
	v.SetDefault("vault.validity_months", 3)
	v.SetDefault("vault.renew_within", 30*24*time.Hour)
	v.SetDefault("certificate.subject", "")
	v.SetDefault("certificate.names", []string{})
	v.SetDefault("certificate.output_dir", ".")
	v.SetDefault("dns.backend", BackendAzure)
	v.SetDefault("dns.nameservers", []string{})
	v.SetDefault("dns.authoritative", true)
	v.SetDefault("dns.propagation_attempts", 1)
	v.SetDefault("dns.propagation_interval", 5*time.Second)
	v.SetDefault("dns.challsrv_addr", "")
	v.SetDefault("dns.challsrv_dns_addr", ":8053")
	v.SetDefault("dns.challsrv_zones", []string{})
	v.SetDefault("issuer.parallel", false)
	v.SetDefault("issuer.ready_attempts", 1)
	v.SetDefault("issuer.ready_interval", 5*time.Second)
	v.SetDefault("issuer.finalize_attempts", 10)
	v.SetDefault("issuer.finalize_interval", 2*time.Second)
}

// LoadConfig reads the configuration file, if any, and the VAULTCERT_
// environment into v. An explicit file must exist; the default
// ~/.acme/config.yaml is optional.
func LoadConfig(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		dir, err := StateStore()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir.Dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &conf, conf.Validate()
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ACME.DirectoryURL) == "" {
		return errors.New("acme.directory_url must not be empty")
	}
	switch c.DNS.Backend {
	case BackendAzure:
		if c.Azure.SubscriptionID == "" {
			return errors.New("azure.subscription_id is required for the azure DNS backend")
		}
	case BackendChallTestSrv:
		if len(c.DNS.ChallSrvZones) == 0 {
			return errors.New("dns.challsrv_zones is required for the challtestsrv DNS backend")
		}
	default:
		return fmt.Errorf("unknown dns.backend %q", c.DNS.Backend)
	}
	return nil
}

// AzureCredentials converts the azure section for the azure package.
func (c *Config) AzureCredentials() azure.Config {
	return azure.Config{
		Cloud:          c.Azure.Cloud,
		TenantID:       c.Azure.TenantID,
		ClientID:       c.Azure.ClientID,
		ClientSecret:   c.Azure.ClientSecret,
		SubscriptionID: c.Azure.SubscriptionID,
	}
}

// UsesAzure reports whether any configured component talks to Azure.
func (c *Config) UsesAzure() bool {
	return c.DNS.Backend == BackendAzure || c.Vault.URL != ""
}

// IssuerOptions converts the issuer section.
func (c *Config) IssuerOptions() issuer.Options {
	return issuer.Options{
		Parallel:         c.Issuer.Parallel,
		ReadyAttempts:    c.Issuer.ReadyAttempts,
		ReadyInterval:    c.Issuer.ReadyInterval,
		FinalizeAttempts: c.Issuer.FinalizeAttempts,
		FinalizeInterval: c.Issuer.FinalizeInterval,
	}
}

// AccountConfig converts the acme section.
func (c *Config) AccountConfig() issuer.AccountConfig {
	return issuer.AccountConfig{
		DirectoryURL: c.ACME.DirectoryURL,
		Contact:      c.ACME.Contact,
		KeyType:      c.ACME.KeyType,
	}
}
