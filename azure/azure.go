// Package azure builds the credentials and client options shared by the Azure
// DNS and Key Vault adapters.
package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"
)

// Config identifies the Azure cloud, tenant and application to authenticate
// as.
type Config struct {
	// AzurePublicCloud (default), AzureUSGovernmentCloud or AzureChinaCloud.
	Cloud    string
	TenantID string
	ClientID string
	// When set a client secret credential is used. Otherwise the user signs
	// in interactively with a device code.
	ClientSecret   string
	SubscriptionID string
}

// CloudConfiguration maps a cloud name to its endpoints.
func CloudConfiguration(name string) (cloud.Configuration, error) {
	switch strings.ToUpper(name) {
	case "AZURECLOUD", "AZUREPUBLICCLOUD", "":
		return cloud.AzurePublic, nil
	case "AZUREUSGOVERNMENT", "AZUREUSGOVERNMENTCLOUD":
		return cloud.AzureGovernment, nil
	case "AZURECHINACLOUD":
		return cloud.AzureChina, nil
	}
	return cloud.Configuration{}, fmt.Errorf("unknown cloud configuration name: %s", name)
}

// ClientOptions returns SDK client options for the configured cloud.
func (c Config) ClientOptions() (policy.ClientOptions, error) {
	cloudCfg, err := CloudConfiguration(c.Cloud)
	if err != nil {
		return policy.ClientOptions{}, err
	}
	return policy.ClientOptions{Cloud: cloudCfg}, nil
}

// NewCredential returns the token credential described by conf. Device code
// prompts are written to the log at warn level so they reach the operator
// even without --debug.
func NewCredential(conf Config, log *zap.Logger) (azcore.TokenCredential, error) {
	if log == nil {
		log = zap.NewNop()
	}
	clientOpt, err := conf.ClientOptions()
	if err != nil {
		return nil, err
	}

	if conf.ClientSecret != "" {
		if conf.ClientID == "" {
			return nil, errors.New("azure: a client secret requires a client ID")
		}
		log.Info("authenticating with client ID and secret", zap.String("client_id", conf.ClientID))
		return azidentity.NewClientSecretCredential(conf.TenantID, conf.ClientID, conf.ClientSecret,
			&azidentity.ClientSecretCredentialOptions{ClientOptions: clientOpt})
	}

	log.Info("authenticating with a device code", zap.String("tenant_id", conf.TenantID))
	return azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
		ClientOptions: clientOpt,
		TenantID:      conf.TenantID,
		ClientID:      conf.ClientID,
		UserPrompt: func(ctx context.Context, msg azidentity.DeviceCodeMessage) error {
			log.Warn(msg.Message,
				zap.String("verification_url", msg.VerificationURL),
				zap.String("user_code", msg.UserCode))
			return nil
		},
	})
}
