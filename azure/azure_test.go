package azure

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudConfiguration(t *testing.T) {
	testCases := []struct {
		name     string
		expected cloud.Configuration
	}{
		{name: "", expected: cloud.AzurePublic},
		{name: "AzurePublicCloud", expected: cloud.AzurePublic},
		{name: "azureusgovernmentcloud", expected: cloud.AzureGovernment},
		{name: "AzureChinaCloud", expected: cloud.AzureChina},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := CloudConfiguration(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.expected.ActiveDirectoryAuthorityHost, cfg.ActiveDirectoryAuthorityHost)
		})
	}

	_, err := CloudConfiguration("invalid env")
	assert.Error(t, err)
}

func TestNewCredential(t *testing.T) {
	cred, err := NewCredential(Config{TenantID: "tenid", ClientID: "cid", ClientSecret: "secret"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &azidentity.ClientSecretCredential{}, cred)

	cred, err = NewCredential(Config{TenantID: "tenid", ClientID: "cid"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &azidentity.DeviceCodeCredential{}, cred)

	_, err = NewCredential(Config{ClientSecret: "secret"}, nil)
	assert.Error(t, err)

	_, err = NewCredential(Config{Cloud: "nowhere"}, nil)
	assert.Error(t, err)

	// Tenant IDs are validated by the SDK.
	_, err = NewCredential(Config{TenantID: "invalid env value", ClientID: "cid", ClientSecret: "secret"}, nil)
	assert.Error(t, err)
}

func TestNormalizedError(t *testing.T) {
	assert.NoError(t, StabilizeError(nil))

	req := &http.Request{
		Method: http.MethodPut,
		URL:    &url.URL{Scheme: "https", Host: "management.azure.com", Path: "/zones/example.com/TXT/_acme-challenge"},
	}
	respErr := &azcore.ResponseError{
		ErrorCode:  "PreconditionFailed",
		StatusCode: http.StatusPreconditionFailed,
		RawResponse: &http.Response{
			Status:  "412 Precondition Failed",
			Request: req,
		},
	}
	err := StabilizeError(respErr)
	assert.Equal(t, "request error:\n"+
		"PUT https://management.azure.com/zones/example.com/TXT/_acme-challenge\n"+
		"RESPONSE 412 Precondition Failed\n"+
		"ERROR CODE: PreconditionFailed\n"+
		"see logs for more information", err.Error())

	var target *azcore.ResponseError
	assert.True(t, errors.As(err, &target))
	assert.False(t, IsNotFound(err))

	notFound := &azcore.ResponseError{StatusCode: http.StatusNotFound}
	assert.True(t, IsNotFound(StabilizeError(notFound)))

	plain := errors.New("boom")
	assert.Equal(t, "boom", StabilizeError(plain).Error())
}
