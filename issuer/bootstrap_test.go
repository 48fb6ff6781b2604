package issuer

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
	"github.com/cpu/vaultcert/internal/acmetest"
	acmenet "github.com/cpu/vaultcert/net"
	"github.com/cpu/vaultcert/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAtMostOnce(t *testing.T) {
	srv := acmetest.New(acmetest.Config{})
	defer srv.Close()
	store, err := state.NewStore(t.TempDir())
	require.NoError(t, err)
	net := acmenet.NewWithClient(srv.Client(), nil)
	conf := AccountConfig{
		DirectoryURL: srv.DirectoryURL(),
		Contact:      []string{"admin@example.com"},
	}

	first, err := Bootstrap(context.Background(), store, net, conf, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.ActiveAccountID())
	assert.Equal(t, []string{"mailto:admin@example.com"}, first.Account().Contact)

	for _, key := range []state.Key{state.Directory, state.Account, state.AccountKey} {
		path, err := store.Path(key)
		require.NoError(t, err)
		_, err = os.Stat(path)
		assert.NoError(t, err, "state %q not saved", key)
	}

	second, err := Bootstrap(context.Background(), store, net, conf, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ActiveAccountID(), second.ActiveAccountID())
	assert.Equal(t, first.Signer().Thumbprint(), second.Signer().Thumbprint())

	newAccounts, _ := srv.Counts()
	assert.Equal(t, 1, newAccounts)
}

func TestBootstrapKeyTypes(t *testing.T) {
	testCases := []struct {
		keyType string
		wantErr bool
	}{
		{keyType: "ES256"},
		{keyType: "ES384"},
		{keyType: "RS256"},
		{keyType: "XX128", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.keyType, func(t *testing.T) {
			srv := acmetest.New(acmetest.Config{})
			defer srv.Close()
			store, err := state.NewStore(t.TempDir())
			require.NoError(t, err)

			c, err := Bootstrap(context.Background(), store, acmenet.NewWithClient(srv.Client(), nil), AccountConfig{
				DirectoryURL: srv.DirectoryURL(),
				KeyType:      tc.keyType,
			}, nil)
			newAccounts, _ := srv.Counts()
			if tc.wantErr {
				var keyErr *keys.UnsupportedKeyTypeError
				assert.True(t, errors.As(err, &keyErr))
				assert.Equal(t, 0, newAccounts)
				_, saved, loadErr := state.Load[*resources.Account](store, state.Account)
				require.NoError(t, loadErr)
				assert.False(t, saved)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.ActiveAccountID())
			assert.Equal(t, 1, newAccounts)
		})
	}
}

func TestBootstrapUsesSavedDirectory(t *testing.T) {
	srv := acmetest.New(acmetest.Config{})
	defer srv.Close()
	store, err := state.NewStore(t.TempDir())
	require.NoError(t, err)
	net := acmenet.NewWithClient(srv.Client(), nil)
	conf := AccountConfig{DirectoryURL: srv.DirectoryURL()}

	_, err = Bootstrap(context.Background(), store, net, conf, nil)
	require.NoError(t, err)

	dir, ok, err := state.Load[resources.Directory](store, state.Directory)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, dir)

	// A saved directory and account are enough to sign requests.
	c, err := Bootstrap(context.Background(), store, net, conf, nil)
	require.NoError(t, err)
	order, err := c.CreateOrder(context.Background(), []string{"a.example.com"})
	require.NoError(t, err)
	assert.Len(t, order.Authorizations, 1)
}
