package issuer

import (
	"context"
	"fmt"

	"github.com/cpu/vaultcert/acme/client"
	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
	"github.com/cpu/vaultcert/state"
	acmenet "github.com/cpu/vaultcert/net"
	"go.uber.org/zap"
)

// DefaultKeyType is the algorithm of newly created account keys.
const DefaultKeyType = "ES256"

// AccountConfig describes the ACME account to use.
type AccountConfig struct {
	DirectoryURL string
	// Contact email addresses, without the mailto: prefix.
	Contact []string
	// The algorithm of a new account key, e.g. "ES256" or "RS256".
	KeyType string
}

// Bootstrap returns an ACME client with an active account. The directory,
// account and account key are loaded from store; whatever is missing is
// fetched or created and saved. An account is registered only when no
// account and key were saved before.
func Bootstrap(ctx context.Context, store *state.Store, net *acmenet.ACMENet, conf AccountConfig, log *zap.Logger) (*client.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dir, haveDir, err := state.Load[resources.Directory](store, state.Directory)
	if err != nil {
		return nil, err
	}
	c, err := client.New(client.Config{
		DirectoryURL: conf.DirectoryURL,
		Directory:    dir,
		Net:          net,
		Log:          log,
	})
	if err != nil {
		return nil, err
	}
	if !haveDir {
		if dir, err = c.FetchDirectory(ctx); err != nil {
			return nil, err
		}
		if err := state.Save(store, state.Directory, dir); err != nil {
			return nil, err
		}
		log.Info("saved directory", zap.String("url", conf.DirectoryURL))
	}

	acct, haveAcct, err := state.Load[*resources.Account](store, state.Account)
	if err != nil {
		return nil, err
	}
	acctKey, haveKey, err := state.Load[*keys.AccountKey](store, state.AccountKey)
	if err != nil {
		return nil, err
	}

	if haveAcct && haveKey && acct != nil && acct.ID != "" && acctKey != nil {
		signer, err := acctKey.Signer()
		if err != nil {
			return nil, fmt.Errorf("loading account key: %w", err)
		}
		c.SetAccount(acct, signer)
		log.Debug("using saved account", zap.String("account", acct.ID))
		return c, nil
	}

	keyType := conf.KeyType
	if keyType == "" {
		keyType = DefaultKeyType
	}
	alg, err := keys.ParseAlgorithm(keyType)
	if err != nil {
		return nil, err
	}
	newKey, signer, err := keys.NewAccountKey(alg)
	if err != nil {
		return nil, err
	}
	newAcct := resources.NewAccount(conf.Contact...)
	if err := c.CreateAccount(ctx, newAcct, signer); err != nil {
		return nil, err
	}
	if err := state.Save(store, state.Account, newAcct); err != nil {
		return nil, err
	}
	if err := state.Save(store, state.AccountKey, newKey); err != nil {
		return nil, err
	}
	log.Info("registered account", zap.String("account", newAcct.ID), zap.Stringer("key_type", alg))
	return c, nil
}
