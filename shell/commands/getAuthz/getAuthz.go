package getauthz

import (
	"flag"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/acme/resources"
	"github.com/cpu/vaultcert/shell/commands"
)

type getAuthzOptions struct {
	orderIndex int
	identifier string
}

var (
	opts = getAuthzOptions{orderIndex: -1}
)

func init() {
	registerGetAuthzCmd()
}

func registerGetAuthzCmd() {
	getAuthzFlags := flag.NewFlagSet("getAuthz", flag.ContinueOnError)
	getAuthzFlags.IntVar(&opts.orderIndex, "order", -1, "index of existing order")
	getAuthzFlags.StringVar(&opts.identifier, "identifier", "", "identifier of authorization")

	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "getAuthz",
			Aliases:  []string{"authz", "authorization"},
			Help:     "Get an ACME authorization",
			LongHelp: `getAuthz [-order <index>] [-identifier <name>] [authz URL] fetches an authorization and prints it. Without a URL the order is picked from the session history and the authorization by identifier.`,
		},
		nil,
		getAuthzHandler,
		getAuthzFlags)
}

func getAuthzHandler(c *ishell.Context, leftovers []string) {
	defer func() {
		opts = getAuthzOptions{
			orderIndex: -1,
		}
	}()

	if opts.orderIndex != -1 && len(leftovers) > 0 {
		c.Printf("-order can not be used with an authz URL\n")
		return
	}

	if opts.identifier != "" && len(leftovers) > 0 {
		c.Printf("-identifier can not be used with an authz URL\n")
		return
	}

	client := commands.GetClient(c)
	ctx := commands.GetContext(c)

	var authz *resources.Authorization
	if len(leftovers) > 0 {
		var err error
		if authz, err = client.GetAuthorization(ctx, leftovers[0]); err != nil {
			c.Printf("getAuthz: error getting authz: %v\n", err)
			return
		}
	} else {
		orderURL, err := commands.FindOrderURL(c, opts.orderIndex)
		if err != nil {
			c.Printf("getAuthz: error getting order URL: %v\n", err)
			return
		}
		order, err := client.GetOrder(ctx, orderURL)
		if err != nil {
			c.Printf("getAuthz: error getting order: %v\n", err)
			return
		}
		if authz, err = findAuthz(c, order); err != nil {
			c.Printf("getAuthz: error getting authz: %v\n", err)
			return
		}
	}

	authzStr, err := commands.PrintJSON(authz)
	if err != nil {
		c.Printf("getAuthz: error serializing authz: %v\n", err)
		return
	}
	c.Printf("%s\n", authzStr)
}

func findAuthz(c *ishell.Context, order *resources.Order) (*resources.Authorization, error) {
	if opts.identifier == "" {
		return commands.PickAuthz(c, order)
	}
	client := commands.GetClient(c)
	for _, authzURL := range order.Authorizations {
		authz, err := client.GetAuthorization(commands.GetContext(c), authzURL)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(authz.Identifier.Value, strings.TrimPrefix(opts.identifier, "*.")) {
			return authz, nil
		}
	}
	return nil, fmt.Errorf("order has no authz for identifier %q", opts.identifier)
}
