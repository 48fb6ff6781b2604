package getOrder

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/shell/commands"
)

type getOrderOptions struct {
	orderIndex int
}

var (
	opts = getOrderOptions{orderIndex: -1}
)

func init() {
	getOrderFlags := flag.NewFlagSet("getOrder", flag.ContinueOnError)
	getOrderFlags.IntVar(&opts.orderIndex, "order", -1, "index of existing order")

	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "getOrder",
			Aliases:  []string{"order"},
			Help:     "Get an ACME order",
			LongHelp: `getOrder [-order <index>] [order URL] fetches an order from the server and prints it. Without a URL the order is picked from the session history.`,
		},
		commands.OrderAutocompleter,
		getOrderHandler,
		getOrderFlags)
}

func getOrderHandler(c *ishell.Context, leftovers []string) {
	defer func() {
		opts = getOrderOptions{orderIndex: -1}
	}()

	var targetURL string
	var err error
	if len(leftovers) > 0 {
		targetURL = leftovers[0]
		if !commands.OkURL(targetURL) {
			c.Printf("getOrder: %q is not an http or https URL\n", targetURL)
			return
		}
	} else {
		targetURL, err = commands.FindOrderURL(c, opts.orderIndex)
	}
	if err != nil {
		c.Printf("getOrder: error getting order URL: %v\n", err)
		return
	}

	client := commands.GetClient(c)
	order, err := client.GetOrder(commands.GetContext(c), targetURL)
	if err != nil {
		c.Printf("getOrder: error getting order: %v\n", err)
		return
	}

	orderStr, err := commands.PrintJSON(order)
	if err != nil {
		c.Printf("getOrder: error serializing order: %v\n", err)
		return
	}
	c.Printf("%s\n", orderStr)
}
