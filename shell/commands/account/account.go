package account

import (
	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/shell/commands"
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "account",
			Aliases:  []string{"getAcct"},
			Help:     "Print the active ACME account",
			LongHelp: `account prints the active ACME account object as it was last returned by the server.`,
		},
		nil,
		accountHandler,
		nil)
}

func accountHandler(c *ishell.Context, _ []string) {
	client := commands.GetClient(c)
	acct := client.Account()
	if acct == nil {
		c.Printf("account: no active account\n")
		return
	}
	acctStr, err := commands.PrintJSON(acct)
	if err != nil {
		c.Printf("account: error serializing account: %v\n", err)
		return
	}
	c.Printf("%s\n", acctStr)
}
