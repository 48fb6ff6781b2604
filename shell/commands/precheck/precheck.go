package precheck

import (
	"errors"

	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/issuer"
	"github.com/cpu/vaultcert/shell/commands"
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "precheck",
			Help:     "Check names have a managed DNS zone",
			LongHelp: `precheck <name> [name...] reports the names no managed zone covers. No order is created.`,
		},
		nil,
		precheckHandler,
		nil)
}

func precheckHandler(c *ishell.Context, names []string) {
	if len(names) == 0 {
		c.Printf("precheck: at least one name is required\n")
		return
	}
	err := commands.GetIssuer(c).Precondition(commands.GetContext(c), names)
	var confErr *issuer.ConfigurationError
	switch {
	case err == nil:
		c.Printf("precheck: every name has a managed zone\n")
	case errors.As(err, &confErr):
		c.Printf("precheck: no managed zone for:\n")
		for _, name := range confErr.Names {
			c.Printf("\t%s\n", name)
		}
	default:
		c.Printf("precheck: %v\n", err)
	}
}
