package records

import (
	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/dns01"
	"github.com/cpu/vaultcert/shell/commands"
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "records",
			Aliases:  []string{"txt"},
			Help:     "Show the challenge TXT record set for a name",
			LongHelp: `records <name> prints the _acme-challenge TXT record set of name, with the tag of the run that last wrote it.`,
		},
		nil,
		recordsHandler,
		nil)
}

func recordsHandler(c *ishell.Context, args []string) {
	if len(args) != 1 {
		c.Printf("records: exactly one name is required\n")
		return
	}
	ctx := commands.GetContext(c)
	zm := commands.GetZones(c)

	zones, err := zm.ListZones(ctx)
	if err != nil {
		c.Printf("records: error listing zones: %v\n", err)
		return
	}
	name := dns01.RecordName(args[0])
	zone, ok := dns01.FindZone(zones, name)
	if !ok {
		c.Printf("records: no managed zone for %q\n", args[0])
		return
	}
	set, err := zm.GetTXT(ctx, zone, dns01.RelativeLabel(name, zone))
	if err != nil {
		c.Printf("records: error reading %q: %v\n", name, err)
		return
	}
	if set == nil {
		c.Printf("records: no TXT record set at %q\n", name)
		return
	}
	setStr, err := commands.PrintJSON(set)
	if err != nil {
		c.Printf("records: error serializing record set: %v\n", err)
		return
	}
	c.Printf("%s\n", setStr)
}
