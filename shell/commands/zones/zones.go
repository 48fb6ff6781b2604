package zones

import (
	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/shell/commands"
)

func init() {
	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "zones",
			Help:     "List the managed DNS zones",
			LongHelp: `zones lists every zone the DNS backend manages with its backend ID.`,
		},
		nil,
		zonesHandler,
		nil)
}

func zonesHandler(c *ishell.Context, _ []string) {
	zones, err := commands.GetZones(c).ListZones(commands.GetContext(c))
	if err != nil {
		c.Printf("zones: error listing zones: %v\n", err)
		return
	}
	if len(zones) == 0 {
		c.Printf("zones: the backend manages no zones\n")
		return
	}
	for i, z := range zones {
		c.Printf("%3d)\t%s\t%s\n", i, z.Name, z.ID)
	}
}
