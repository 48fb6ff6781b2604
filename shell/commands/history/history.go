package history

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/shell/commands"
)

type historyOptions struct {
	showChallenges bool
}

var (
	opts historyOptions
)

const (
	longHelp = `
	history:
		List the orders issued during the shell session with their state,
		readiness and URL.

	history -challenges:
		Also list the challenge record of each authorization.`
)

func init() {
	historyFlags := flag.NewFlagSet("history", flag.ContinueOnError)
	historyFlags.BoolVar(&opts.showChallenges, "challenges", false, "Print the challenge records of each order")

	commands.RegisterCommand(
		&ishell.Cmd{
			Name:     "history",
			Aliases:  []string{"orders"},
			Help:     "Show the orders of this session",
			LongHelp: longHelp,
		},
		nil,
		historyHandler,
		historyFlags)
}

func historyHandler(c *ishell.Context, _ []string) {
	defer func() {
		opts = historyOptions{}
	}()

	history := commands.GetHistory(c)
	if history.Len() == 0 {
		c.Printf("history: no orders have been created in this session\n")
		return
	}
	for i, line := range history.Lines() {
		c.Printf("%s\n", line)
		if !opts.showChallenges {
			continue
		}
		out, err := history.Outcome(i)
		if err != nil {
			c.Printf("history: %v\n", err)
			return
		}
		for _, chall := range out.Challenges {
			if chall.AlreadyValid {
				c.Printf("\t\t%s (already valid)\n", chall.Authorization)
				continue
			}
			c.Printf("\t\t%s\t%q\n", chall.Record.Name, chall.Record.Value)
		}
	}
}
