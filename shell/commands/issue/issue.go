package issue

import (
	"flag"

	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/issuer"
	"github.com/cpu/vaultcert/shell/commands"
)

type issueOptions struct {
	outDir string
}

var (
	opts issueOptions
)

func init() {
	issueFlags := flag.NewFlagSet("issue", flag.ContinueOnError)
	issueFlags.StringVar(&opts.outDir, "out", "", "directory to write privkey.pem and fullchain.pem to")

	commands.RegisterCommand(
		&ishell.Cmd{
			Name:    "issue",
			Aliases: []string{"newOrder"},
			Help:    "Issue a certificate for names with a local key",
			LongHelp: `issue [-out <dir>] <name> [name...] runs a complete dns-01 issuance with a
freshly generated P-256 key. The outcome is added to the session history
whether or not issuance succeeds.`,
		},
		nil,
		issueHandler,
		issueFlags)
}

func issueHandler(c *ishell.Context, names []string) {
	defer func() {
		opts = issueOptions{}
	}()

	if len(names) == 0 {
		c.Printf("issue: at least one name is required\n")
		return
	}

	csr, err := issuer.NewLocalCSR(names)
	if err != nil {
		c.Printf("issue: error creating CSR: %v\n", err)
		return
	}

	out, err := commands.GetIssuer(c).Issue(commands.GetContext(c), names, csr.DER)
	commands.GetHistory(c).Add(out)
	if err != nil {
		c.Printf("issue: %v\n", err)
		c.Printf("issue: stopped in state %s (readiness %s, retryable %t)\n",
			out.State, out.Readiness, issuer.Retryable(err))
		return
	}

	leaf := out.Bundle.Leaf()
	c.Printf("issue: issued certificate for %v expiring %s\n", leaf.DNSNames, leaf.NotAfter)
	if opts.outDir == "" {
		c.Printf("%s", out.Bundle.PEM)
		return
	}
	if err := csr.WriteFiles(opts.outDir, out.Bundle); err != nil {
		c.Printf("issue: error writing files: %v\n", err)
		return
	}
	c.Printf("issue: wrote %s\n", opts.outDir)
}
