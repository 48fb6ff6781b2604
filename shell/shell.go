// Package shell provides an interactive command shell for driving dns-01
// issuance step by step.
package shell

import (
	"context"
	"errors"

	"github.com/abiosoft/ishell"
	"github.com/abiosoft/readline"
	acmeclient "github.com/cpu/vaultcert/acme/client"
	"github.com/cpu/vaultcert/dns01"
	"github.com/cpu/vaultcert/issuer"
	"github.com/cpu/vaultcert/shell/commands"
	_ "github.com/cpu/vaultcert/shell/commands/account"
	_ "github.com/cpu/vaultcert/shell/commands/getAuthz"
	_ "github.com/cpu/vaultcert/shell/commands/getOrder"
	_ "github.com/cpu/vaultcert/shell/commands/history"
	_ "github.com/cpu/vaultcert/shell/commands/issue"
	_ "github.com/cpu/vaultcert/shell/commands/precheck"
	_ "github.com/cpu/vaultcert/shell/commands/records"
	_ "github.com/cpu/vaultcert/shell/commands/zones"
)

// Options holds the collaborators shell commands use.
type Options struct {
	Client *acmeclient.Client
	Issuer *issuer.Issuer
	Zones  dns01.ZoneManager
}

// Shell is an ishell.Shell instance with an ACME client, an issuer and a
// zone manager stored for access by commands.
type Shell struct {
	*ishell.Shell
}

// New creates a Shell. Commands run under ctx. The shell does not start
// until Run is called.
func New(ctx context.Context, opts Options) (*Shell, error) {
	if opts.Client == nil || opts.Issuer == nil || opts.Zones == nil {
		return nil, errors.New("shell: client, issuer and zones are required")
	}

	// Create an interactive shell
	shell := ishell.NewWithConfig(&readline.Config{
		// The base prompt used for the ishell instance.
		Prompt: commands.BasePrompt,
	})

	shell.Set(commands.ContextKey, ctx)
	shell.Set(commands.ClientKey, opts.Client)
	shell.Set(commands.IssuerKey, opts.Issuer)
	shell.Set(commands.ZonesKey, opts.Zones)
	shell.Set(commands.HistoryKey, &commands.History{})

	commands.AddCommands(shell)

	return &Shell{
		Shell: shell,
	}, nil
}

// Run drops into an interactive session that blocks on user input until it
// is time to exit.
func (shell *Shell) Run() {
	shell.Println("Welcome to vaultcert shell")
	shell.Shell.Run()
	shell.Println("Goodbye!")
}
