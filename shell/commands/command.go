// Package commands holds types and functions common across all vaultcert
// shell commands.
package commands

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"

	"github.com/abiosoft/ishell"
	acmeclient "github.com/cpu/vaultcert/acme/client"
	"github.com/cpu/vaultcert/dns01"
	"github.com/cpu/vaultcert/issuer"
)

const (
	// The base prompt used for shell commands
	BasePrompt = "[ vaultcert ] > "
	// The ishell context key that we store a client instance under.
	ClientKey = "client"
	// The ishell context key that we store the issuer under.
	IssuerKey = "issuer"
	// The ishell context key that we store the zone manager under.
	ZonesKey = "zones"
	// The ishell context key that we store the session context under.
	ContextKey = "context"
	// The ishell context key that we store the issuance history under.
	HistoryKey = "history"
)

func OkURL(urlStr string) bool {
	result, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if result.Scheme != "http" && result.Scheme != "https" {
		return false
	}
	return true
}

// shellContext is a common interface that can be used to retrieve objects from
// a ishell.Shell or an ishell.Context.
type shellContext interface {
	Get(string) interface{}
}

func mustGet[T any](c shellContext, key string) T {
	raw := c.Get(key)
	if raw == nil {
		panic(fmt.Sprintf("nil %q value in shellContext", key))
	}
	v, ok := raw.(T)
	if !ok {
		panic(fmt.Sprintf("%q value in shellContext was a %T", key, raw))
	}
	return v
}

// GetClient reads a *acmeclient.Client from the shellContext or panics.
func GetClient(c shellContext) *acmeclient.Client {
	return mustGet[*acmeclient.Client](c, ClientKey)
}

// GetIssuer reads a *issuer.Issuer from the shellContext or panics.
func GetIssuer(c shellContext) *issuer.Issuer {
	return mustGet[*issuer.Issuer](c, IssuerKey)
}

// GetZones reads the dns01.ZoneManager from the shellContext or panics.
func GetZones(c shellContext) dns01.ZoneManager {
	return mustGet[dns01.ZoneManager](c, ZonesKey)
}

// GetContext reads the session context.Context from the shellContext or
// panics.
func GetContext(c shellContext) context.Context {
	return mustGet[context.Context](c, ContextKey)
}

// GetHistory reads the *History from the shellContext or panics.
func GetHistory(c shellContext) *History {
	return mustGet[*History](c, HistoryKey)
}

func PrintJSON(ob interface{}) (string, error) {
	bytes, err := json.MarshalIndent(ob, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), err
}

var commands []commandRegistry

type commandRegistry struct {
	Cmd           *ishell.Cmd
	Autocompleter NewCommandAutocompleter
}

type NewCommandAutocompleter func(c shellContext) func(args []string) []string

// AddCommands adds every registered command to the shell. Autocompleters are
// built against the shell so they can read the stored client.
func AddCommands(shell *ishell.Shell) {
	for _, cmdReg := range commands {
		if cmdReg.Autocompleter != nil {
			cmdReg.Cmd.Completer = cmdReg.Autocompleter(shell)
		}
		shell.AddCmd(cmdReg.Cmd)
	}
}

type NewCommandHandler func(c *ishell.Context, leftovers []string)

func RegisterCommand(
	cmd *ishell.Cmd,
	completerFunc NewCommandAutocompleter,
	handler NewCommandHandler,
	flags *flag.FlagSet) {
	if flags == nil {
		flags = flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	}
	// Stomp the cmd's Func with a wrapped version that will call the
	// NewCommandHandler to parse the flags.
	cmd.Func = wrapHandler(cmd.Name, handler, flags)
	commands = append(commands, commandRegistry{
		Cmd:           cmd,
		Autocompleter: completerFunc,
	})
}

func wrapHandler(name string, handler NewCommandHandler, flags *flag.FlagSet) func(*ishell.Context) {
	return func(c *ishell.Context) {
		// Parse the command's flags with the context args.
		err := flags.Parse(c.Args)
		// If it was an error and not the -h error, print a message and return early.
		if err != nil && err != flag.ErrHelp {
			c.Printf("%s: error parsing input flags: %v\n", name, err)
			return
		} else if err == flag.ErrHelp {
			// If it was the -h err, just return early. The help was already printed.
			return
		}

		// Call the wrapped NewCommandHandler with the leftover args from flag
		// parsing.
		handler(c, flags.Args())
	}
}

// DirectoryAutocompleter completes the endpoint names of the directory.
func DirectoryAutocompleter(c shellContext) func(args []string) []string {
	client := GetClient(c)
	return func(args []string) []string {
		dir, err := client.Directory(GetContext(c))
		if err != nil {
			return nil
		}
		var keys []string
		for key := range dir {
			if key == "meta" {
				continue
			}
			keys = append(keys, key)
		}
		return keys
	}
}

// OrderAutocompleter completes the order URLs of the session history.
func OrderAutocompleter(c shellContext) func(args []string) []string {
	history := GetHistory(c)
	return func(args []string) []string {
		return history.OrderURLs()
	}
}
