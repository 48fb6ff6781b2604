package commands

import (
	"context"
	"flag"
	"testing"

	"github.com/abiosoft/ishell"
	"github.com/cpu/vaultcert/issuer"
	"github.com/cpu/vaultcert/internal/dnstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapContext map[string]interface{}

func (m mapContext) Get(key string) interface{} {
	return m[key]
}

func TestOkURL(t *testing.T) {
	assert.True(t, OkURL("https://ca.example.com/order/1"))
	assert.True(t, OkURL("http://localhost:14000/dir"))
	assert.False(t, OkURL("ftp://example.com"))
	assert.False(t, OkURL("example.com"))
	assert.False(t, OkURL("%zz"))
}

func TestShellContextGetters(t *testing.T) {
	zones := dnstest.New("example.com")
	history := &History{}
	ctx := context.Background()
	c := mapContext{
		ZonesKey:   zones,
		HistoryKey: history,
		ContextKey: ctx,
	}

	assert.Same(t, history, GetHistory(c))
	assert.Equal(t, ctx, GetContext(c))
	assert.Equal(t, zones, GetZones(c))

	assert.PanicsWithValue(t, `nil "client" value in shellContext`, func() { GetClient(c) })
	c[IssuerKey] = "not an issuer"
	assert.PanicsWithValue(t, `"issuer" value in shellContext was a string`, func() { GetIssuer(c) })
}

func TestHistory(t *testing.T) {
	h := &History{}
	_, err := h.Outcome(0)
	assert.Error(t, err)

	h.Add(nil)
	h.Add(&issuer.Outcome{State: issuer.PreconditionChecked})
	assert.Equal(t, 0, h.Len())

	h.Add(&issuer.Outcome{State: issuer.Finalized, OrderURL: "https://ca/order/1"})
	h.Add(&issuer.Outcome{State: issuer.ChallengesAnswered, Readiness: issuer.Pending, OrderURL: "https://ca/order/2"})
	require.Equal(t, 2, h.Len())
	assert.Equal(t, []string{"https://ca/order/1", "https://ca/order/2"}, h.OrderURLs())
	assert.Equal(t, []string{
		"  0)\tfinalized\tready\thttps://ca/order/1",
		"  1)\tchallenges-answered\tpending\thttps://ca/order/2",
	}, h.Lines())

	out, err := h.Outcome(1)
	require.NoError(t, err)
	assert.Equal(t, "https://ca/order/2", out.OrderURL)
	_, err = h.Outcome(2)
	assert.EqualError(t, err, "index out of bounds. must be >= 0 and < 2")

	complete := OrderAutocompleter(mapContext{HistoryKey: h})
	assert.Equal(t, h.OrderURLs(), complete(nil))
}

func TestRegisterCommandParsesFlags(t *testing.T) {
	saved := commands
	defer func() { commands = saved }()
	commands = nil

	var got []string
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	verbose := flags.Bool("v", false, "")
	cmd := &ishell.Cmd{Name: "test"}
	RegisterCommand(cmd, OrderAutocompleter, func(_ *ishell.Context, leftovers []string) {
		got = leftovers
	}, flags)

	require.Len(t, commands, 1)
	require.NotNil(t, cmd.Func)
	cmd.Func(&ishell.Context{Args: []string{"-v", "a.example.com", "b.example.com"}})
	assert.True(t, *verbose)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, got)
}
