package main

import (
	"fmt"
	"os"

	"github.com/cpu/vaultcert/shell"
	"github.com/spf13/cobra"
)

var scriptFile string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive issuance shell",
	Long: `shell bootstraps the ACME account and DNS backend, then reads commands
interactively. With --script the commands are read from a file instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scriptFile != "" {
			f, err := os.Open(scriptFile)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := redirectStdin(int(f.Fd())); err != nil {
				return fmt.Errorf("reading commands from %q: %w", scriptFile, err)
			}
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		sh, err := shell.New(s.ctx, shell.Options{
			Client: s.client,
			Issuer: s.issuer,
			Zones:  s.backend.Zones,
		})
		if err != nil {
			return err
		}
		sh.Run()
		return nil
	},
}

func init() {
	shellCmd.Flags().StringVar(&scriptFile, "script", "", "file of shell commands to run instead of reading the terminal")
}
