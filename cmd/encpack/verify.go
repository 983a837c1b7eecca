package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify PACKAGE",
		Short: "Check that every chunk of a package decrypts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.packer()
			if err != nil {
				return err
			}
			pw, err := a.password(PasswordEnvVar, "Password: ")
			if err != nil {
				return err
			}
			defer zeroBytes(pw)

			report, err := p.Verify(filepath.ToSlash(args[0]), pw)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d files, %d chunks, %d bytes\n", report.Files, report.Chunks, report.Bytes)
			return nil
		},
	}
}
