package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newExtractCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract PACKAGE",
		Short: "Decrypt a package into a new directory",
		Long: `Decrypt a package into a new directory.

The files are written to a fresh encpack_<timestamp>_<id> directory
created under the output directory, so existing files are never
overwritten. The created directory is printed on success.`,
		Args: cobra.ExactArgs(1),
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

			dir, err := p.Extract(filepath.ToSlash(args[0]), pw, filepath.ToSlash(output))
			if err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.FromSlash(dir))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory to extract into")
	return cmd
}
