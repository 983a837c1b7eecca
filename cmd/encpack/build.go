package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newBuildCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "build -o PACKAGE PATH...",
		Short: "Pack files and directories into an encrypted package",
		Long: `Pack files and directories into an encrypted package.

A file argument is stored under its base name. A directory argument is
walked recursively and its regular files are stored relative to it.

The password is read from $ENCPACK_PASSWORD when set, otherwise it is
prompted for twice.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindPackFlags(a.v, cmd); err != nil {
				return err
			}
			if output == "" {
				return &exitError{code: exitUsage, err: fmt.Errorf("an output path is required (-o)")}
			}

			p, err := a.packer()
			if err != nil {
				return err
			}
			params, err := kdfParams(a.v)
			if err != nil {
				return err
			}

			roots := make([]string, len(args))
			for i, arg := range args {
				roots[i] = filepath.ToSlash(arg)
			}
			entries, err := p.CollectEntries(roots...)
			if err != nil {
				return err
			}

			pw, err := a.passwordWithConfirm(PasswordEnvVar, "Password: ", "Confirm password: ")
			if err != nil {
				return err
			}
			defer zeroBytes(pw)
			a.warnWeakPassword(pw)

			if err := p.Build(entries, pw, filepath.ToSlash(output), params); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files\n", output, len(entries))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "package file to create")
	addPackFlags(cmd)
	return cmd
}
