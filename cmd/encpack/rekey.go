package main

import (
	"fmt"
	"path/filepath"

	"github.com/absfs/encpack"
	"github.com/spf13/cobra"
)

func newRekeyCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "rekey PACKAGE",
		Short: "Re-encrypt a package under a new password",
		Long: `Re-encrypt a package under a new password.

The current password is read from $ENCPACK_PASSWORD and the new one from
$ENCPACK_NEW_PASSWORD; either is prompted for when unset. Without -o the
package is replaced once the new one has been written completely.

Format, cipher and KDF flags that are not given keep the values of the
existing package.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := rekeyOptions(cmd)
			if err != nil {
				return err
			}
			if output != "" {
				opts.OutputPath = filepath.ToSlash(output)
			}

			p, err := a.packer()
			if err != nil {
				return err
			}

			oldPw, err := a.password(PasswordEnvVar, "Current password: ")
			if err != nil {
				return err
			}
			defer zeroBytes(oldPw)

			newPw, err := a.passwordWithConfirm(NewPasswordEnvVar, "New password: ", "Confirm new password: ")
			if err != nil {
				return err
			}
			defer zeroBytes(newPw)
			a.warnWeakPassword(newPw)
			opts.NewPassword = newPw

			if err := p.Rekey(filepath.ToSlash(args[0]), oldPw, opts); err != nil {
				return userError(err)
			}
			target := args[0]
			if output != "" {
				target = output
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: rekeyed\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the new package here instead of replacing PACKAGE")
	addFormatFlags(cmd)
	addKDFFlags(cmd)
	return cmd
}

// rekeyOptions reads only the flags given on the command line; the
// configured defaults apply to new packages, not to rekeyed ones.
func rekeyOptions(cmd *cobra.Command) (encpack.RekeyOptions, error) {
	var opts encpack.RekeyOptions
	f := cmd.Flags()

	if f.Changed("format") {
		s, _ := f.GetString("format")
		v, err := encpack.ParseFormatVersion(s)
		if err != nil {
			return opts, err
		}
		opts.Format = v
	}
	if f.Changed("cipher") {
		s, _ := f.GetString("cipher")
		c, err := encpack.ParseCipherSuite(s)
		if err != nil {
			return opts, err
		}
		opts.Cipher = c
	}
	if f.Changed("time") || f.Changed("memory") || f.Changed("parallelism") {
		opts.KDF = encpack.DefaultKDFParams()
		if f.Changed("time") {
			opts.KDF.TimeCost, _ = f.GetUint32("time")
		}
		if f.Changed("memory") {
			opts.KDF.MemoryCost, _ = f.GetUint32("memory")
		}
		if f.Changed("parallelism") {
			opts.KDF.Parallelism, _ = f.GetUint8("parallelism")
		}
		if err := encpack.ValidateKDFParams(opts.KDF); err != nil {
			return opts, err
		}
	}
	return opts, nil
}
