package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/absfs/absfs"
	"github.com/absfs/encpack"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the state shared by all commands
type app struct {
	v       *viper.Viper
	logger  *log.Logger
	fs      absfs.FileSystem
	cfgFile string
	verbose bool

	// stdin, stderr and getenv are replaced in tests
	stdin  io.Reader
	stderr io.Writer
	getenv func(string) (string, bool)

	lines *bufio.Reader
}

func newApp() *app {
	return &app{
		v: viper.New(),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "encpack",
		}),
		fs:     encpack.NewOSFS(""),
		stdin:  os.Stdin,
		stderr: os.Stderr,
		getenv: os.LookupEnv,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "encpack",
		Short: "Password-protected file packages",
		Long: `encpack packs files and directories into a single encrypted package.

Every file is split into chunks that are encrypted and authenticated on
their own. The list of files, their sizes and the key derivation
parameters are stored in the clear, so a package can be inspected
without the password.

Examples:
  encpack build -o docs.epk ./docs notes.txt
  encpack inspect docs.epk
  encpack extract docs.epk -o ./restore
  encpack verify docs.epk`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/encpack/config.yaml)")

	root.AddCommand(
		newBuildCmd(a),
		newInspectCmd(a),
		newExtractCmd(a),
		newVerifyCmd(a),
		newRekeyCmd(a),
		newVersionCmd(),
	)
	return root
}

// init loads configuration and sets up logging before any command runs
func (a *app) init(cmd *cobra.Command) error {
	if err := loadConfig(a.v, a.cfgFile); err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	if !a.verbose {
		a.verbose = a.v.GetBool(keyVerbose)
	}
	if a.verbose {
		a.logger.SetLevel(log.DebugLevel)
	}
	a.logger.SetOutput(a.stderr)
	return nil
}

// packer creates a packer for the configured format, cipher and chunk size
func (a *app) packer() (*encpack.Packer, error) {
	format, err := encpack.ParseFormatVersion(a.v.GetString(keyFormat))
	if err != nil {
		return nil, err
	}
	suite, err := encpack.ParseCipherSuite(a.v.GetString(keyCipher))
	if err != nil {
		return nil, err
	}
	return encpack.New(a.fs, &encpack.Config{
		Format:    format,
		Cipher:    suite,
		ChunkSize: a.v.GetInt(keyChunkSize),
		Logger:    a.logger,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "encpack %s\n", versionString())
		},
	}
}
