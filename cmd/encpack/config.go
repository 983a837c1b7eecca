package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/absfs/encpack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Configuration keys. Each one can be set in the config file, through an
// ENCPACK_ environment variable (dots become underscores) or by a flag.
const (
	keyFormat      = "format"
	keyCipher      = "cipher"
	keyChunkSize   = "chunk_size"
	keyTime        = "kdf.time"
	keyMemory      = "kdf.memory"
	keyParallelism = "kdf.parallelism"
	keyVerbose     = "verbose"
)

// configDir returns the per-user configuration directory
func configDir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to get config directory: %w", err)
		}
	}
	return filepath.Join(dir, "encpack"), nil
}

func setDefaults(v *viper.Viper) {
	kdf := encpack.DefaultKDFParams()
	v.SetDefault(keyFormat, encpack.FormatV2.String())
	v.SetDefault(keyCipher, encpack.CipherAES256GCM.String())
	v.SetDefault(keyChunkSize, encpack.DefaultChunkSize)
	v.SetDefault(keyTime, kdf.TimeCost)
	v.SetDefault(keyMemory, kdf.MemoryCost)
	v.SetDefault(keyParallelism, kdf.Parallelism)
	v.SetDefault(keyVerbose, false)
}

// loadConfig reads defaults, the config file and the environment into v.
// An explicit file must exist; the default locations are optional.
func loadConfig(v *viper.Viper, cfgFile string) error {
	setDefaults(v)

	v.SetEnvPrefix("ENCPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".encpack")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// addPackFlags registers the flags that choose how packages are written
func addPackFlags(cmd *cobra.Command) {
	addFormatFlags(cmd)
	cmd.Flags().Int("chunk-size", 0, "plaintext chunk size in bytes")
	addKDFFlags(cmd)
}

func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "", "package format: v1 or v2")
	cmd.Flags().String("cipher", "", "cipher suite: aes-256-gcm or chacha20-poly1305 (v2 only)")
}

func addKDFFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Uint32("time", 0, "Argon2id time cost (passes)")
	f.Uint32("memory", 0, "Argon2id memory cost in KiB")
	f.Uint8("parallelism", 0, "Argon2id parallelism (1-16)")
}

// bindPackFlags binds the flags of cmd to their configuration keys. It runs
// per command because several commands share the same keys.
func bindPackFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		keyFormat:      "format",
		keyCipher:      "cipher",
		keyChunkSize:   "chunk-size",
		keyTime:        "time",
		keyMemory:      "memory",
		keyParallelism: "parallelism",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// kdfParams returns the configured Argon2id parameters
func kdfParams(v *viper.Viper) (encpack.KDFParams, error) {
	p := v.GetUint32(keyParallelism)
	if p > 255 {
		return encpack.KDFParams{}, encpack.NewValidationError("parallelism", p, "parallelism out of range")
	}
	params := encpack.KDFParams{
		TimeCost:    v.GetUint32(keyTime),
		MemoryCost:  v.GetUint32(keyMemory),
		Parallelism: uint8(p),
	}
	if err := encpack.ValidateKDFParams(params); err != nil {
		return encpack.KDFParams{}, err
	}
	return params, nil
}
