package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/flow"
	ophttp "github.com/ilpay/openpayments-go/http"
	"github.com/ilpay/openpayments-go/httpsig"
	"github.com/ilpay/openpayments-go/logging"
	"github.com/ilpay/openpayments-go/retry"
	"github.com/ilpay/openpayments-go/validation"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix prefixes every environment variable, e.g. ILPAY_CLIENT_WALLET.
const envPrefix = "ILPAY"

// Config is everything the CLI reads from flags, environment and the config file.
type Config struct {
	ClientWallet string `mapstructure:"client_wallet"`
	KeyID        string `mapstructure:"key_id"`

	// Exactly one key source must be set.
	PrivateKeyPEM  string `mapstructure:"private_key_pem"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	Mnemonic       string `mapstructure:"mnemonic"`
	// MnemonicPassphrase and AccountIndex only apply to Mnemonic.
	MnemonicPassphrase string `mapstructure:"mnemonic_passphrase"`
	AccountIndex       uint32 `mapstructure:"account_index"`

	openpayments.Options `mapstructure:",squash"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ListenAddr string `mapstructure:"listen_addr"`
	ReturnURL  string `mapstructure:"return_url"`

	Poll retry.Config `mapstructure:"poll"`
}

// setDefaults registers every key, so AutomaticEnv can resolve all of them.
func setDefaults(v *viper.Viper) {
	opts := openpayments.DefaultOptions()
	for key, value := range map[string]any{
		"client_wallet":           "",
		"key_id":                  "",
		"private_key_pem":         "",
		"private_key_path":        "",
		"mnemonic":                "",
		"mnemonic_passphrase":     "",
		"account_index":           0,
		"connect_timeout":         opts.ConnectTimeout,
		"request_timeout":         opts.RequestTimeout,
		"incoming_payment_expiry": opts.IncomingPaymentExpiry,
		"log_level":               "info",
		"log_format":              "text",
		"listen_addr":             ":8080",
		"return_url":              "",
		"poll.max_attempts":       retry.DefaultConfig.MaxAttempts,
		"poll.initial_delay":      retry.DefaultConfig.InitialDelay,
		"poll.max_delay":          retry.DefaultConfig.MaxDelay,
		"poll.multiplier":         retry.DefaultConfig.Multiplier,
		"poll.timeout":            time.Duration(0),
	} {
		v.SetDefault(key, value)
	}
}

// loadConfig reads the optional config file at path, then the environment,
// then the flags in flags that were set on the command line.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if key := flagKey(f.Name); configKeys[key] {
				bindErr = errors.Join(bindErr, v.BindPFlag(key, f))
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", openpayments.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// configKeys are the keys that can also be set with a flag of the same name
// in kebab case, e.g. --client-wallet.
var configKeys = map[string]bool{
	"client_wallet":    true,
	"key_id":           true,
	"private_key_path": true,
	"log_level":        true,
	"log_format":       true,
	"listen_addr":      true,
	"return_url":       true,
}

func flagKey(name string) string { return strings.ReplaceAll(name, "-", "_") }

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if err := validation.ValidateWalletURL(c.ClientWallet); err != nil {
		return fmt.Errorf("client_wallet: %w", err)
	}
	if err := c.validateKey(); err != nil {
		return err
	}
	if err := validation.ValidateOptions(c.Options); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.Poll.Validate()
}

// validateKey checks the key id and that exactly one key source is set.
func (c *Config) validateKey() error {
	if c.KeyID == "" {
		return fmt.Errorf("%w: key_id is required", openpayments.ErrInvalidConfig)
	}
	sources := 0
	for _, s := range []string{c.PrivateKeyPEM, c.PrivateKeyPath, c.Mnemonic} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("%w: exactly one of private_key_pem, private_key_path or mnemonic is required", openpayments.ErrInvalidConfig)
	}
	return nil
}

// ValidateReturn checks the return URL, which only pay and serve need.
func (c *Config) ValidateReturn() error {
	if err := validation.ValidateWalletURL(c.ReturnURL); err != nil {
		return fmt.Errorf("return_url: %w", err)
	}
	return nil
}

// Signer loads the configured key.
func (c *Config) Signer() (*httpsig.Signer, error) {
	var opt httpsig.SignerOption
	switch {
	case c.PrivateKeyPEM != "":
		opt = httpsig.WithPEM([]byte(c.PrivateKeyPEM))
	case c.PrivateKeyPath != "":
		opt = httpsig.WithPEMFile(c.PrivateKeyPath)
	default:
		opt = httpsig.WithMnemonic(c.Mnemonic, c.MnemonicPassphrase, c.AccountIndex)
	}
	return httpsig.NewSigner(c.KeyID, opt)
}

// Logger builds the logger for the configured level and format, on stderr.
func (c *Config) Logger() (*slog.Logger, error) {
	return logging.New(c.LogFormat, c.LogLevel)
}

// Orchestrator wires signer, client and orchestrator from the config.
func (c *Config) Orchestrator(logger *slog.Logger) (*flow.Orchestrator, error) {
	signer, err := c.Signer()
	if err != nil {
		return nil, err
	}
	client, err := ophttp.NewClient(signer,
		ophttp.WithOptions(c.Options),
		ophttp.WithClientLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return flow.New(client, openpayments.WalletAddress(c.ClientWallet), flow.WithLogger(logger))
}
