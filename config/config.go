// Package config loads token-app settings from an optional config.yaml,
// a .env file and TOKEN_APP_ prefixed environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const EnvPrefix = "TOKEN_APP"

type Config struct {
	Solana struct {
		RPCURL         string        `mapstructure:"rpc_url"`
		WSURL          string        `mapstructure:"ws_url"` // optional, enables websocket confirmation
		Commitment     string        `mapstructure:"commitment"`
		ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
		// Keypair is a solana-keygen JSON file path or a base58 private key.
		Keypair string `mapstructure:"keypair"`
	} `mapstructure:"solana"`
	Poll struct {
		NativeInterval time.Duration `mapstructure:"native_interval"`
		TokenInterval  time.Duration `mapstructure:"token_interval"`
	} `mapstructure:"poll"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("solana.rpc_url", rpc.DevNet_RPC)
	v.SetDefault("solana.ws_url", "")
	v.SetDefault("solana.commitment", string(rpc.CommitmentConfirmed))
	v.SetDefault("solana.confirm_timeout", 60*time.Second)
	v.SetDefault("solana.keypair", "")
	v.SetDefault("poll.native_interval", 10*time.Second)
	v.SetDefault("poll.token_interval", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
}

// Load reads configuration. path may name a config file; when empty,
// config.yaml is looked up in the working directory and skipped if absent.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Solana.RPCURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("solana.rpc_url %q must be an http(s) URL", c.Solana.RPCURL)
	}
	if c.Solana.WSURL != "" {
		u, err := url.Parse(c.Solana.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("solana.ws_url %q must be a ws(s) URL", c.Solana.WSURL)
		}
	}
	if _, err := c.CommitmentType(); err != nil {
		return err
	}
	if c.Solana.ConfirmTimeout <= 0 {
		return errors.New("solana.confirm_timeout must be positive")
	}
	if c.Poll.NativeInterval <= 0 || c.Poll.TokenInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// CommitmentType returns the commitment used for every read and
// confirmation.
func (c *Config) CommitmentType() (rpc.CommitmentType, error) {
	switch commitment := rpc.CommitmentType(strings.ToLower(c.Solana.Commitment)); commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return commitment, nil
	default:
		return "", fmt.Errorf("solana.commitment %q must be processed, confirmed or finalized", c.Solana.Commitment)
	}
}

func (c *Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
