package config

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

// Role selects which binary's required keys are validated.
type Role int

const (
	RoleIssuer Role = iota
	RoleDevnet
)

const (
	DefaultProgramID = "GDGexnGtZPoD1aHv6qg8hjeSspujwWnxJCtdrrj2gKpP"

	LedgerMemory  = "memory"
	LedgerBolt    = "bolt"
	LedgerLevelDB = "leveldb"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Issuer  IssuerConfig
	Program ProgramConfig
	Ledger  LedgerConfig
	Relay   RelayConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type IssuerConfig struct {
	SecretKey       string `mapstructure:"secret_key"`
	CooldownSeconds int64  `mapstructure:"cooldown_seconds"`
	RateLimit       int64  `mapstructure:"rate_limit"`
	RateWindowSec   int64  `mapstructure:"rate_window_sec"`
}

type ProgramConfig struct {
	ID           string `mapstructure:"id"`
	ServerPubkey string `mapstructure:"server_pubkey"`
	ReplayGuard  bool   `mapstructure:"replay_guard"`
}

type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	// CapsSupply is the CAPS base-unit amount the faucet credits per airdrop.
	CapsSupply uint64 `mapstructure:"caps_supply"`
}

type RelayConfig struct {
	Queue string `mapstructure:"queue"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func Load(role Role) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("issuer.cooldown_seconds", 60)
	v.SetDefault("issuer.rate_limit", 30)
	v.SetDefault("issuer.rate_window_sec", 60)
	v.SetDefault("program.id", DefaultProgramID)
	v.SetDefault("program.replay_guard", false)
	v.SetDefault("ledger.driver", LedgerMemory)
	v.SetDefault("ledger.caps_supply", uint64(1_000)*1_000_000_000)
	v.SetDefault("relay.queue", "loot:tx:queue")
	v.SetDefault("log.level", "info")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":             "PORT",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"issuer.secret_key":       "SERVER_SECRET_KEY",
		"issuer.cooldown_seconds": "COOLDOWN_SECONDS",
		"issuer.rate_limit":       "RATE_LIMIT",
		"issuer.rate_window_sec":  "RATE_WINDOW_SEC",
		"program.id":              "PROGRAM_ID",
		"program.server_pubkey":   "SERVER_PUBKEY",
		"program.replay_guard":    "REPLAY_GUARD",
		"ledger.driver":           "LEDGER_DRIVER",
		"ledger.path":             "LEDGER_PATH",
		"ledger.caps_supply":      "CAPS_SUPPLY",
		"relay.queue":             "RELAY_QUEUE",
		"log.level":               "LOG_LEVEL",
		"log.file":                "LOG_FILE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate(role)
}

func (c *Config) validate(role Role) error {
	if _, err := solana.PublicKeyFromBase58(c.Program.ID); err != nil {
		return fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}

	switch role {
	case RoleIssuer:
		if c.Issuer.SecretKey == "" {
			return fmt.Errorf("required config missing: SERVER_SECRET_KEY")
		}
		if _, err := c.SecretKey(); err != nil {
			return err
		}
		if c.Issuer.CooldownSeconds < 0 {
			return fmt.Errorf("COOLDOWN_SECONDS must not be negative")
		}
		if c.Issuer.RateLimit > 0 && c.Issuer.RateWindowSec <= 0 {
			return fmt.Errorf("RATE_WINDOW_SEC must be positive when RATE_LIMIT is set")
		}
	case RoleDevnet:
		if _, err := c.ServerPubkey(); err != nil {
			return err
		}
		switch c.Ledger.Driver {
		case LedgerMemory:
		case LedgerBolt, LedgerLevelDB:
			if c.Ledger.Path == "" {
				return fmt.Errorf("required config missing: LEDGER_PATH")
			}
		default:
			return fmt.Errorf("unknown LEDGER_DRIVER %q", c.Ledger.Driver)
		}
		if c.Relay.Queue == "" {
			return fmt.Errorf("required config missing: RELAY_QUEUE")
		}
	}
	return nil
}

func (c *Config) ProgramID() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Program.ID)
}

// SecretKey parses the issuer's base58 64-byte ed25519 secret key.
func (c *Config) SecretKey() (solana.PrivateKey, error) {
	priv, err := solana.PrivateKeyFromBase58(c.Issuer.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_SECRET_KEY: %w", err)
	}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SERVER_SECRET_KEY: %w", err)
	}
	return priv, nil
}

// ServerPubkey is the trusted voucher signer. SERVER_PUBKEY wins; otherwise
// it is derived from SERVER_SECRET_KEY.
func (c *Config) ServerPubkey() (solana.PublicKey, error) {
	if c.Program.ServerPubkey != "" {
		pk, err := solana.PublicKeyFromBase58(c.Program.ServerPubkey)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("invalid SERVER_PUBKEY: %w", err)
		}
		return pk, nil
	}
	if c.Issuer.SecretKey == "" {
		return solana.PublicKey{}, fmt.Errorf("required config missing: SERVER_PUBKEY")
	}
	priv, err := c.SecretKey()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return priv.PublicKey(), nil
}
