package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"

	"github.com/0gfoundation/0g-sealed-ledger/internal/fhe"
	"github.com/0gfoundation/0g-sealed-ledger/internal/proof"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Ledger LedgerConfig
	Oracle OracleConfig
	FHE    FHEConfig `mapstructure:"fhe"`
}

type ServerConfig struct {
	Port           int     `mapstructure:"port"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	Burst          int     `mapstructure:"burst"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type LedgerConfig struct {
	Owner         string   `mapstructure:"owner"`
	SystemAddress string   `mapstructure:"system_address"`
	ChainID       int64    `mapstructure:"chain_id"`
	CooldownSec   int64    `mapstructure:"cooldown_sec"`
	Providers     []string `mapstructure:"providers"`
}

type OracleConfig struct {
	Address        string `mapstructure:"address"`
	PrivateKey     string `mapstructure:"private_key"`
	Embedded       bool   `mapstructure:"embedded"`
	LedgerURL      string `mapstructure:"ledger_url"`
	PendingWarnSec int64  `mapstructure:"pending_warn_sec"`
}

type FHEConfig struct {
	PublicKey string `mapstructure:"public_key"`
	SecretKey string `mapstructure:"secret_key"`
	MaxTotal  uint64 `mapstructure:"max_total"`
}

// Role selects which keys are required.
type Role int

const (
	RoleLedger Role = iota // ledgerd
	RoleOracle             // standalone oracle worker
)

func Load(role Role) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_sec", 20)
	v.SetDefault("server.burst", 40)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("ledger.cooldown_sec", 10)
	v.SetDefault("oracle.ledger_url", "http://ledgerd:8080")
	v.SetDefault("oracle.pending_warn_sec", 600)
	v.SetDefault("fhe.max_total", uint64(1)<<36)

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
		"server.requests_per_sec": "REQUESTS_PER_SEC",
		"server.burst":            "REQUEST_BURST",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"ledger.owner":            "LEDGER_OWNER",
		"ledger.system_address":   "LEDGER_SYSTEM_ADDRESS",
		"ledger.chain_id":         "CHAIN_ID",
		"ledger.cooldown_sec":     "COOLDOWN_SEC",
		"ledger.providers":        "LEDGER_PROVIDERS",
		"oracle.address":          "ORACLE_ADDRESS",
		"oracle.private_key":      "ORACLE_PRIVATE_KEY",
		"oracle.embedded":         "ORACLE_EMBEDDED",
		"oracle.ledger_url":       "ORACLE_LEDGER_URL",
		"oracle.pending_warn_sec": "PENDING_WARN_SEC",
		"fhe.public_key":          "FHE_PUBLIC_KEY",
		"fhe.secret_key":          "FHE_SECRET_KEY",
		"fhe.max_total":           "FHE_MAX_TOTAL",
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
	type req struct {
		val  string
		name string
	}
	required := []req{
		{c.Ledger.SystemAddress, "LEDGER_SYSTEM_ADDRESS"},
		{c.Oracle.Address, "ORACLE_ADDRESS"},
	}
	needSecrets := role == RoleOracle || c.Oracle.Embedded
	if role == RoleLedger {
		required = append(required, req{c.Ledger.Owner, "LEDGER_OWNER"}, req{c.FHE.PublicKey, "FHE_PUBLIC_KEY"})
	}
	if role == RoleOracle {
		required = append(required, req{c.Oracle.LedgerURL, "ORACLE_LEDGER_URL"})
	}
	if needSecrets {
		required = append(required, req{c.Oracle.PrivateKey, "ORACLE_PRIVATE_KEY"}, req{c.FHE.SecretKey, "FHE_SECRET_KEY"})
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Ledger.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}

	addrs := []req{{c.Ledger.SystemAddress, "LEDGER_SYSTEM_ADDRESS"}, {c.Oracle.Address, "ORACLE_ADDRESS"}}
	if role == RoleLedger {
		addrs = append(addrs, req{c.Ledger.Owner, "LEDGER_OWNER"})
		for _, p := range c.Ledger.Providers {
			addrs = append(addrs, req{p, "LEDGER_PROVIDERS"})
		}
	}
	for _, a := range addrs {
		if !common.IsHexAddress(a.val) {
			return fmt.Errorf("invalid address in %s: %q", a.name, a.val)
		}
	}
	if c.Ledger.CooldownSec < 0 {
		return fmt.Errorf("COOLDOWN_SEC must not be negative")
	}

	if needSecrets {
		key, err := c.OracleKey()
		if err != nil {
			return err
		}
		if crypto.PubkeyToAddress(key.PublicKey) != common.HexToAddress(c.Oracle.Address) {
			return fmt.Errorf("ORACLE_PRIVATE_KEY does not match ORACLE_ADDRESS")
		}
		sk, err := c.FHESecretKey()
		if err != nil {
			return err
		}
		if c.FHE.PublicKey != "" && sk.Public().Hex() != strings.ToLower(c.FHE.PublicKey) {
			return fmt.Errorf("FHE_SECRET_KEY does not match FHE_PUBLIC_KEY")
		}
	}
	if c.FHE.PublicKey != "" {
		if _, err := c.FHEPublicKey(); err != nil {
			return err
		}
	}
	return nil
}

// ── Typed accessors ──────────────────────────────────────────────────────────

func (c *Config) OwnerAddress() common.Address  { return common.HexToAddress(c.Ledger.Owner) }
func (c *Config) SystemAddress() common.Address { return common.HexToAddress(c.Ledger.SystemAddress) }
func (c *Config) OracleAddress() common.Address { return common.HexToAddress(c.Oracle.Address) }
func (c *Config) ChainID() *big.Int             { return big.NewInt(c.Ledger.ChainID) }

func (c *Config) ProviderAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Ledger.Providers))
	for _, p := range c.Ledger.Providers {
		out = append(out, common.HexToAddress(p))
	}
	return out
}

// ProofDomain is the EIP-712 domain oracle proofs are signed in.
func (c *Config) ProofDomain() proof.Domain {
	return proof.Domain{ChainID: c.ChainID(), System: c.SystemAddress()}
}

func (c *Config) OracleKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.Oracle.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_PRIVATE_KEY: %w", err)
	}
	return key, nil
}

func (c *Config) FHEPublicKey() (*fhe.PublicKey, error) {
	pk, err := fhe.ParsePublicKey(c.FHE.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid FHE_PUBLIC_KEY: %w", err)
	}
	return pk, nil
}

func (c *Config) FHESecretKey() (*fhe.SecretKey, error) {
	sk, err := fhe.ParseSecretKey(c.FHE.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid FHE_SECRET_KEY: %w", err)
	}
	return sk, nil
}
