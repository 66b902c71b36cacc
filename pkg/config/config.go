// Package config loads relay deployment parameters from YAML, JSON and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RELAY_FORWARD_AMOUNT.
const EnvPrefix = "RELAY_"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the deployment and run configuration of a relay.
type Config struct {
	FundingAmount domain.Amount `json:"fundingAmount" yaml:"fundingAmount" mapstructure:"fundingAmount"`
	ForwardAmount domain.Amount `json:"forwardAmount" yaml:"forwardAmount" mapstructure:"forwardAmount"`
	// OverdrawAmount is requested by the overdraw scenario.
	OverdrawAmount domain.Amount `json:"overdrawAmount" yaml:"overdrawAmount" mapstructure:"overdrawAmount"`
	// GenesisBalance is minted to the funding account when it is empty.
	GenesisBalance domain.Amount `json:"genesisBalance" yaml:"genesisBalance" mapstructure:"genesisBalance"`

	CustodianAddress domain.Address `json:"custodianAddress" yaml:"custodianAddress" mapstructure:"custodianAddress"`
	ReceivingAddress domain.Address `json:"receivingAddress" yaml:"receivingAddress" mapstructure:"receivingAddress"`
	OwnerAddress     domain.Address `json:"ownerAddress" yaml:"ownerAddress" mapstructure:"ownerAddress"`
	FundingAddress   domain.Address `json:"fundingAddress" yaml:"fundingAddress" mapstructure:"fundingAddress"`

	Scenarios []string `json:"scenarios" yaml:"scenarios" mapstructure:"scenarios"`

	FinalityTimeout time.Duration `json:"finalityTimeout" yaml:"finalityTimeout" mapstructure:"finalityTimeout"`
	FinalityDelay   time.Duration `json:"finalityDelay" yaml:"finalityDelay" mapstructure:"finalityDelay"`
	RequeryTimeout  time.Duration `json:"requeryTimeout" yaml:"requeryTimeout" mapstructure:"requeryTimeout"`

	Store StoreConfig `json:"store" yaml:"store" mapstructure:"store"`

	MetricsAddr string `json:"metricsAddr" yaml:"metricsAddr" mapstructure:"metricsAddr"`
	LogLevel    string `json:"logLevel" yaml:"logLevel" mapstructure:"logLevel"`
}

// StoreConfig selects the balance store backend.
type StoreConfig struct {
	Driver   string `json:"driver" yaml:"driver" mapstructure:"driver"`
	Addr     string `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	DB       int    `json:"db" yaml:"db" mapstructure:"db"`
	Prefix   string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

// Default returns the reference deployment: fund 0.02, forward 0.01 and
// attempt to overdraw 0.02 from what is left.
func Default() Config {
	return Config{
		FundingAmount:    domain.MustParseAmount("0.02"),
		ForwardAmount:    domain.MustParseAmount("0.01"),
		OverdrawAmount:   domain.MustParseAmount("0.02"),
		GenesisBalance:   domain.MustParseAmount("1"),
		CustodianAddress: domain.MustParseAddress("0x000000000000000000000000000000000000c057"),
		ReceivingAddress: domain.MustParseAddress("0x000000000000000000000000000000000000bece"),
		OwnerAddress:     domain.MustParseAddress("0x0000000000000000000000000000000000000e0e"),
		FundingAddress:   domain.MustParseAddress("0x00000000000000000000000000000000000f00d0"),
		Scenarios:        []string{"forward", "promoted", "overdraw"},
		FinalityTimeout:  10 * time.Second,
		RequeryTimeout:   30 * time.Second,
		Store:            StoreConfig{Driver: DriverMemory, Prefix: "relay:ledger:"},
		LogLevel:         "info",
	}
}

// Load reads path (YAML, or JSON by extension) over Default and applies
// RELAY_* environment overrides. An empty path loads defaults plus
// environment only.
func Load(path string) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.ToLower(filepath.Ext(path)) == ".json" {
			if err := json.Unmarshal(data, &raw); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
			}
		} else {
			// Default to YAML
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
			}
		}
	}
	overlayEnv(raw, os.Environ())

	cfg := Default()
	if err := Decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode decodes a generic map into cfg, keeping fields absent from raw.
func Decode(raw map[string]any, cfg *Config) error {
	if _, ok := raw["scenarios"]; ok {
		// mapstructure decodes into the existing slice element by element.
		cfg.Scenarios = nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			textHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var (
	amountType  = reflect.TypeOf(domain.Amount(0))
	addressType = reflect.TypeOf(domain.Address{})
)

// textHook decodes amounts and addresses from their text forms. YAML and
// JSON read a bare 0.02 as a float, so numbers are formatted back before
// parsing; amounts that need more precision than a float must be quoted.
func textHook(from, to reflect.Type, data any) (any, error) {
	if to != amountType && to != addressType {
		return data, nil
	}
	var text string
	switch v := data.(type) {
	case string:
		text = v
	case float64, int, int64, uint64:
		if to == addressType {
			return nil, fmt.Errorf("%w: %v is not a hex string", domain.ErrInvalidAddress, v)
		}
		if f, ok := v.(float64); ok {
			var err error
			if text, err = floatText(f); err != nil {
				return nil, err
			}
		} else {
			text = fmt.Sprint(v)
		}
	default:
		return data, nil
	}

	if to == amountType {
		return domain.ParseAmount(text)
	}
	return domain.ParseAddress(text)
}

// floatText renders a decoded number in plain decimal notation. A float64
// keeps 15 significant digits; anything longer was already rounded by the
// decoder and is rejected.
func floatText(f float64) (string, error) {
	mantissa, _, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.TrimLeft(strings.NewReplacer("-", "", ".", "").Replace(mantissa), "0")
	if len(digits) > 15 {
		return "", fmt.Errorf("%w: %s exceeds float precision, quote the amount", domain.ErrInvalidAmount, strconv.FormatFloat(f, 'g', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// envKeys maps RELAY_* variables onto config keys.
var envKeys = map[string][]string{
	"FUNDING_AMOUNT":    {"fundingAmount"},
	"FORWARD_AMOUNT":    {"forwardAmount"},
	"OVERDRAW_AMOUNT":   {"overdrawAmount"},
	"GENESIS_BALANCE":   {"genesisBalance"},
	"CUSTODIAN_ADDRESS": {"custodianAddress"},
	"RECEIVING_ADDRESS": {"receivingAddress"},
	"OWNER_ADDRESS":     {"ownerAddress"},
	"FUNDING_ADDRESS":   {"fundingAddress"},
	"SCENARIOS":         {"scenarios"},
	"FINALITY_TIMEOUT":  {"finalityTimeout"},
	"FINALITY_DELAY":    {"finalityDelay"},
	"REQUERY_TIMEOUT":   {"requeryTimeout"},
	"METRICS_ADDR":      {"metricsAddr"},
	"LOG_LEVEL":         {"logLevel"},
	"STORE_DRIVER":      {"store", "driver"},
	"STORE_ADDR":        {"store", "addr"},
	"STORE_PASSWORD":    {"store", "password"},
	"STORE_DB":          {"store", "db"},
	"STORE_PREFIX":      {"store", "prefix"},
}

func overlayEnv(raw map[string]any, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		path, known := envKeys[strings.TrimPrefix(name, EnvPrefix)]
		if !known {
			continue
		}
		m := raw
		for _, key := range path[:len(path)-1] {
			child, ok := m[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				m[key] = child
			}
			m = child
		}
		m[path[len(path)-1]] = value
	}
}

// Validate checks that the configuration describes a usable deployment.
func (c Config) Validate() error {
	var errs []error
	if c.FundingAmount == 0 {
		errs = append(errs, errors.New("fundingAmount must be positive"))
	}
	if c.ForwardAmount == 0 {
		errs = append(errs, errors.New("forwardAmount must be positive"))
	}

	addrs := map[string]domain.Address{
		"custodianAddress": c.CustodianAddress,
		"receivingAddress": c.ReceivingAddress,
		"ownerAddress":     c.OwnerAddress,
		"fundingAddress":   c.FundingAddress,
	}
	seen := map[domain.Address]string{}
	for _, name := range []string{"custodianAddress", "receivingAddress", "ownerAddress", "fundingAddress"} {
		addr := addrs[name]
		if addr.IsZero() {
			errs = append(errs, fmt.Errorf("%s must not be the zero address", name))
			continue
		}
		if other, dup := seen[addr]; dup {
			errs = append(errs, fmt.Errorf("%s and %s share address %s", other, name, addr))
		}
		seen[addr] = name
	}

	for _, s := range c.Scenarios {
		switch s {
		case "forward", "promoted", "overdraw":
		default:
			errs = append(errs, fmt.Errorf("unknown scenario %q", s))
		}
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Addr == "" {
			errs = append(errs, errors.New("store.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
