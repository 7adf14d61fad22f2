package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the configuration struct for the service.
type Config struct {
	// ListenAddr is the address the http server listens on.
	ListenAddr string
	// CoinGeckoAPIKey is the optional CoinGecko pro api key.
	CoinGeckoAPIKey string
	// LedgerEndpoint is the settlement ledger gateway base url.
	LedgerEndpoint string
	// SettlementContract is the settlement contract address.
	SettlementContract string
	// ChainID is the settlement chain id signatures are bound to.
	ChainID uint64
	// DomainName is the signature domain name.
	DomainName string
	// DomainVersion is the signature domain version.
	DomainVersion string
	// MakerSecrets are the automated maker agents' signing secrets.
	MakerSecrets []string
	// DefaultMakerSecret is the fallback maker signing secret.
	DefaultMakerSecret string
	// VariancePercent bounds each agent's random rate perturbation.
	VariancePercent float64
	// RejectDuplicateMakers enforces one quote per maker per RFQ.
	RejectDuplicateMakers bool

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}
	if cfg.LedgerEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("ledger endpoint cannot be an empty string"))
	}
	if cfg.SettlementContract == "" {
		errs = errors.Join(errs, fmt.Errorf("settlement contract cannot be an empty string"))
	}
	if len(cfg.MakerSecrets) == 0 && cfg.DefaultMakerSecret == "" {
		errs = errors.Join(errs, fmt.Errorf("no maker signing secrets provided for service"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Uint64:
		var def uint64
		if defValue != "" {
			def, _ = strconv.ParseUint(defValue, 10, 64)
		}
		flag.Uint64Var(value.(*uint64), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("listenaddr", &cfg.ListenAddr, "the http listen address")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("coingeckoapikey", &cfg.CoinGeckoAPIKey, "the CoinGecko pro api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("ledgerendpoint", &cfg.LedgerEndpoint, "the ledger gateway base url")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("settlementcontract", &cfg.SettlementContract, "the settlement contract address")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("chainid", &cfg.ChainID, "the settlement chain id")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("domainname", &cfg.DomainName, "the signature domain name")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("domainversion", &cfg.DomainVersion, "the signature domain version")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("makersecrets", &cfg.MakerSecrets, "the maker agent signing secrets")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("defaultmakersecret", &cfg.DefaultMakerSecret, "the fallback maker signing secret")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("variancepercent", &cfg.VariancePercent, "the maker rate variance percent")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("rejectduplicatemakers", &cfg.RejectDuplicateMakers, "the duplicate maker quote rejection flag")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DomainName == "" {
		cfg.DomainName = "FXSettlement"
	}
	if cfg.DomainVersion == "" {
		cfg.DomainVersion = "1"
	}

	return cfg.Validate()
}
